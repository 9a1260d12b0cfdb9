package bench

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes live run progress as Prometheus counters so an operator
// can watch a long benchmark from the outside. All methods are nil-safe;
// a nil *Metrics disables live metrics entirely.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent     prometheus.Counter
	sendFailures     prometheus.Counter
	bytesSent        prometheus.Counter
	messagesReceived prometheus.Counter
	bytesReceived    prometheus.Counter
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerbench_messages_sent_total",
			Help: "Messages acknowledged by the broker",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerbench_send_failures_total",
			Help: "Messages that failed after the retry budget",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerbench_bytes_sent_total",
			Help: "Payload bytes acknowledged by the broker",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerbench_messages_received_total",
			Help: "Messages observed by the consumer",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brokerbench_bytes_received_total",
			Help: "Payload bytes observed by the consumer",
		}),
	}
	m.registry.MustRegister(m.messagesSent, m.sendFailures, m.bytesSent, m.messagesReceived, m.bytesReceived)
	return m
}

// Handler serves the metrics registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) recordSent(bytes int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) recordSendFailure() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) recordReceived(bytes int) {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
}
