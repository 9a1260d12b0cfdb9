package bench

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/brokerbench/brokerbench/model"
)

// ErrInactivityTimeout reports a consumer that observed no messages at all
// before its inactivity timeout elapsed.
var ErrInactivityTimeout = errors.New("consumer stalled: no messages before inactivity timeout")

// Reader is the slice of kafka.Reader the consumer depends on.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ReaderFactory builds one reader per consumer worker.
type ReaderFactory func(worker int) Reader

// Consumer reads the benchmark stream back and computes end-to-end latency
// from the envelope's embedded send timestamp. Producer and consumer must
// share a clock source (same host) for the latency to be valid.
type Consumer struct {
	logger  zerolog.Logger
	cfg     model.TestConfig
	factory ReaderFactory
	metrics *Metrics

	// InactivityTimeout stops a worker once no new message has arrived for
	// this long, bounding the run even when the platform drops messages.
	InactivityTimeout time.Duration
	// SampleCap bounds each worker's latency sample buffer.
	SampleCap int
}

func NewConsumer(logger zerolog.Logger, cfg model.TestConfig, factory ReaderFactory, metrics *Metrics) *Consumer {
	return &Consumer{
		logger:            logger.With().Str("component", "consumer").Logger(),
		cfg:               cfg,
		factory:           factory,
		metrics:           metrics,
		InactivityTimeout: 10 * time.Second,
		SampleCap:         DefaultSampleCap,
	}
}

type workerState struct {
	received int64
	bytes    int64
	rejected int64
	samples  *sampleBuffer
}

// Run consumes until expected messages have been observed (when expected is
// positive), the inactivity timeout fires on every worker, or the context
// is cancelled. Partial metrics are returned in every case.
func (c *Consumer) Run(ctx context.Context, expected int64) (model.ConsumerMetrics, error) {
	states := make([]*workerState, c.cfg.Consumers)
	for i := range states {
		states[i] = &workerState{samples: newSampleBuffer(c.SampleCap)}
	}

	var total atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Consumers; i++ {
		wg.Add(1)
		go func(worker int, state *workerState) {
			defer wg.Done()
			c.worker(ctx, worker, state, expected, &total)
		}(i, states[i])
	}
	wg.Wait()
	elapsed := time.Since(start)

	metrics := c.merge(states, elapsed)
	c.logger.Info().
		Int64("received", metrics.Received).
		Float64("throughput", metrics.Throughput).
		Msg("Consumer finished")

	if ctx.Err() != nil {
		return metrics, ctx.Err()
	}
	if metrics.Received == 0 && expected != 0 {
		return metrics, ErrInactivityTimeout
	}
	return metrics, nil
}

func (c *Consumer) worker(ctx context.Context, worker int, state *workerState, expected int64, total *atomic.Int64) {
	r := c.factory(worker)
	defer r.Close()

	logger := c.logger.With().Int("worker", worker).Logger()
	for {
		if expected > 0 && total.Load() >= expected {
			logger.Debug().Msg("Expected message count reached")
			return
		}
		readCtx, cancel := context.WithTimeout(ctx, c.InactivityTimeout)
		msg, err := r.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug().Msg("Consumer cancelled")
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Debug().Dur("timeout", c.InactivityTimeout).Msg("Inactivity timeout reached")
				return
			}
			logger.Debug().Err(err).Msg("Read error")
			continue
		}

		now := time.Now()
		env, err := UnmarshalEnvelope(msg.Value)
		if err != nil {
			// Foreign message on the topic; not part of the measurement.
			state.rejected++
			continue
		}
		state.received++
		state.bytes += int64(len(msg.Value))
		state.samples.add(now.Sub(env.SentAt))
		total.Add(1)
		c.metrics.recordReceived(len(msg.Value))
	}
}

func (c *Consumer) merge(states []*workerState, elapsed time.Duration) model.ConsumerMetrics {
	var m model.ConsumerMetrics
	var samples []time.Duration
	var rejected int64
	for _, s := range states {
		m.Received += s.received
		m.Bytes += s.bytes
		rejected += s.rejected
		samples = append(samples, s.samples.snapshot()...)
	}
	if rejected > 0 {
		c.logger.Warn().Int64("rejected", rejected).Msg("Ignored messages that were not benchmark envelopes")
	}
	m.Elapsed = elapsed
	if secs := elapsed.Seconds(); secs > 0 {
		m.Throughput = float64(m.Received) / secs
		m.BandwidthMB = float64(m.Bytes) / (1024 * 1024) / secs
	}
	m.Latency = summarize(samples)
	return m
}
