package cli

// This file wires the benchmark client to real Kafka-protocol connections.

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/brokerbench/brokerbench/bench"
	"github.com/brokerbench/brokerbench/model"
	"github.com/brokerbench/brokerbench/orchestrator"
)

// kafkaWriterFactory builds one kafka.Writer per sender thread. Sync mode
// acknowledges every message before the next is issued; async mode
// pipelines batches and reports acknowledgments through the completion
// hook. MaxAttempts of 2 gives each send exactly one retry.
func kafkaWriterFactory(endpoint, topic string) bench.WriterFactory {
	return func(thread int, completion bench.CompletionFunc) bench.Writer {
		w := &kafka.Writer{
			Addr:         kafka.TCP(endpoint),
			Topic:        topic,
			Balancer:     &kafka.RoundRobin{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  2,
		}
		if completion != nil {
			w.Async = true
			w.Completion = completion
			w.BatchTimeout = 10 * time.Millisecond
		} else {
			w.BatchSize = 1
			w.BatchTimeout = time.Millisecond
		}
		return w
	}
}

// kafkaReaderFactory builds one group reader per consumer worker. All
// workers of a run share a consumer group so partitions are spread across
// them.
func kafkaReaderFactory(endpoint, topic, group string) bench.ReaderFactory {
	return func(worker int) bench.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{endpoint},
			GroupID:     group,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10 * 1024 * 1024,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		})
	}
}

// clientFactory builds the producer/consumer pair the orchestrator runs
// during the load window.
func (a *App) clientFactory(metrics *bench.Metrics) orchestrator.ClientFactory {
	return func(cfg model.TestConfig, endpoint, topic string) (orchestrator.ProducerRunner, orchestrator.ConsumerRunner) {
		group := fmt.Sprintf("%s-%s", AppName, uuid.NewString()[:8])
		producer := bench.NewProducer(a.logger, cfg, kafkaWriterFactory(endpoint, topic), metrics)
		consumer := bench.NewConsumer(a.logger, cfg, kafkaReaderFactory(endpoint, topic, group), metrics)
		return producer, consumer
	}
}
