package bench

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/brokerbench/brokerbench/model"
)

// fakeWriter records writes and can fail the first N calls. When a
// completion hook is installed it is invoked inline, which is good enough
// to exercise the async accounting paths.
type fakeWriter struct {
	mu         sync.Mutex
	written    []kafka.Message
	calls      int
	failFirst  int
	completion CompletionFunc
	closed     atomic.Bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	w.calls++
	fail := w.calls <= w.failFirst
	if !fail {
		w.written = append(w.written, msgs...)
	}
	completion := w.completion
	w.mu.Unlock()

	if fail {
		if completion != nil {
			// Queueing succeeded but delivery failed.
			completion(msgs, errors.New("broker unavailable"))
			return nil
		}
		return errors.New("broker unavailable")
	}
	if completion != nil {
		completion(msgs, nil)
	}
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed.Store(true)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

func producerConfig(mode model.DeliveryMode) model.TestConfig {
	return model.TestConfig{
		Duration:        5 * time.Second,
		MessageRate:     2000,
		MessageSize:     64,
		ProducerThreads: 2,
		Consumers:       1,
		Mode:            mode,
		MessageLimit:    10,
	}
}

func TestProducer_SyncRun(t *testing.T) {
	var mu sync.Mutex
	writers := make(map[int]*fakeWriter)
	factory := func(thread int, completion CompletionFunc) Writer {
		w := &fakeWriter{completion: completion}
		mu.Lock()
		writers[thread] = w
		mu.Unlock()
		return w
	}

	p := NewProducer(zerolog.Nop(), producerConfig(model.DeliverySync), factory, nil)
	metrics, err := p.Run(context.Background())
	require.NoError(t, err)

	// The message limit bounds the run exactly.
	require.Equal(t, int64(10), metrics.Sent)
	require.Equal(t, int64(0), metrics.Failed)
	require.Equal(t, int64(10*64), metrics.Bytes)
	require.Equal(t, 10, metrics.SendLatency.Count)
	require.Greater(t, metrics.Throughput, 0.0)

	require.Len(t, writers, 2)
	total := 0
	for thread, w := range writers {
		require.True(t, w.closed.Load(), "writer %d not closed", thread)
		require.Nil(t, w.completion, "sync mode must not install a completion hook")
		total += w.count()
	}
	require.Equal(t, 10, total)

	// Every written payload is a valid envelope of the configured size.
	for _, w := range writers {
		for _, msg := range w.written {
			require.Len(t, msg.Value, 64)
			_, err := UnmarshalEnvelope(msg.Value)
			require.NoError(t, err)
			require.False(t, msg.Time.IsZero())
		}
	}
}

func TestProducer_SyncRetriesOnce(t *testing.T) {
	cfg := producerConfig(model.DeliverySync)
	cfg.MessageLimit = 1
	cfg.ProducerThreads = 1

	w := &fakeWriter{failFirst: 1}
	p := NewProducer(zerolog.Nop(), cfg, func(int, CompletionFunc) Writer { return w }, nil)

	metrics, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), metrics.Sent)
	require.Equal(t, int64(0), metrics.Failed)
	require.Equal(t, 2, w.calls)
}

func TestProducer_SyncRecordsFailureAfterRetry(t *testing.T) {
	cfg := producerConfig(model.DeliverySync)
	cfg.MessageLimit = 1
	cfg.ProducerThreads = 1

	w := &fakeWriter{failFirst: 2}
	p := NewProducer(zerolog.Nop(), cfg, func(int, CompletionFunc) Writer { return w }, nil)

	metrics, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), metrics.Sent)
	require.Equal(t, int64(1), metrics.Failed)
}

func TestProducer_AsyncRun(t *testing.T) {
	var sawNilCompletion atomic.Bool
	factory := func(thread int, completion CompletionFunc) Writer {
		if completion == nil {
			sawNilCompletion.Store(true)
		}
		return &fakeWriter{completion: completion}
	}

	p := NewProducer(zerolog.Nop(), producerConfig(model.DeliveryAsync), factory, nil)
	metrics, err := p.Run(context.Background())
	require.NoError(t, err)
	require.False(t, sawNilCompletion.Load(), "async mode must install a completion hook")

	require.Equal(t, int64(10), metrics.Sent)
	require.Equal(t, int64(0), metrics.Failed)
	require.Equal(t, 10, metrics.SendLatency.Count)
}

func TestProducer_AsyncCompletionFailure(t *testing.T) {
	cfg := producerConfig(model.DeliveryAsync)
	cfg.MessageLimit = 4
	cfg.ProducerThreads = 1

	factory := func(thread int, completion CompletionFunc) Writer {
		return &fakeWriter{completion: completion, failFirst: 2}
	}

	p := NewProducer(zerolog.Nop(), cfg, factory, nil)
	metrics, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(2), metrics.Sent)
	require.Equal(t, int64(2), metrics.Failed)
}

func TestProducer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := producerConfig(model.DeliverySync)
	cfg.MessageLimit = 0
	p := NewProducer(zerolog.Nop(), cfg, func(int, CompletionFunc) Writer { return &fakeWriter{} }, nil)

	metrics, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(0), metrics.Sent)
}

func TestProducer_ThreadRateSpreadsRemainder(t *testing.T) {
	cfg := producerConfig(model.DeliverySync)
	cfg.MessageRate = 10
	cfg.ProducerThreads = 4
	p := NewProducer(zerolog.Nop(), cfg, nil, nil)

	var total float64
	for i := 0; i < 4; i++ {
		total += p.threadRate(i)
	}
	require.Equal(t, 10.0, total)
	require.Equal(t, 3.0, p.threadRate(0))
	require.Equal(t, 2.0, p.threadRate(3))
}

func TestProducer_ThreadLimitSpreadsRemainder(t *testing.T) {
	cfg := producerConfig(model.DeliverySync)
	cfg.MessageLimit = 7
	cfg.ProducerThreads = 3
	p := NewProducer(zerolog.Nop(), cfg, nil, nil)

	var total int64
	for i := 0; i < 3; i++ {
		total += p.threadLimit(i)
	}
	require.Equal(t, int64(7), total)

	cfg.MessageLimit = 0
	p = NewProducer(zerolog.Nop(), cfg, nil, nil)
	require.Equal(t, int64(0), p.threadLimit(0))
}
