package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/brokerbench/brokerbench/model"
)

// fakeReader pulls from a shared message channel, blocking until the read
// context expires when the channel is empty. That mirrors how a kafka
// reader behaves on an idle topic.
type fakeReader struct {
	queue  chan kafka.Message
	closed atomic.Bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.queue:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.closed.Store(true)
	return nil
}

func consumerConfig(workers int) model.TestConfig {
	return model.TestConfig{
		Duration:        time.Second,
		MessageRate:     100,
		MessageSize:     64,
		ProducerThreads: 1,
		Consumers:       workers,
		Mode:            model.DeliverySync,
	}
}

func newTestConsumer(t *testing.T, workers int, queue chan kafka.Message) (*Consumer, *[]*fakeReader) {
	t.Helper()
	var mu sync.Mutex
	readers := make([]*fakeReader, 0, workers)
	// Workers call the factory concurrently.
	factory := func(worker int) Reader {
		r := &fakeReader{queue: queue}
		mu.Lock()
		readers = append(readers, r)
		mu.Unlock()
		return r
	}
	c := NewConsumer(zerolog.Nop(), consumerConfig(workers), factory, nil)
	c.InactivityTimeout = 50 * time.Millisecond
	return c, &readers
}

func envelopeMessage(t *testing.T, sender uint32, seq uint64, sentAt time.Time) kafka.Message {
	t.Helper()
	buf, err := Envelope{Sender: sender, Sequence: seq, SentAt: sentAt}.Marshal(64)
	require.NoError(t, err)
	return kafka.Message{Value: buf}
}

func TestConsumer_StopsAtExpectedCount(t *testing.T) {
	queue := make(chan kafka.Message, 10)
	sentAt := time.Now().Add(-3 * time.Millisecond)
	for i := 0; i < 10; i++ {
		queue <- envelopeMessage(t, 0, uint64(i), sentAt)
	}

	c, readers := newTestConsumer(t, 2, queue)
	metrics, err := c.Run(context.Background(), 10)
	require.NoError(t, err)

	require.Equal(t, int64(10), metrics.Received)
	require.Equal(t, int64(10*64), metrics.Bytes)
	require.Equal(t, 10, metrics.Latency.Count)
	require.Greater(t, metrics.Latency.Min, time.Duration(0))
	for _, r := range *readers {
		require.True(t, r.closed.Load())
	}
}

func TestConsumer_IgnoresForeignMessages(t *testing.T) {
	queue := make(chan kafka.Message, 5)
	sentAt := time.Now()
	queue <- envelopeMessage(t, 0, 0, sentAt)
	queue <- kafka.Message{Value: []byte("not an envelope, just topic noise")}
	queue <- envelopeMessage(t, 0, 1, sentAt)
	queue <- kafka.Message{Value: []byte("x")}
	queue <- envelopeMessage(t, 0, 2, sentAt)

	c, _ := newTestConsumer(t, 1, queue)
	metrics, err := c.Run(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), metrics.Received)
}

func TestConsumer_InactivityTimeout(t *testing.T) {
	c, _ := newTestConsumer(t, 2, make(chan kafka.Message))

	start := time.Now()
	metrics, err := c.Run(context.Background(), 100)
	require.ErrorIs(t, err, ErrInactivityTimeout)
	require.Equal(t, int64(0), metrics.Received)
	require.GreaterOrEqual(t, time.Since(start), c.InactivityTimeout)
}

func TestConsumer_NoExpectationNoError(t *testing.T) {
	// With no messages expected an empty topic is not a failure, the run
	// just ends on the inactivity timeout.
	c, _ := newTestConsumer(t, 1, make(chan kafka.Message))
	metrics, err := c.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), metrics.Received)
}

func TestConsumer_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	queue := make(chan kafka.Message, 1)
	queue <- envelopeMessage(t, 0, 0, time.Now())

	c, _ := newTestConsumer(t, 1, queue)
	c.InactivityTimeout = 10 * time.Second

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	metrics, err := c.Run(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(1), metrics.Received)
}
