package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/brokerbench/brokerbench/model"
)

// Writer is the slice of kafka.Writer the producer depends on. Tests
// substitute fakes; production code hands in real kafka writers.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CompletionFunc observes asynchronous delivery outcomes. It matches the
// signature of kafka.Writer's Completion hook.
type CompletionFunc func(messages []kafka.Message, err error)

// WriterFactory builds one writer per sender thread. The completion hook is
// non-nil only in async mode and must be installed on the writer so that
// acknowledgments are reported back without blocking the sender.
type WriterFactory func(thread int, completion CompletionFunc) Writer

// Producer drives config.ProducerThreads independent senders that together
// target the configured aggregate message rate.
type Producer struct {
	logger  zerolog.Logger
	cfg     model.TestConfig
	factory WriterFactory
	metrics *Metrics

	// DrainGrace bounds how long Run waits for outstanding async
	// acknowledgments after the send loops finish.
	DrainGrace time.Duration
	// SampleCap bounds each thread's send latency buffer.
	SampleCap int
}

func NewProducer(logger zerolog.Logger, cfg model.TestConfig, factory WriterFactory, metrics *Metrics) *Producer {
	return &Producer{
		logger:     logger.With().Str("component", "producer").Logger(),
		cfg:        cfg,
		factory:    factory,
		metrics:    metrics,
		DrainGrace: 5 * time.Second,
		SampleCap:  DefaultSampleCap,
	}
}

// senderState holds one thread's counters. Counters are atomics so the
// progress logger and async completion hook can touch them without locks;
// the sample buffer is guarded by a mutex that is uncontended in sync mode.
type senderState struct {
	id       uint32
	sent     atomic.Int64
	failed   atomic.Int64
	bytes    atomic.Int64
	inflight atomic.Int64

	mu      sync.Mutex
	samples *sampleBuffer
}

func (s *senderState) record(latency time.Duration, bytes int, m *Metrics) {
	s.sent.Add(1)
	s.bytes.Add(int64(bytes))
	m.recordSent(bytes)
	s.mu.Lock()
	s.samples.add(latency)
	s.mu.Unlock()
}

// complete is the async-mode acknowledgment hook for one sender thread.
// kafka-go invokes it from the writer's own goroutines, so everything it
// touches is atomic or mutex-guarded.
func (s *senderState) complete(m *Metrics, msgs []kafka.Message, err error) {
	defer s.inflight.Add(-int64(len(msgs)))
	if err != nil {
		s.failed.Add(int64(len(msgs)))
		for range msgs {
			m.recordSendFailure()
		}
		return
	}
	now := time.Now()
	for _, msg := range msgs {
		s.sent.Add(1)
		s.bytes.Add(int64(len(msg.Value)))
		m.recordSent(len(msg.Value))
		if !msg.Time.IsZero() {
			s.mu.Lock()
			s.samples.add(now.Sub(msg.Time))
			s.mu.Unlock()
		}
	}
}

// Run executes the load phase and blocks until every sender has joined and
// outstanding acknowledgments have drained. On cancellation the metrics
// gathered so far are still returned alongside the context error.
func (p *Producer) Run(ctx context.Context) (model.ProducerMetrics, error) {
	threads := p.cfg.ProducerThreads
	states := make([]*senderState, threads)
	for i := range states {
		states[i] = &senderState{
			id:      uint32(i),
			samples: newSampleBuffer(p.SampleCap),
		}
	}

	start := time.Now()
	end := start.Add(p.cfg.Duration)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(state *senderState) {
			defer wg.Done()
			p.sender(ctx, state, start, end)
		}(states[i])
	}

	progressDone := make(chan struct{})
	go p.logProgress(states, progressDone)

	wg.Wait()
	close(progressDone)

	if p.cfg.Mode == model.DeliveryAsync {
		p.drain(states)
	}
	elapsed := time.Since(start)

	metrics := p.merge(states, elapsed)
	p.logger.Info().
		Int64("sent", metrics.Sent).
		Int64("failed", metrics.Failed).
		Float64("throughput", metrics.Throughput).
		Msg("Producer finished")
	return metrics, ctx.Err()
}

// threadRate returns the per-thread target rate, spreading the remainder of
// an uneven division over the first threads.
func (p *Producer) threadRate(thread int) float64 {
	base := p.cfg.MessageRate / p.cfg.ProducerThreads
	if thread < p.cfg.MessageRate%p.cfg.ProducerThreads {
		base++
	}
	return float64(base)
}

func (p *Producer) threadLimit(thread int) int64 {
	if p.cfg.MessageLimit <= 0 {
		return 0
	}
	limit := p.cfg.MessageLimit / int64(p.cfg.ProducerThreads)
	if int64(thread) < p.cfg.MessageLimit%int64(p.cfg.ProducerThreads) {
		limit++
	}
	return limit
}

func (p *Producer) sender(ctx context.Context, state *senderState, start, end time.Time) {
	async := p.cfg.Mode == model.DeliveryAsync
	var completion CompletionFunc
	if async {
		completion = func(msgs []kafka.Message, err error) {
			state.complete(p.metrics, msgs, err)
		}
	}
	w := p.factory(int(state.id), completion)
	defer w.Close()

	rate := p.threadRate(int(state.id))
	if rate <= 0 {
		// More threads than messages per second; the remainder threads
		// have nothing to send.
		return
	}
	limit := p.threadLimit(int(state.id))

	for n := int64(0); ; n++ {
		if limit > 0 && n >= limit {
			break
		}
		// Token pacing: the ideal departure time for message n smooths the
		// stream instead of sending greedy bursts.
		ideal := start.Add(time.Duration(float64(n) / rate * float64(time.Second)))
		if ideal.After(end) {
			break
		}
		if !sleepUntil(ctx, ideal) {
			break
		}
		if !time.Now().Before(end) {
			break
		}
		p.send(ctx, w, state, n, async)
	}
}

func (p *Producer) send(ctx context.Context, w Writer, state *senderState, seq int64, async bool) {
	sentAt := time.Now()
	env := Envelope{Sender: state.id, Sequence: uint64(seq), SentAt: sentAt}
	buf, err := env.Marshal(p.cfg.MessageSize)
	if err != nil {
		// Rejected by config validation before the run; only reachable if
		// the caller skipped Validate.
		state.failed.Add(1)
		return
	}
	msg := kafka.Message{Value: buf, Time: sentAt}

	if async {
		state.inflight.Add(1)
		if err := w.WriteMessages(ctx, msg); err != nil {
			// Queueing failed locally; the completion hook will not fire.
			state.inflight.Add(-1)
			state.failed.Add(1)
			p.metrics.recordSendFailure()
		}
		return
	}

	err = w.WriteMessages(ctx, msg)
	if err != nil && ctx.Err() == nil {
		// One retry, then the failure is recorded and the run moves on:
		// the measurement must reflect degraded conditions, not stop on them.
		err = w.WriteMessages(ctx, msg)
	}
	if err != nil {
		state.failed.Add(1)
		p.metrics.recordSendFailure()
		return
	}
	state.record(time.Since(sentAt), len(buf), p.metrics)
}

// drain waits for outstanding async acknowledgments, bounded by DrainGrace.
func (p *Producer) drain(states []*senderState) {
	deadline := time.Now().Add(p.DrainGrace)
	for time.Now().Before(deadline) {
		var pending int64
		for _, s := range states {
			pending += s.inflight.Load()
		}
		if pending == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	var pending int64
	for _, s := range states {
		pending += s.inflight.Load()
	}
	p.logger.Warn().Int64("pending", pending).Msg("Drain grace elapsed with unacknowledged sends")
}

func (p *Producer) merge(states []*senderState, elapsed time.Duration) model.ProducerMetrics {
	var m model.ProducerMetrics
	var samples []time.Duration
	for _, s := range states {
		m.Sent += s.sent.Load()
		m.Failed += s.failed.Load()
		m.Bytes += s.bytes.Load()
		s.mu.Lock()
		samples = append(samples, s.samples.snapshot()...)
		s.mu.Unlock()
	}
	m.Elapsed = elapsed
	if secs := elapsed.Seconds(); secs > 0 {
		m.Throughput = float64(m.Sent) / secs
		m.BandwidthMB = float64(m.Bytes) / (1024 * 1024) / secs
	}
	m.SendLatency = summarize(samples)
	return m
}

func (p *Producer) logProgress(states []*senderState, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var last int64
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var total int64
			for _, s := range states {
				total += s.sent.Load()
			}
			p.logger.Debug().
				Int64("sent", total).
				Int64("rate", total-last).
				Msg("Producer progress")
			last = total
		}
	}
}

// sleepUntil sleeps until t or the context is cancelled. It reports whether
// the deadline was reached.
func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
