package sampler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/brokerbench/brokerbench/model"
)

// Collector produces one resource snapshot per call.
type Collector interface {
	Collect() (model.ResourceSample, error)
}

// NopCollector produces timestamp-only samples. It is the degraded mode
// used when no counter source is available on the host; the run proceeds
// and the sample series still brackets the load window.
type NopCollector struct{}

func (NopCollector) Collect() (model.ResourceSample, error) {
	return model.ResourceSample{Timestamp: time.Now()}, nil
}

// Sampler polls a Collector at a fixed interval on its own goroutine. It
// shares no locks with the benchmark client so it cannot perturb the
// measurement it observes.
type Sampler struct {
	logger    zerolog.Logger
	interval  time.Duration
	collector Collector

	mu      sync.Mutex
	samples []model.ResourceSample

	stop chan struct{}
	done chan struct{}
}

func New(logger zerolog.Logger, interval time.Duration, collector Collector) *Sampler {
	return &Sampler{
		logger:    logger.With().Str("component", "sampler").Logger(),
		interval:  interval,
		collector: collector,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start takes the first sample synchronously before returning, so the
// series is guaranteed to begin at or before the load window, then samples
// in the background until Stop.
func (s *Sampler) Start() {
	s.collect()
	go s.loop()
}

// Stop ends the sampling loop, takes one final sample so the series extends
// past the load window, and returns the timestamp-ordered samples.
func (s *Sampler) Stop() []model.ResourceSample {
	close(s.stop)
	<-s.done
	s.collect()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ResourceSample, len(s.samples))
	copy(out, s.samples)
	s.logger.Debug().Int("samples", len(out)).Msg("Sampler stopped")
	return out
}

func (s *Sampler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *Sampler) collect() {
	sample, err := s.collector.Collect()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Sample collection failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Consumers rely on strict timestamp ordering for time-series alignment.
	if n := len(s.samples); n > 0 && !sample.Timestamp.After(s.samples[n-1].Timestamp) {
		return
	}
	s.samples = append(s.samples, sample)
}
