package sampler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/brokerbench/brokerbench/model"
)

// countingCollector fabricates samples with strictly increasing timestamps.
type countingCollector struct {
	base time.Time
	n    atomic.Int64
}

func (c *countingCollector) Collect() (model.ResourceSample, error) {
	n := c.n.Add(1)
	return model.ResourceSample{
		Timestamp:   c.base.Add(time.Duration(n) * time.Millisecond),
		CPU:         0.5,
		MemoryBytes: uint64(n),
	}, nil
}

type frozenCollector struct {
	at time.Time
}

func (c frozenCollector) Collect() (model.ResourceSample, error) {
	return model.ResourceSample{Timestamp: c.at}, nil
}

type failingCollector struct{}

func (failingCollector) Collect() (model.ResourceSample, error) {
	return model.ResourceSample{}, errors.New("no counter source")
}

func TestSampler_BracketsLoadWindow(t *testing.T) {
	collector := &countingCollector{base: time.Now()}
	s := New(zerolog.Nop(), 10*time.Millisecond, collector)

	s.Start()
	// The first sample is taken synchronously in Start.
	require.GreaterOrEqual(t, collector.n.Load(), int64(1))

	time.Sleep(35 * time.Millisecond)
	samples := s.Stop()

	// First sample from Start, at least one from the loop, one from Stop.
	require.GreaterOrEqual(t, len(samples), 3)
	for i := 1; i < len(samples); i++ {
		require.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp),
			"samples must be strictly ordered by timestamp")
	}
}

func TestSampler_DropsNonIncreasingTimestamps(t *testing.T) {
	s := New(zerolog.Nop(), 5*time.Millisecond, frozenCollector{at: time.Now()})
	s.Start()
	time.Sleep(25 * time.Millisecond)
	samples := s.Stop()

	// Every sample after the first repeats the timestamp and is discarded.
	require.Len(t, samples, 1)
}

func TestSampler_CollectorFailure(t *testing.T) {
	s := New(zerolog.Nop(), 5*time.Millisecond, failingCollector{})
	s.Start()
	time.Sleep(15 * time.Millisecond)
	samples := s.Stop()

	// The run proceeds, just without resource data.
	require.Empty(t, samples)
}

func TestNopCollector(t *testing.T) {
	sample, err := NopCollector{}.Collect()
	require.NoError(t, err)
	require.False(t, sample.Timestamp.IsZero())
	require.Zero(t, sample.CPU)
}
