package bench

import (
	"sort"
	"time"

	"github.com/brokerbench/brokerbench/model"
)

// DefaultSampleCap bounds the number of latency samples kept per run.
// Once the cap is hit the oldest samples are dropped, which keeps memory
// constant on long runs at the cost of a slight recency bias.
const DefaultSampleCap = 100_000

// sampleBuffer is a fixed-capacity ring of latency samples. It is not
// safe for concurrent use; each worker owns its own buffer and the buffers
// are merged after all workers have joined.
type sampleBuffer struct {
	samples []time.Duration
	next    int
	wrapped bool
}

func newSampleBuffer(capacity int) *sampleBuffer {
	if capacity <= 0 {
		capacity = DefaultSampleCap
	}
	return &sampleBuffer{samples: make([]time.Duration, 0, capacity)}
}

func (b *sampleBuffer) add(d time.Duration) {
	if len(b.samples) < cap(b.samples) {
		b.samples = append(b.samples, d)
		return
	}
	// Full: overwrite the oldest sample.
	b.samples[b.next] = d
	b.next = (b.next + 1) % cap(b.samples)
	b.wrapped = true
}

func (b *sampleBuffer) snapshot() []time.Duration {
	out := make([]time.Duration, len(b.samples))
	copy(out, b.samples)
	return out
}

// summarize computes the latency distribution over a set of samples with a
// full sort. Sample counts are bounded by the buffer cap, so the sort cost
// is bounded regardless of how many messages a run moved.
func summarize(samples []time.Duration) model.LatencyStats {
	stats := model.LatencyStats{Count: len(samples)}
	if len(samples) == 0 {
		return stats
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]
	stats.Avg = total / time.Duration(len(sorted))
	stats.P50 = percentile(sorted, 0.50)
	stats.P95 = percentile(sorted, 0.95)
	stats.P99 = percentile(sorted, 0.99)
	return stats
}

// percentile expects a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
