package model

import "time"

// RunState is the terminal state a benchmark run ended in.
type RunState string

const (
	RunStateComplete RunState = "complete"
	RunStateAborted  RunState = "aborted"
)

// BenchmarkResult is the full output of one single-platform run. It is
// assembled once when the run finishes and never mutated afterwards.
type BenchmarkResult struct {
	// Unique ID for this run (16 random bytes, hex encoded)
	ID string `json:"id"`
	// Platform the run was executed against
	Platform string `json:"platform"`
	// Topic used for the run
	Topic string `json:"topic"`
	// Configuration the run was executed under
	Config TestConfig `json:"config"`
	// Terminal state of the run
	State RunState `json:"state"`
	// Error description when State is aborted
	Error string `json:"error,omitempty"`
	// Timestamp when load generation started
	StartTime time.Time `json:"start_time"`
	// Timestamp when load generation finished
	EndTime time.Time `json:"end_time"`
	// Producer-side metrics
	Producer ProducerMetrics `json:"producer"`
	// Consumer-side metrics
	Consumer ConsumerMetrics `json:"consumer"`
	// Messages sent but never observed by the consumer
	Loss int64 `json:"loss"`
	// Resource samples covering the load window, timestamp-ordered
	Samples []ResourceSample `json:"samples,omitempty"`
	// Summary statistics over Samples
	Resources ResourceSummary `json:"resources"`
}

// ProducerMetrics aggregates all sender threads of one run.
type ProducerMetrics struct {
	// Messages acknowledged by the broker
	Sent int64 `json:"sent"`
	// Messages that failed after the retry budget was exhausted
	Failed int64 `json:"failed"`
	// Payload bytes acknowledged
	Bytes int64 `json:"bytes"`
	// Wall-clock time the senders were active
	Elapsed time.Duration `json:"elapsed"`
	// Achieved throughput in messages per second
	Throughput float64 `json:"throughput_msg_s"`
	// Achieved bandwidth in MB per second
	BandwidthMB float64 `json:"bandwidth_mb_s"`
	// Send latency distribution (broker acknowledgment round trip)
	SendLatency LatencyStats `json:"send_latency"`
}

// ConsumerMetrics aggregates all consumer workers of one run.
type ConsumerMetrics struct {
	// Messages observed on the topic
	Received int64 `json:"received"`
	// Payload bytes observed
	Bytes int64 `json:"bytes"`
	// Wall-clock time the workers were active
	Elapsed time.Duration `json:"elapsed"`
	// Achieved throughput in messages per second
	Throughput float64 `json:"throughput_msg_s"`
	// Achieved bandwidth in MB per second
	BandwidthMB float64 `json:"bandwidth_mb_s"`
	// End-to-end latency distribution (producer send to consumer receive)
	Latency LatencyStats `json:"latency"`
}

// LatencyStats is a summarized latency distribution.
type LatencyStats struct {
	// Number of samples the distribution was computed from
	Count int `json:"count"`
	Min   time.Duration `json:"min"`
	Avg   time.Duration `json:"avg"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// ResourceSample is one timestamped snapshot of host resource counters.
// Samples within a run are strictly ordered by timestamp.
type ResourceSample struct {
	Timestamp time.Time `json:"timestamp"`
	// CPU utilization as a fraction of total capacity (0..1)
	CPU float64 `json:"cpu"`
	// Resident memory in use, bytes
	MemoryBytes uint64 `json:"memory_bytes"`
	// Disk read rate, bytes per second
	DiskReadBytes float64 `json:"disk_read_bytes_s"`
	// Disk write rate, bytes per second
	DiskWriteBytes float64 `json:"disk_write_bytes_s"`
	// Network receive rate, bytes per second
	NetRxBytes float64 `json:"net_rx_bytes_s"`
	// Network transmit rate, bytes per second
	NetTxBytes float64 `json:"net_tx_bytes_s"`
	// Whether container-scoped counters contributed to this sample
	Container bool `json:"container,omitempty"`
}

// ResourceSummary condenses a sample series for reporting.
type ResourceSummary struct {
	// Number of samples collected
	Count int `json:"count"`
	// Average and peak CPU utilization fraction
	CPUAvg float64 `json:"cpu_avg"`
	CPUMax float64 `json:"cpu_max"`
	// Average and peak resident memory, bytes
	MemoryAvg uint64 `json:"memory_avg"`
	MemoryMax uint64 `json:"memory_max"`
}

// SummarizeResources computes summary statistics over a sample series.
func SummarizeResources(samples []ResourceSample) ResourceSummary {
	s := ResourceSummary{Count: len(samples)}
	if len(samples) == 0 {
		return s
	}
	var cpuSum float64
	var memSum uint64
	for _, sm := range samples {
		cpuSum += sm.CPU
		memSum += sm.MemoryBytes
		if sm.CPU > s.CPUMax {
			s.CPUMax = sm.CPU
		}
		if sm.MemoryBytes > s.MemoryMax {
			s.MemoryMax = sm.MemoryBytes
		}
	}
	s.CPUAvg = cpuSum / float64(len(samples))
	s.MemoryAvg = memSum / uint64(len(samples))
	return s
}
