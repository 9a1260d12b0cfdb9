package model

import "time"

// Comparison categories. Each category has a fixed direction: throughput
// and bandwidth are higher-is-better, everything else lower-is-better.
const (
	CategoryThroughput = "throughput"
	CategoryBandwidth  = "bandwidth"
	CategoryLatencyAvg = "latency_avg"
	CategoryLatencyP99 = "latency_p99"
	CategoryLoss       = "loss"
	CategoryCPU        = "cpu"
	CategoryMemory     = "memory"
)

// NoWinner is recorded when a category ends in an exact tie.
const NoWinner = "no winner"

// DeltaNA marks a percentage delta that is undefined because the baseline
// value is zero. It is deliberately distinct from a 0% delta.
const DeltaNA = "N/A"

// ComparisonReport is a derived, read-only view over two or more
// BenchmarkResults that share one TestConfig shape.
type ComparisonReport struct {
	// Timestamp when the report was generated
	GeneratedAt time.Time `json:"generated_at"`
	// Configuration all compared runs share
	Config TestConfig `json:"config"`
	// Platform used as the 0% reference for deltas
	Baseline string `json:"baseline"`
	// Platforms in comparison order (baseline first)
	Platforms []string `json:"platforms"`
	// Per-category outcome, keyed by category name
	Categories map[string]CategoryResult `json:"categories"`
	// Narrative winners per broad area
	Summary ReportSummary `json:"summary"`
}

// CategoryResult is the outcome of one metric category.
type CategoryResult struct {
	// Winning platform, or NoWinner on an exact tie
	Winner string `json:"winner"`
	// Raw metric value per platform
	Values map[string]float64 `json:"values"`
	// Percentage delta vs the baseline per platform, formatted; DeltaNA
	// when the baseline value is zero
	Deltas map[string]string `json:"deltas"`
}

// ReportSummary names the overall winner per broad area.
type ReportSummary struct {
	Throughput string `json:"throughput"`
	Latency    string `json:"latency"`
	Resources  string `json:"resources"`
}
