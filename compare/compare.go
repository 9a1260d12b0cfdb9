package compare

import (
	"errors"
	"fmt"
	"time"

	"github.com/brokerbench/brokerbench/model"
)

// ErrIncomparableConfig reports an attempt to compare results that were
// produced under different test configurations.
var ErrIncomparableConfig = errors.New("results were produced under incomparable configurations")

type direction int

const (
	higherIsBetter direction = iota
	lowerIsBetter
)

// category binds a metric to its comparison direction and extraction.
type category struct {
	name    string
	dir     direction
	extract func(model.BenchmarkResult) float64
}

var categories = []category{
	{model.CategoryThroughput, higherIsBetter, func(r model.BenchmarkResult) float64 { return r.Producer.Throughput }},
	{model.CategoryBandwidth, higherIsBetter, func(r model.BenchmarkResult) float64 { return r.Producer.BandwidthMB }},
	{model.CategoryLatencyAvg, lowerIsBetter, func(r model.BenchmarkResult) float64 { return millis(r.Consumer.Latency.Avg) }},
	{model.CategoryLatencyP99, lowerIsBetter, func(r model.BenchmarkResult) float64 { return millis(r.Consumer.Latency.P99) }},
	{model.CategoryLoss, lowerIsBetter, func(r model.BenchmarkResult) float64 { return float64(r.Loss) }},
	{model.CategoryCPU, lowerIsBetter, func(r model.BenchmarkResult) float64 { return r.Resources.CPUAvg }},
	{model.CategoryMemory, lowerIsBetter, func(r model.BenchmarkResult) float64 { return float64(r.Resources.MemoryAvg) }},
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Compare aggregates two or more Results sharing one configuration into a
// ranked, percentage-delta report. baseline designates the 0% reference
// platform; empty means the first result. Ties are declared "no winner"
// rather than picking arbitrarily.
func Compare(results []model.BenchmarkResult, baseline string) (model.ComparisonReport, error) {
	if len(results) < 2 {
		return model.ComparisonReport{}, fmt.Errorf("need at least two results to compare, got %d", len(results))
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if seen[r.Platform] {
			return model.ComparisonReport{}, fmt.Errorf("duplicate result for platform %s", r.Platform)
		}
		seen[r.Platform] = true
		if !r.Config.SameShape(results[0].Config) {
			return model.ComparisonReport{}, fmt.Errorf("%s vs %s: %w",
				results[0].Platform, r.Platform, ErrIncomparableConfig)
		}
	}

	if baseline == "" {
		baseline = results[0].Platform
	} else if !seen[baseline] {
		return model.ComparisonReport{}, fmt.Errorf("baseline platform %s is not among the results", baseline)
	}

	// Baseline first, remaining platforms in input order.
	platforms := make([]string, 0, len(results))
	platforms = append(platforms, baseline)
	byPlatform := make(map[string]model.BenchmarkResult, len(results))
	for _, r := range results {
		byPlatform[r.Platform] = r
		if r.Platform != baseline {
			platforms = append(platforms, r.Platform)
		}
	}

	report := model.ComparisonReport{
		GeneratedAt: time.Now(),
		Config:      results[0].Config,
		Baseline:    baseline,
		Platforms:   platforms,
		Categories:  make(map[string]model.CategoryResult, len(categories)),
	}

	for _, cat := range categories {
		values := make(map[string]float64, len(results))
		for _, p := range platforms {
			values[p] = cat.extract(byPlatform[p])
		}
		report.Categories[cat.name] = model.CategoryResult{
			Winner: winner(platforms, values, cat.dir),
			Values: values,
			Deltas: deltas(platforms, values, baseline),
		}
	}

	report.Summary = model.ReportSummary{
		Throughput: report.Categories[model.CategoryThroughput].Winner,
		Latency:    report.Categories[model.CategoryLatencyAvg].Winner,
		Resources:  resourceWinner(report),
	}
	return report, nil
}

// winner returns the platform with the best value in the category's
// direction, or NoWinner when the best value is shared.
func winner(platforms []string, values map[string]float64, dir direction) string {
	best := platforms[0]
	for _, p := range platforms[1:] {
		if better(values[p], values[best], dir) {
			best = p
		}
	}
	for _, p := range platforms {
		if p != best && values[p] == values[best] {
			return model.NoWinner
		}
	}
	return best
}

func better(a, b float64, dir direction) bool {
	if dir == higherIsBetter {
		return a > b
	}
	return a < b
}

// deltas computes (candidate - baseline) / baseline * 100 per platform.
// A zero baseline makes the delta undefined, reported as N/A rather than 0.
func deltas(platforms []string, values map[string]float64, baseline string) map[string]string {
	out := make(map[string]string, len(platforms))
	base := values[baseline]
	for _, p := range platforms {
		if base == 0 {
			out[p] = model.DeltaNA
			continue
		}
		out[p] = fmt.Sprintf("%+.1f%%", (values[p]-base)/base*100)
	}
	return out
}

// resourceWinner declares a resource efficiency winner only when CPU and
// memory agree.
func resourceWinner(report model.ComparisonReport) string {
	cpu := report.Categories[model.CategoryCPU].Winner
	mem := report.Categories[model.CategoryMemory].Winner
	if cpu == mem && cpu != model.NoWinner {
		return cpu
	}
	return model.NoWinner
}
