package cli

// This file contains the report and list commands plus the text rendering
// shared with run/compare output.

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brokerbench/brokerbench/model"
	"github.com/brokerbench/brokerbench/results"
)

func (a *App) report(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one report file argument")
	}
	report, err := results.LoadReport(ctx.Args().First())
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func (a *App) list(ctx *cli.Context) error {
	filterPlatform := ctx.String("platform")
	limit := ctx.Int("limit")

	entries, err := results.LoadEntries(a.logger, ctx.String("results-dir"))
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	var filtered []results.Entry
	for _, entry := range entries {
		if filterPlatform == "" || entry.Result.Platform == filterPlatform {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		if filterPlatform != "" {
			fmt.Printf("No results found for platform: %s\n", filterPlatform)
		} else {
			fmt.Println("No results found")
		}
		return nil
	}

	display := filtered
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Printf("\n=== Results (%d total) ===\n\n", len(filtered))
	for _, entry := range display {
		res := entry.Result
		status := "✓"
		if res.State != model.RunStateComplete {
			status = "✗"
		}
		shortID := res.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		fmt.Printf("%s  %s  %-12s  sent=%d recv=%d loss=%d  id=%s\n",
			status, res.StartTime.Format("2006-01-02 15:04:05"), res.Platform,
			res.Producer.Sent, res.Consumer.Received, res.Loss, shortID)
		if res.Error != "" {
			fmt.Printf("   Error: %s\n", res.Error)
		}
	}
	return nil
}

func printResult(res model.BenchmarkResult) {
	fmt.Printf("\n=== %s (%s) ===\n", res.Platform, res.State)
	if res.Error != "" {
		fmt.Printf("Error: %s\n", res.Error)
	}
	fmt.Printf("Messages sent:      %d (%d failed)\n", res.Producer.Sent, res.Producer.Failed)
	fmt.Printf("Messages received:  %d (loss %d)\n", res.Consumer.Received, res.Loss)
	fmt.Printf("Throughput:         %.2f msg/s, %.2f MB/s\n", res.Producer.Throughput, res.Producer.BandwidthMB)
	if res.Consumer.Latency.Count > 0 {
		l := res.Consumer.Latency
		fmt.Printf("End-to-end latency: min=%s avg=%s p95=%s p99=%s max=%s\n",
			formatLatency(l.Min), formatLatency(l.Avg), formatLatency(l.P95), formatLatency(l.P99), formatLatency(l.Max))
	}
	if res.Resources.Count > 0 {
		fmt.Printf("Resources:          cpu avg=%.1f%% max=%.1f%%, mem avg=%s\n",
			res.Resources.CPUAvg*100, res.Resources.CPUMax*100, formatBytes(res.Resources.MemoryAvg))
	}
}

func printReport(report model.ComparisonReport) {
	fmt.Printf("\n=== Comparison (baseline: %s) ===\n\n", report.Baseline)

	for _, name := range []string{
		model.CategoryThroughput,
		model.CategoryBandwidth,
		model.CategoryLatencyAvg,
		model.CategoryLatencyP99,
		model.CategoryLoss,
		model.CategoryCPU,
		model.CategoryMemory,
	} {
		cat, ok := report.Categories[name]
		if !ok {
			continue
		}
		fmt.Printf("%-12s winner: %s\n", name, cat.Winner)
		for _, p := range report.Platforms {
			marker := " "
			if p == cat.Winner {
				marker = "*"
			}
			fmt.Printf("  %s %-12s %12.2f  (%s)\n", marker, p, cat.Values[p], cat.Deltas[p])
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("-", 40))
	fmt.Printf("Throughput winner: %s\n", report.Summary.Throughput)
	fmt.Printf("Latency winner:    %s\n", report.Summary.Latency)
	fmt.Printf("Resources winner:  %s\n", report.Summary.Resources)
}

func formatLatency(d time.Duration) string {
	return d.Round(10 * time.Microsecond).String()
}

func formatBytes(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
