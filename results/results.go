package results

// This file contains shared utilities for persisting and loading benchmark
// results and comparison reports.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/brokerbench/brokerbench/model"
)

// DefaultRoot is the directory results are written to, relative to the
// working directory.
const DefaultRoot = "results"

// Entry is one persisted benchmark result and where it lives.
type Entry struct {
	Result   model.BenchmarkResult
	FullPath string
}

// Save writes a benchmark result to root/<timestamp>-<platform>-<shortid>/
// result.json and returns the directory. Every run is saved, aborted ones
// included: no run is allowed to vanish silently.
func Save(logger zerolog.Logger, root string, res model.BenchmarkResult) (string, error) {
	shortID := res.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	runName := fmt.Sprintf("%s-%s-%s", res.StartTime.Format("20060102-150405"), res.Platform, shortID)
	runDir := filepath.Join(root, runName)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create result directory: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	path := filepath.Join(runDir, "result.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}

	logger.Debug().Str("dir", runDir).Str("id", res.ID).Msg("Recorded benchmark result")
	return runDir, nil
}

// SaveReport writes a comparison report next to the results it was derived
// from and returns its path.
func SaveReport(logger zerolog.Logger, root string, report model.ComparisonReport) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}
	name := fmt.Sprintf("comparison-%s.json", report.GeneratedAt.Format("20060102-150405"))
	path := filepath.Join(root, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Recorded comparison report")
	return path, nil
}

// LoadEntries loads all persisted results under root, newest first. A
// missing root directory is not an error, just an empty history.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var entries []Entry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			resultPath := filepath.Join(path, "result.json")
			if _, err := os.Stat(resultPath); err == nil {
				res, err := LoadResult(resultPath)
				if err != nil {
					logger.Warn().Err(err).Str("path", resultPath).Msg("Failed to parse result.json")
					return nil
				}
				entries = append(entries, Entry{Result: res, FullPath: path})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk results directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Result.StartTime.After(entries[j].Result.StartTime)
	})
	return entries, nil
}

// LoadResult parses one persisted result file.
func LoadResult(path string) (model.BenchmarkResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.BenchmarkResult{}, err
	}
	var res model.BenchmarkResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.BenchmarkResult{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return res, nil
}

// LoadReport parses one persisted comparison report.
func LoadReport(path string) (model.ComparisonReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ComparisonReport{}, err
	}
	var report model.ComparisonReport
	if err := json.Unmarshal(data, &report); err != nil {
		return model.ComparisonReport{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return report, nil
}

// Since filters entries to those started after the cutoff.
func Since(entries []Entry, cutoff time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Result.StartTime.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
