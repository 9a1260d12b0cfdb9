package cli

// This file contains the run and compare command actions that drive the
// orchestrator against live platforms.

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brokerbench/brokerbench/bench"
	"github.com/brokerbench/brokerbench/compare"
	"github.com/brokerbench/brokerbench/model"
	"github.com/brokerbench/brokerbench/orchestrator"
	"github.com/brokerbench/brokerbench/platform"
	"github.com/brokerbench/brokerbench/results"
	"github.com/brokerbench/brokerbench/sampler"
)

func (a *App) runSingle(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one platform argument (supported: %v)", platform.Names())
	}
	p, err := platform.Lookup(ctx.Args().First())
	if err != nil {
		return err
	}
	cfg, err := testConfigFromFlags(ctx)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, metrics := a.buildOrchestrator(ctx)
	a.serveMetrics(ctx.String("metrics-addr"), metrics)

	res, runErr := orch.Run(runCtx, p.ID, cfg)
	if dir, err := results.Save(a.logger, ctx.String("results-dir"), res); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to save result")
	} else {
		a.logger.Info().Str("dir", dir).Msg("Result saved")
	}
	printResult(res)
	return runErr
}

func (a *App) runCompare(ctx *cli.Context) error {
	cfg, err := testConfigFromFlags(ctx)
	if err != nil {
		return err
	}
	baseline := ctx.String("baseline")
	resultsDir := ctx.String("results-dir")

	var runs []model.BenchmarkResult
	if files := ctx.StringSlice("from-files"); len(files) > 0 {
		for _, f := range files {
			res, err := results.LoadResult(f)
			if err != nil {
				return err
			}
			runs = append(runs, res)
		}
	} else {
		ids, err := platformArgs(ctx)
		if err != nil {
			return err
		}

		runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, metrics := a.buildOrchestrator(ctx)
		a.serveMetrics(ctx.String("metrics-addr"), metrics)

		all := orch.RunAll(runCtx, ids, cfg)
		for _, res := range all {
			if _, err := results.Save(a.logger, resultsDir, res); err != nil {
				a.logger.Warn().Err(err).Str("platform", res.Platform).Msg("Failed to save result")
			}
			printResult(res)
			if res.State == model.RunStateComplete {
				runs = append(runs, res)
			} else {
				a.logger.Warn().Str("platform", res.Platform).Str("error", res.Error).Msg("Excluding aborted run from comparison")
			}
		}
	}

	report, err := compare.Compare(runs, baseline)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}
	if path, err := results.SaveReport(a.logger, resultsDir, report); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to save report")
	} else {
		a.logger.Info().Str("path", path).Msg("Report saved")
	}
	printReport(report)
	return nil
}

// buildOrchestrator wires the production dependency set: docker-compose
// lifecycle, kafka topic admin, procfs sampling, kafka clients.
func (a *App) buildOrchestrator(ctx *cli.Context) (*orchestrator.Orchestrator, *bench.Metrics) {
	manager := platform.NewManager(a.logger)
	topics := platform.NewTopicAdmin(a.logger)
	metrics := bench.NewMetrics()

	orch := orchestrator.New(a.logger, manager, topics,
		a.samplerFactory(manager, time.Second),
		a.clientFactory(metrics))
	orch.Partitions = ctx.Int("partitions")
	orch.ReplicationFactor = ctx.Int("replication-factor")
	orch.OwnLifecycle = !ctx.Bool("keep")
	return orch, metrics
}

// samplerFactory binds the resource sampler to the started platform's
// broker container when its PID can be resolved; otherwise samples stay
// host-level, and without /proc the sampler degrades to timestamps only.
func (a *App) samplerFactory(manager *platform.Manager, interval time.Duration) orchestrator.SamplerFactory {
	return func(h *platform.Handle) *sampler.Sampler {
		pid := 0
		pidCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if p, err := manager.ContainerPID(pidCtx, h); err == nil {
			pid = p
		} else {
			a.logger.Debug().Err(err).Msg("Container PID unavailable, sampling host-level only")
		}
		collector, err := sampler.NewProcCollector(pid)
		if err != nil {
			a.logger.Warn().Err(err).Msg("No counter source available, resource samples will be empty")
			return sampler.New(a.logger, interval, sampler.NopCollector{})
		}
		return sampler.New(a.logger, interval, collector)
	}
}

func (a *App) serveMetrics(addr string, metrics *bench.Metrics) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		a.logger.Info().Str("addr", addr).Msg("Serving live metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()
}

// testConfigFromFlags starts from the chosen preset and applies per-flag
// overrides, then validates the combined configuration.
func testConfigFromFlags(ctx *cli.Context) (model.TestConfig, error) {
	cfg, err := model.Preset(ctx.String("test"))
	if err != nil {
		return model.TestConfig{}, err
	}
	if ctx.IsSet("duration") {
		cfg.Duration = ctx.Duration("duration")
	}
	if ctx.IsSet("rate") {
		cfg.MessageRate = ctx.Int("rate")
	}
	if ctx.IsSet("message-size") {
		cfg.MessageSize = ctx.Int("message-size")
	}
	if ctx.IsSet("threads") {
		cfg.ProducerThreads = ctx.Int("threads")
	}
	if ctx.IsSet("consumers") {
		cfg.Consumers = ctx.Int("consumers")
	}
	if ctx.IsSet("mode") {
		cfg.Mode = model.DeliveryMode(ctx.String("mode"))
	}
	if ctx.IsSet("message-limit") {
		cfg.MessageLimit = ctx.Int64("message-limit")
	}
	if err := cfg.Validate(); err != nil {
		return model.TestConfig{}, err
	}
	return cfg, nil
}

func platformArgs(ctx *cli.Context) ([]platform.ID, error) {
	args := ctx.Args().Slice()
	if len(args) == 0 {
		args = platform.Names()
	}
	ids := make([]platform.ID, 0, len(args))
	for _, arg := range args {
		p, err := platform.Lookup(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}
