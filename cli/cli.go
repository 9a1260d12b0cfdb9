package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "brokerbench"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Benchmark and compare message broker deployments under identical load",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a benchmark against a single platform",
		ArgsUsage: "PLATFORM",
		Action:    app.runSingle,
		Flags:     append(loadFlags(), runFlags()...),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "compare",
		Usage:     "Run the same benchmark against several platforms in sequence and compare",
		ArgsUsage: "[PLATFORM...]",
		Description: `Runs the configured load profile against each named platform one after
another (never concurrently, so the platforms cannot contend for host
resources) and emits a comparison report.

With no arguments all supported platforms are compared.`,
		Action: app.runCompare,
		Flags: append(append(loadFlags(), runFlags()...),
			&cli.StringFlag{
				Name:  "baseline",
				Usage: "Platform percentage deltas are computed against (default: first platform)",
			},
			&cli.StringSliceFlag{
				Name:  "from-files",
				Usage: "Compare previously saved result.json files instead of running tests",
			},
		),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:  "platform",
		Usage: "Manage platform deployments directly",
		Subcommands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Start a platform and wait until it is ready",
				ArgsUsage: "PLATFORM",
				Action:    app.platformStart,
			},
			{
				Name:      "stop",
				Usage:     "Stop a running platform",
				ArgsUsage: "PLATFORM",
				Action:    app.platformStop,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "report",
		Usage:     "Render a previously saved comparison report",
		ArgsUsage: "REPORT_FILE",
		Action:    app.report,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous benchmark runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "platform",
				Aliases: []string{"p"},
				Usage:   "Filter by platform identifier",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "results-dir",
				Usage: "Directory results were saved to",
				Value: "results",
			},
		},
	})
	return app
}

// loadFlags configures the load profile; every flag overrides the chosen
// preset field-by-field.
func loadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "test",
			Aliases: []string{"t"},
			Usage:   "Load preset to start from (light, medium, heavy)",
			Value:   "medium",
		},
		&cli.DurationFlag{
			Name:  "duration",
			Usage: "Test duration (overrides preset)",
		},
		&cli.IntFlag{
			Name:  "rate",
			Usage: "Target aggregate messages per second (overrides preset)",
		},
		&cli.IntFlag{
			Name:  "message-size",
			Usage: "Message size in bytes (overrides preset)",
		},
		&cli.IntFlag{
			Name:  "threads",
			Usage: "Number of producer threads (overrides preset)",
		},
		&cli.IntFlag{
			Name:  "consumers",
			Usage: "Number of consumer workers (overrides preset)",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Delivery mode: sync or async (overrides preset)",
		},
		&cli.Int64Flag{
			Name:  "message-limit",
			Usage: "Stop after this many messages regardless of duration",
		},
	}
}

// runFlags configures run mechanics independent of the load profile.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "keep",
			Usage: "Leave the platform running after the test",
		},
		&cli.StringFlag{
			Name:  "results-dir",
			Usage: "Directory to save results to",
			Value: "results",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve live run metrics on this address (e.g. :9090)",
		},
		&cli.IntFlag{
			Name:  "partitions",
			Usage: "Partition count for the test topic",
			Value: 3,
		},
		&cli.IntFlag{
			Name:  "replication-factor",
			Usage: "Replication factor for the test topic",
			Value: 1,
		},
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}
