package cli

// This file contains the platform start/stop commands for managing
// deployments outside of a benchmark run.

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/brokerbench/brokerbench/platform"
)

func (a *App) platformStart(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one platform argument (supported: %v)", platform.Names())
	}
	p, err := platform.Lookup(ctx.Args().First())
	if err != nil {
		return err
	}

	manager := platform.NewManager(a.logger)
	h, err := manager.Start(ctx.Context, p.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s started (endpoint %s)\n", p.ID, h.Endpoint())
	return nil
}

func (a *App) platformStop(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one platform argument (supported: %v)", platform.Names())
	}
	p, err := platform.Lookup(ctx.Args().First())
	if err != nil {
		return err
	}

	// Stop does not require the platform to have been started by this
	// process; compose teardown is effective either way.
	manager := platform.NewManager(a.logger)
	h, err := manager.Handle(p.ID)
	if err != nil {
		return err
	}
	manager.Stop(ctx.Context, h)
	fmt.Printf("%s stopped\n", p.ID)
	return nil
}
