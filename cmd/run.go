package cmd

import (
	"github.com/squadscrape/squadpanel/app"
	"github.com/squadscrape/squadpanel/app/console"
	"github.com/squadscrape/squadpanel/internal/shell"
	"github.com/squadscrape/squadpanel/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	runCmdDescription = `The run command starts a single worker in one slot and prints
its live output to stdout, just like the panel log.

The worker is invoked as <worker> --url <url> --output <dir>,
prefixed by the configured interpreter. Interrupting the
command asks the worker to terminate and waits for it to
exit. The command exits with the exit code of the worker.`
	runCmd = &cli.Command{
		Name:        "run",
		Usage:       "Run a single worker and print its output.",
		Description: runCmdDescription,
		Action:      runAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "slot",
				Aliases:  []string{"s"},
				Usage:    "The slot to run the worker in. Options: 1, 2.",
				Value:    1,
				Category: "run",
			},
			&cli.StringFlag{
				Name:     "worker",
				Aliases:  []string{"w"},
				Usage:    "The worker to run. Defaults to the configured worker of the slot.",
				Category: "run",
			},
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "The team or squad page to scrape.",
				Required: true,
				Category: "run",
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "The directory the worker writes its results to.",
				Required: true,
				Category: "run",
			},
		},
	}
)

func runAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	cfg := console.Config{
		Slot:   ctx.Int("slot"),
		Worker: ctx.String("worker"),
		URL:    ctx.String("url"),
		Output: ctx.String("output"),
	}

	log.Debug("starting run", zap.Int("slot", cfg.Slot), zap.String("url", cfg.URL))

	var outcome console.Outcome

	if err := app.Run(ctx.Context, console.Module(cfg, &outcome)); err != nil {
		return err
	}

	// the app was stopped by a signal before the run reported back
	if code := outcome.ExitCode(); code != 0 {
		return shell.NewExitError(code)
	}

	return nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, runCmd)
}
