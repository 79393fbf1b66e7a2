package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/squadscrape/squadpanel/config"
	"github.com/squadscrape/squadpanel/internal/shell"
	"github.com/squadscrape/squadpanel/util/conf"
	"github.com/squadscrape/squadpanel/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	appName  = "squadpanel"
	appUsage = `A control panel that runs scraper workers in two slots and
streams their live output.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "config",
				Usage:   "load the configuration from a json or .env file.",
				Aliases: []string{"c"},
				EnvVars: []string{"SQUADPANEL_CONFIG"},
			},
			// panel flags
			&cli.StringFlag{
				Name:     "source-url",
				Usage:    "the base url start requests must point below.",
				Category: "panel",
			},
			&cli.StringFlag{
				Name:     "interpreter",
				Usage:    "the interpreter used to run worker scripts, e.g. python3.",
				Category: "panel",
			},
			&cli.StringSliceFlag{
				Name:     "interpreter-arg",
				Usage:    "additional arguments to pass to the interpreter.",
				Category: "panel",
			},
			&cli.StringFlag{
				Name:     "worker-1",
				Usage:    "the default worker of slot 1.",
				Category: "panel",
			},
			&cli.StringFlag{
				Name:     "worker-2",
				Usage:    "the default worker of slot 2.",
				Category: "panel",
			},
			&cli.PathFlag{
				Name:     "cwd",
				Usage:    "the working directory of the workers.",
				Category: "panel",
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// parse config using defaults, config file, env and flags
			cfg, err := conf.Parse[config.Config](conf.ParseOptions{
				Cli: ctx,
				CliMap: map[string]string{
					"source-url":      "panel.source_url",
					"interpreter":     "panel.interpreter",
					"interpreter-arg": "panel.interpreter_args",
					"worker-1":        "panel.workers.1",
					"worker-2":        "panel.workers.2",
					"cwd":             "panel.cwd",
				},
				Defaults:  config.DefaultConfig,
				EnvPrefix: config.EnvPrefix,
				FileName:  ctx.Path("config"),
				Log:       log,
			})
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

func Execute(params ExecuteParams) {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	os.Exit(run(context.Background(), os.Args))
}

func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return 0
	}

	// if app exited with ExitError, exit with given exit code
	if exitErr, ok := shell.AsExitError(err); ok {
		return exitErr.ExitCode
	}

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// otherwise, exit with exit code 1
	return 1
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
