package cmd

import (
	"github.com/squadscrape/squadpanel/app"
	"github.com/squadscrape/squadpanel/app/standalone"
	"github.com/squadscrape/squadpanel/config"
	"github.com/squadscrape/squadpanel/util/conf"
	"github.com/squadscrape/squadpanel/util/logging"
	"github.com/urfave/cli/v2"
)

var (
	serveCmdDescription = `The serve command starts the http control API of the panel.
	Clients start and cancel workers in the two slots and follow
	their live output on the /events websocket.

	The command will launch the http server and blocks until it
	is interrupted. Running workers are asked to terminate and
	awaited before the command exits.`
	serveCmd = &cli.Command{
		Name:        "serve",
		Usage:       "Start the http control API.",
		Description: serveCmdDescription,
		Action:      serveAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Aliases:  []string{"H"},
				Usage:    "The host to listen on. (default: localhost)",
				Category: "http",
				EnvVars:  []string{"HTTP_HOST"},
			},
			&cli.IntFlag{
				Name:     "port",
				Aliases:  []string{"P"},
				Usage:    "The port to listen on. (default: 8080)",
				Category: "http",
				EnvVars:  []string{"HTTP_PORT"},
			},
			&cli.BoolFlag{
				Name:     "h2c",
				Usage:    "Enable HTTP/2 cleartext upgrade.",
				Category: "http",
				EnvVars:  []string{"HTTP_H2C"},
			},
			&cli.StringSliceFlag{
				Name:     "cors-origin",
				Usage:    "An origin allowed to call the API from a browser. Repeatable, * allows all.",
				Category: "http",
				EnvVars:  []string{"HTTP_CORS_ORIGINS"},
			},
		},
	}
)

func serveAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	cfg, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return err
	}

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	// flags override the http config parsed on startup
	serveConfig, err := conf.Parse[standalone.Config](conf.ParseOptions{
		Cli: ctx,
		CliMap: map[string]string{
			"host":        "http.host",
			"port":        "http.port",
			"h2c":         "http.h2c",
			"cors-origin": "http.cors.allowed_origins",
		},
		Defaults: conf.MergeDefaults("http", conf.DefaultConfig{
			"host":                 cfg.Http.Host,
			"port":                 cfg.Http.Port,
			"h2c":                  cfg.Http.H2c,
			"cors.allowed_origins": cfg.Http.Cors.AllowedOrigins,
		}),
		EnvPrefix: config.EnvPrefix,
		Log:       log,
	})
	if err != nil {
		return err
	}

	log.Info("starting control API")

	return app.Run(ctx.Context, standalone.Module(serveConfig))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, serveCmd)
}
