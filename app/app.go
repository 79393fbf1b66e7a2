package app

import (
	"io"

	"github.com/squadscrape/squadpanel/config"
	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
	"github.com/squadscrape/squadpanel/internal/logsink"
	"github.com/squadscrape/squadpanel/internal/shell"
	"github.com/squadscrape/squadpanel/util/conf"
	"github.com/squadscrape/squadpanel/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SinkParams defines the dependencies for the log sink.
type SinkParams struct {
	fx.In

	// Writers are provided by the command modules, e.g. the console
	Writers []io.Writer `group:"log_writers"`

	Log *zap.Logger
}

func NewLifecycleSink(params SinkParams, lc fx.Lifecycle) *logsink.Sink {
	sink := logsink.New(logsink.Params{
		Writers: params.Writers,
		Log:     params.Log,
	})

	lc.Append(fx.StopHook(sink.Close))

	return sink
}

// AsLogWriter annotates a constructor of an io.Writer so its result
// receives the panel log.
func AsLogWriter(f any) any {
	return fx.Annotate(f, fx.ResultTags(`group:"log_writers"`))
}

func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	sharedModule := fx.Module(
		"shared",
		// provide global config
		fx.Supply(config),
		// provide panel config
		fx.Supply(config.Panel),
		// provide log sink, closed after the supervisor stopped
		fx.Provide(NewLifecycleSink),
		fx.Invoke(func(*logsink.Sink) {}),
		// the sink receives all slot notifications
		fx.Provide(func(sink *logsink.Sink) supervisor.Listener {
			return sink
		}),
		// provide supervisor
		fx.Provide(supervisor.NewLifecycleSupervisor),
	)

	return shell.New(log, sharedModule), nil
}
