package console

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/squadscrape/squadpanel/app"
	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
	"github.com/squadscrape/squadpanel/util/logging"
)

// Outcome tracks the run started by the command.
type Outcome struct {
	mu  sync.Mutex
	run *supervisor.Run
}

// Result returns the result of the run and whether it completed.
func (o *Outcome) Result() (supervisor.RunResult, bool) {
	o.mu.Lock()
	run := o.run
	o.mu.Unlock()

	if run == nil {
		return supervisor.RunResult{}, false
	}

	select {
	case <-run.Done():
		return run.Result(), true
	default:
		return supervisor.RunResult{}, false
	}
}

// ExitCode returns the exit code of the command. A run that did not
// complete or was cancelled was interrupted by the user.
func (o *Outcome) ExitCode() int {
	result, ok := o.Result()
	if !ok || result.Cancelled {
		return 128 + int(syscall.SIGINT)
	}

	return ExitCode(result)
}

func (o *Outcome) set(run *supervisor.Run) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.run = run
}

// ExitCode maps a run result to the exit code of the command. It
// mirrors the exit code of the worker, or 128 plus the signal number
// if the worker was terminated by a signal.
func ExitCode(result supervisor.RunResult) int {
	switch {
	case result.Err != nil:
		return 1
	case result.Signal != nil:
		return 128 + *result.Signal
	default:
		return result.ExitCode
	}
}

type RunnerParams struct {
	fx.In

	Config     Config
	Outcome    *Outcome
	Supervisor supervisor.Supervisor
	Shutdowner fx.Shutdowner
	Log        *zap.Logger
}

// NewLifecycleRunner starts the worker once the app started and stops
// the app with the worker's exit code once the run completed.
func NewLifecycleRunner(params RunnerParams, lc fx.Lifecycle) {
	log := params.Log

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			run, err := params.Supervisor.Start(supervisor.SlotID(params.Config.Slot), supervisor.StartParams{
				Worker: params.Config.Worker,
				URL:    params.Config.URL,
				Output: params.Config.Output,
			})
			if err != nil {
				return err
			}

			log.Debug("run started", zap.String("run_id", run.ID()))

			params.Outcome.set(run)

			go func() {
				<-run.Done()

				result := run.Result()

				if err := params.Shutdowner.Shutdown(fx.ExitCode(ExitCode(result))); err != nil {
					log.Debug("shutdown request failed", zap.Error(err))
				}
			}()

			return nil
		},
	})
}

func Module(config Config, outcome *Outcome) fx.Option {
	return fx.Module(
		"run",
		// rename logger for module
		logging.DecorateLogger("run"),
		// provide config
		fx.Supply(config, outcome),
		// print the panel log to stdout
		fx.Provide(app.AsLogWriter(func() io.Writer { return os.Stdout })),
		// start the run
		fx.Invoke(NewLifecycleRunner),
	)
}
