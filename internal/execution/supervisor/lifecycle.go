package supervisor

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LifecycleParams defines the dependencies for the supervisor.
type LifecycleParams struct {
	fx.In

	// Config is the panel config
	Config Config

	// Listener receives all slot notifications
	Listener Listener

	// Log is the logger to use for the supervisor
	Log *zap.Logger
}

// NewLifecycleSupervisor creates a supervisor that shuts down all
// running workers when the app stops.
func NewLifecycleSupervisor(params LifecycleParams, lc fx.Lifecycle) Supervisor {
	s := New(Params{
		Config:   params.Config,
		Listener: params.Listener,
		Log:      params.Log,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})

	return s
}
