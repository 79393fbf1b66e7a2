package shell_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/squadscrape/squadpanel/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func TestShell_Run_ReturnsRequestedExitCode(t *testing.T) {
	stopped := false

	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return shutdowner.Shutdown(fx.ExitCode(3))
				},
				OnStop: func(context.Context) error {
					stopped = true
					return nil
				},
			})
		}),
	)

	exitErr, ok := shell.AsExitError(err)
	require.True(t, ok)
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.True(t, stopped)
}

func TestShell_Run_ZeroExitCode(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return shutdowner.Shutdown()
				},
			})
		}),
	)

	assert.NoError(t, err)
}

func TestShell_Run_StartFailure(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(),
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return errors.New("boom")
				},
			})
		}),
	)

	assert.True(t, shell.IsExitError(err))
}

func TestAsExitError(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", shell.NewExitError(2))

	exitErr, ok := shell.AsExitError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.ExitCode)

	_, ok = shell.AsExitError(errors.New("other"))
	assert.False(t, ok)

	_, ok = shell.AsExitError(nil)
	assert.False(t, ok)
}
