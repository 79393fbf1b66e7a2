package worker_test

import (
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/squadscrape/squadpanel/internal/execution/worker"
	"github.com/squadscrape/squadpanel/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawn(t *testing.T, cmd string, args ...string) *worker.Process {
	p, err := worker.Spawn(worker.StartConfig{Cmd: cmd, Args: args}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		p.Terminate()
		p.Close()
	})

	return p
}

func readAll(t *testing.T, p *worker.Process) []string {
	var lines []string
	for {
		line, err := p.ReadLine()
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestProc_Spawn_IsAlive(t *testing.T) {
	p := spawn(t, "sleep", "10")

	assert.NotZero(t, p.Pid())
	assert.True(t, util.IsProcessAlive(p.Pid()))
}

func TestProc_Spawn_FailsIfCommandEmpty(t *testing.T) {
	_, err := worker.Spawn(worker.StartConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, worker.ErrEmptyCommand)
}

func TestProc_Spawn_FailsIfCommandNotFound(t *testing.T) {
	_, err := worker.Spawn(worker.StartConfig{Cmd: "squadpanel-missing-worker"}, zap.NewNop())
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestProc_ReadLine_MergesStdoutAndStderr(t *testing.T) {
	p := spawn(t, "sh", "-c", "echo one; echo two >&2; echo three")

	assert.Equal(t, []string{"one", "two", "three"}, readAll(t, p))
}

func TestProc_ReadLine_ReturnsTrailingLine(t *testing.T) {
	p := spawn(t, "sh", "-c", `printf "first\nsecond"`)

	assert.Equal(t, []string{"first", "second"}, readAll(t, p))

	// the stream is not restartable
	_, err := p.ReadLine()
	assert.ErrorIs(t, err, io.EOF)
}

func TestProc_ReadLine_StripsCarriageReturn(t *testing.T) {
	p := spawn(t, "sh", "-c", `printf "windows\r\n\n"`)

	assert.Equal(t, []string{"windows", ""}, readAll(t, p))
}

func TestProc_ReadLine_ReadsLongLines(t *testing.T) {
	p := spawn(t, "sh", "-c", "head -c 200000 /dev/zero | tr '\\000' a; echo")

	lines := readAll(t, p)
	require.Len(t, lines, 1)
	assert.Equal(t, strings.Repeat("a", 200000), lines[0])
}

func TestProc_Spawn_PassesEnvAndCwd(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	p, err := worker.Spawn(worker.StartConfig{
		Cmd:  "sh",
		Args: []string{"-c", `echo "$SQUADPANEL_TEST"; pwd`},
		Cwd:  dir,
		Env:  map[string]string{"SQUADPANEL_TEST": "value"},
	}, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, []string{"value", dir}, readAll(t, p))
}

func TestProc_Wait_ReturnsExitCode(t *testing.T) {
	p := spawn(t, "sh", "-c", "exit 3")

	evt, err := p.Wait()
	require.NoError(t, err)
	require.NotNil(t, evt.Code)
	assert.Equal(t, 3, evt.ExitCode())
	assert.Nil(t, evt.Signal)
	assert.False(t, evt.Success())

	// waiting again returns the cached event
	again, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, evt, again)
}

func TestProc_Wait_ReportsSuccess(t *testing.T) {
	p := spawn(t, "echo", "done")

	assert.Equal(t, []string{"done"}, readAll(t, p))

	evt, err := p.Wait()
	require.NoError(t, err)
	assert.True(t, evt.Success())
}

func TestProc_Terminate_SendsTerminationSignal(t *testing.T) {
	p := spawn(t, "sleep", "10")

	require.NoError(t, p.Terminate())

	evt, err := p.Wait()
	require.NoError(t, err)
	require.NotNil(t, evt.Signal)
	assert.Equal(t, syscall.SIGTERM, syscall.Signal(*evt.Signal))
	assert.Nil(t, evt.Code)
	assert.Equal(t, -1, evt.ExitCode())

	require.Eventually(t, func() bool {
		return !util.IsProcessAlive(p.Pid())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProc_Terminate_LetsWorkerCleanUp(t *testing.T) {
	p := spawn(t, "sh", "-c", "trap 'echo cleanup; exit 3' TERM; echo ready; while :; do sleep 0.1; done")

	line, err := p.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "ready", line)

	require.NoError(t, p.Terminate())

	assert.Equal(t, []string{"cleanup"}, readAll(t, p))

	evt, err := p.Wait()
	require.NoError(t, err)
	assert.Nil(t, evt.Signal)
	assert.Equal(t, 3, evt.ExitCode())
}

func TestProc_Terminate_AlreadyExited(t *testing.T) {
	p := spawn(t, "true")

	_, err := p.Wait()
	require.NoError(t, err)

	assert.NoError(t, p.Terminate())
}

func TestProc_Close_IsIdempotent(t *testing.T) {
	p := spawn(t, "true")

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
