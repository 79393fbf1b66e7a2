package worker

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Process is a worker process whose stdout and stderr
// are merged into a single stream.
type Process struct {
	pid     int
	process *os.Process

	output *os.File
	reader *bufio.Reader

	termination chan struct{}
	exit        ExitEvent
	waitErr     error

	closeOnce sync.Once
	closeErr  error

	log *zap.Logger
}

var _ Handle = (*Process)(nil)

// Spawn starts the worker process described by config. Both output
// streams of the child are connected to the write end of one pipe,
// so lines keep the order in which the worker wrote them.
func Spawn(config StartConfig, log *zap.Logger) (*Process, error) {
	if config.Cmd == "" {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(config.Cmd, config.Args...)

	if config.Env != nil {
		env := os.Environ()
		for k, v := range config.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	if config.Cwd != "" {
		cmd.Dir = config.Cwd
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd.Stdout = w
	cmd.Stderr = w

	initCmd(cmd)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}

	// the child owns its copy of the write end now. closing ours
	// lets the reader observe EOF once the worker closes its output.
	if err := w.Close(); err != nil {
		log.Warn("close pipe write end failed", zap.Error(err))
	}

	p := &Process{
		pid:         cmd.Process.Pid,
		process:     cmd.Process,
		output:      r,
		reader:      bufio.NewReader(r),
		termination: make(chan struct{}),
		log:         log.Named("proc").With(zap.Int("pid", cmd.Process.Pid)),
	}

	go func() {
		// block until the process exits
		err := cmd.Wait()

		p.exit, p.waitErr = getExitEvent(err)

		// release everyone waiting for the exit event
		close(p.termination)
	}()

	p.log.Debug("process started",
		zap.String("command", config.Cmd),
		zap.Strings("args", config.Args),
	)

	return p, nil
}

func (p *Process) Pid() int {
	return p.pid
}

// ReadLine reads the next line from the combined output stream. A
// trailing line without terminator is returned before io.EOF.
func (p *Process) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	return line, nil
}

// Wait blocks until the process has exited.
func (p *Process) Wait() (ExitEvent, error) {
	<-p.termination
	return p.exit, p.waitErr
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.termination
}

// Terminate sends a graceful termination request to the process. It
// reports success if the process already terminated.
func (p *Process) Terminate() error {
	select {
	case <-p.termination:
		p.log.Debug("process already terminated")
		return nil
	default:
		// continue
	}

	p.log.Info("sending termination request")

	if err := terminate(p.process); err != nil {
		p.log.Error("terminate failed", zap.Error(err))
		return err
	}

	return nil
}

// Close closes the read end of the output pipe. It is safe to call
// more than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.output.Close()
	})

	return p.closeErr
}
