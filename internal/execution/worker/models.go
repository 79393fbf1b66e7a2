package worker

import (
	"errors"
	"os/exec"
	"syscall"
)

var (
	ErrEmptyCommand = errors.New("empty worker command")
)

type StartConfig struct {
	// Cmd is the path or name of the binary to execute
	Cmd string `conf:"cmd"`

	// Cwd is the working directory in which
	// the binary should be executed
	Cwd string `conf:"cwd"`

	// Args is the list of arguments to pass to the command
	Args []string `conf:"args"`

	// Env is a map of environment variables to set
	// in addition to the inherited environment
	Env map[string]string `conf:"env"`
}

// Handle is a spawned worker process and its combined output stream.
type Handle interface {
	// Pid returns the OS process id of the worker.
	Pid() int

	// ReadLine returns the next line of combined stdout/stderr output,
	// without the line terminator. It returns io.EOF once the worker
	// closed its output.
	ReadLine() (string, error)

	// Wait blocks until the worker exited and returns its exit event.
	// Subsequent calls return the same event.
	Wait() (ExitEvent, error)

	// Terminate asks the worker to exit. It does not wait. On unix the
	// process group receives SIGTERM; on Windows the process is killed.
	Terminate() error

	// Close releases the output stream.
	Close() error
}

type ExitEvent struct {
	// Code is the exit code of the process
	Code *int

	// Signal is the signal that caused the process to exit
	Signal *int
}

// ExitCode returns the exit code, or -1 if the process
// was terminated by a signal.
func (e ExitEvent) ExitCode() int {
	if e.Code != nil {
		return *e.Code
	}

	return -1
}

// Success reports whether the process exited with code 0.
func (e ExitEvent) Success() bool {
	return e.Code != nil && *e.Code == 0
}

// MARK: - Helpers

func getExitEvent(err error) (ExitEvent, error) {
	var cell int
	var exitStatus *int
	var signo *int

	if err == nil {
		// the process exited successfully, set the exit code to 0
		exitStatus = &cell
		return ExitEvent{Code: exitStatus}, nil
	}

	exitError, ok := err.(*exec.ExitError)
	if !ok {
		// waiting failed, the exit status is unknown
		return ExitEvent{}, err
	}

	if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		// the process was terminated by a signal
		cell = int(status.Signal())
		signo = &cell
	} else if code := exitError.ExitCode(); code >= 0 {
		// the process exited with an exit code
		cell = code
		exitStatus = &cell
	}

	if signo == nil && exitStatus == nil {
		// could not determine the exit status or signal,
		// set exit status to 1
		cell = 1
		exitStatus = &cell
	}

	return ExitEvent{
		Code:   exitStatus,
		Signal: signo,
	}, nil
}
