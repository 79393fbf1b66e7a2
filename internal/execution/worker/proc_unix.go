//go:build unix

package worker

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func initCmd(cmd *exec.Cmd) {
	// run the worker in its own process group, so
	// termination also reaches its children
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func terminate(process *os.Process) error {
	err := sendSignal(process.Pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		// exited in the meantime
		return nil
	}

	return err
}

func sendSignal(pid int, signal syscall.Signal) error {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		// Negative pid sends signal to all in process group
		return syscall.Kill(-pgid, signal)
	}

	return syscall.Kill(pid, signal)
}
