package worker

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// CREATE_NO_WINDOW
const createNoWindow = 0x08000000

func initCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// Windows offers no termination signal for a process without a
// console, so this ends the process right away.
func terminate(process *os.Process) error {
	err := process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}

	return err
}
