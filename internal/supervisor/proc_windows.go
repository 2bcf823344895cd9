//go:build windows
// +build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

const createNewProcessGroup uint32 = 0x00000200

// setupProcessGroup creates the worker in its own process group.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup,
	}
}

// killProcessGroup terminates the process. Windows has no SIGTERM; graceful
// and forced termination both kill the process.
func killProcessGroup(pid int, graceful bool) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
