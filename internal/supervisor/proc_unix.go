//go:build !windows
// +build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup configures the command to create a new process group so
// the worker and all its children can be signalled together.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup terminates the process and all its children. If graceful
// is true, sends SIGTERM; otherwise sends SIGKILL.
func killProcessGroup(pid int, graceful bool) error {
	signal := syscall.SIGKILL
	if graceful {
		signal = syscall.SIGTERM
	}
	// Negative PID signals the entire process group
	return syscall.Kill(-pid, signal)
}
