//go:build !windows
// +build !windows

package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Daemonize forks the current process into the background
func Daemonize() error {
	if isDaemonChild() {
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonChildEnv+"=1")

	// Detach from parent
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to fork daemon process: %w", err)
	}

	// Parent process exits
	os.Exit(0)
	return nil
}
