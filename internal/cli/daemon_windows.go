//go:build windows
// +build windows

package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const (
	createNewProcessGroup uint32 = 0x00000200
	detachedProcess       uint32 = 0x00000008
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

	// Windows-specific detachment
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup | detachedProcess,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to fork daemon process: %w", err)
	}

	// Parent process exits
	os.Exit(0)
	return nil
}
