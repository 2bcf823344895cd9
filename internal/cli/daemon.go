package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const daemonChildEnv = "CTXFLEET_DAEMON_CHILD"

// DaemonInfo describes a background worker supervisor, persisted next to
// the worker it manages.
type DaemonInfo struct {
	PID       int       `json:"pid"`
	Worker    string    `json:"worker"`
	WorkerDir string    `json:"worker_dir"`
	LogFile   string    `json:"log_file"`
	PIDFile   string    `json:"pid_file"`
	StartedAt time.Time `json:"started_at"`
}

// workerDir returns the per-worker state directory, creating it if needed.
func workerDir(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".ctxfleet", "workers", name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create worker directory: %w", err)
	}
	return dir, nil
}

func writePIDFile(pidFile string, info *DaemonInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal daemon info: %w", err)
	}
	if err := os.WriteFile(pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadDaemonInfo reads daemon info from a PID file
func ReadDaemonInfo(pidFile string) (*DaemonInfo, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PID file: %w", err)
	}

	var info DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse PID file: %w", err)
	}

	return &info, nil
}

// IsProcessRunning checks if a process with the given PID is running
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// StopDaemon stops a running background worker supervisor.
func StopDaemon(pidFile string) error {
	info, err := ReadDaemonInfo(pidFile)
	if err != nil {
		return err
	}

	if !IsProcessRunning(info.PID) {
		os.Remove(pidFile)
		return fmt.Errorf("worker supervisor (PID %d) is not running, removed stale PID file", info.PID)
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	// SIGTERM first; the supervisor stops its worker before exiting.
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			process.Signal(syscall.SIGKILL)
			return fmt.Errorf("worker supervisor did not stop gracefully, forced kill")
		case <-ticker.C:
			if !IsProcessRunning(info.PID) {
				os.Remove(pidFile)
				return nil
			}
		}
	}
}

// isDaemonChild checks if this is the daemon child process
func isDaemonChild() bool {
	return os.Getenv(daemonChildEnv) == "1"
}
