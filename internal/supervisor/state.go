package supervisor

import (
	"context"
	"os/exec"
	"time"
)

// WorkerState is the lifecycle state of a supervised worker.
type WorkerState int

const (
	// StateStopped - not running, no process.
	StateStopped WorkerState = iota
	// StateStarting - process spawned, waiting for the health path to answer.
	StateStarting
	// StateRunning - process up and passing health checks.
	StateRunning
	// StateUnhealthy - process up but failing consecutive health checks.
	StateUnhealthy
	// StateStopping - graceful termination in progress.
	StateStopping
	// StateCrashed - startup failed or the process died before becoming ready.
	StateCrashed
)

// String returns the string representation of a WorkerState.
func (s WorkerState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateStopping:
		return "STOPPING"
	case StateCrashed:
		return "CRASHED"
	default:
		return "UNKNOWN"
	}
}

// WorkerStatus is a point-in-time snapshot of a worker, as reported by
// Status and AllStatus.
type WorkerStatus struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	PID                 int           `json:"pid,omitempty"`
	StartedAt           time.Time     `json:"started_at,omitempty"`
	Uptime              time.Duration `json:"uptime,omitempty"`
	LastHealthCheck     time.Time     `json:"last_health_check,omitempty"`
	HealthCheckFailures int           `json:"health_check_failures"`
	RestartCount        int           `json:"restart_count"`
	LastRestartAt       time.Time     `json:"last_restart_at,omitempty"`
	Error               string        `json:"error_message,omitempty"`

	// Live resource usage, populated only while the process is alive.
	CPUPercent  float64 `json:"cpu_percent,omitempty"`
	MemoryRSS   uint64  `json:"memory_rss,omitempty"`
	ThreadCount int32   `json:"threads,omitempty"`
}

// worker is the supervisor-internal runtime state for one registered worker.
// All fields are guarded by the Supervisor mutex; the health loop and the
// startup poller take the lock for every multi-field mutation.
type worker struct {
	cfg WorkerConfig

	state WorkerState
	cmd   *exec.Cmd
	pid   int

	startedAt       time.Time
	lastHealthCheck time.Time
	healthFailures  int
	restartCount    int
	lastRestartAt   time.Time
	lastErr         string

	// healthCancel stops this worker's health-check loop; nil when no loop
	// is running.
	healthCancel context.CancelFunc

	// waitErr receives the exec.Cmd.Wait result exactly once, then the
	// channel is closed. A fresh channel is created per spawn.
	waitErr chan error
}
