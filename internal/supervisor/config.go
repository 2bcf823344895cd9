package supervisor

import (
	"fmt"
	"time"
)

const (
	// Defaults applied by Validate for zero-valued fields.
	defaultHealthPath          = "/health"
	defaultStartupTimeout      = 30 * time.Second
	defaultHealthCheckInterval = 10 * time.Second
	defaultMaxRestartAttempts  = 3
	defaultBackoffBase         = 2.0

	// startupPollInterval is how often the health path is probed while a
	// worker is STARTING.
	startupPollInterval = 500 * time.Millisecond

	// probeTimeout bounds a single health probe.
	probeTimeout = 2 * time.Second

	// restartPause separates stop and start during a restart.
	restartPause = 1 * time.Second

	// restartBackoffMax caps the exponential restart backoff.
	restartBackoffMax = 5 * time.Minute

	// unhealthyThreshold is the number of consecutive failed health checks
	// before a RUNNING worker is marked UNHEALTHY.
	unhealthyThreshold = 3
)

// WorkerConfig describes how to launch and monitor one worker server.
// Immutable after Register.
type WorkerConfig struct {
	Name                string
	Host                string
	Port                int
	HealthPath          string
	StartupTimeout      time.Duration
	HealthCheckInterval time.Duration
	MaxRestartAttempts  int
	BackoffBase         float64

	// Command and Args launch the worker process. Env is merged on top of
	// the supervisor's own environment at spawn time; workers receive all
	// configuration through these variables.
	Command string
	Args    []string
	Env     map[string]string
}

// Validate checks required fields and fills in defaults.
func (c *WorkerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("worker config: name is required")
	}
	if c.Command == "" {
		return fmt.Errorf("worker config %q: command is required", c.Name)
	}
	if c.Port <= 0 {
		return fmt.Errorf("worker config %q: port is required", c.Name)
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.HealthPath == "" {
		c.HealthPath = defaultHealthPath
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = defaultStartupTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.MaxRestartAttempts <= 0 {
		c.MaxRestartAttempts = defaultMaxRestartAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return nil
}

// BaseURL returns the worker's HTTP base URL.
func (c *WorkerConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// HealthURL returns the worker's health endpoint URL.
func (c *WorkerConfig) HealthURL() string {
	return c.BaseURL() + c.HealthPath
}
