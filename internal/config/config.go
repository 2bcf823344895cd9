package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries process-wide settings sourced from the environment.
// Per-worker settings live in the fleet file; these are the fallbacks
// applied to any worker that leaves them unset.
type Config struct {
	FleetFile string
	LogLevel  string
	Debug     bool

	WorkerHost          string
	HealthPath          string
	StartupTimeout      time.Duration
	HealthCheckInterval time.Duration
	MaxRestartAttempts  int
	BackoffBase         float64

	MaxConnections int
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// A single worker described entirely by environment variables, used
	// when no fleet file exists.
	WorkerName    string
	WorkerPort    int
	WorkerCommand string
	WorkerArgs    []string
}

func Load() (*Config, error) {
	cfg := &Config{
		FleetFile: os.Getenv("CTXFLEET_CONFIG"),
		LogLevel:  os.Getenv("CTXFLEET_LOG_LEVEL"),
		Debug:     os.Getenv("CTXFLEET_DEBUG") == "true",

		WorkerHost:          envString("CTXFLEET_WORKER_HOST", "127.0.0.1"),
		HealthPath:          envString("CTXFLEET_HEALTH_PATH", "/health"),
		StartupTimeout:      envDuration("CTXFLEET_STARTUP_TIMEOUT", 30*time.Second),
		HealthCheckInterval: envDuration("CTXFLEET_HEALTH_CHECK_INTERVAL", 10*time.Second),
		MaxRestartAttempts:  envInt("CTXFLEET_MAX_RESTART_ATTEMPTS", 3),
		BackoffBase:         envFloat("CTXFLEET_BACKOFF_BASE", 2.0),

		MaxConnections: envInt("CTXFLEET_MAX_CONNECTIONS", 4),
		RequestTimeout: envDuration("CTXFLEET_REQUEST_TIMEOUT", 30*time.Second),
		RetryAttempts:  envInt("CTXFLEET_RETRY_ATTEMPTS", 3),
		RetryDelay:     envDuration("CTXFLEET_RETRY_DELAY", 500*time.Millisecond),

		WorkerName:    envString("CTXFLEET_WORKER_NAME", "worker"),
		WorkerPort:    envInt("CTXFLEET_WORKER_PORT", 0),
		WorkerCommand: os.Getenv("CTXFLEET_WORKER_COMMAND"),
		WorkerArgs:    strings.Fields(os.Getenv("CTXFLEET_WORKER_ARGS")),
	}

	if cfg.FleetFile == "" {
		cfg.FleetFile = "ctxfleet.yaml"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// EnvWorker returns the env-described single worker, when one is configured.
func (c *Config) EnvWorker() (WorkerSpec, bool) {
	if c.WorkerCommand == "" || c.WorkerPort <= 0 {
		return WorkerSpec{}, false
	}
	return WorkerSpec{
		Name:    c.WorkerName,
		Command: c.WorkerCommand,
		Args:    c.WorkerArgs,
		Port:    c.WorkerPort,
	}, true
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ignoring %s=%q: %v\n", key, v, err)
		return fallback
	}
	return d
}
