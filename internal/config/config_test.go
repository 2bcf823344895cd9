package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ctxfleet.yaml", cfg.FleetFile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "127.0.0.1", cfg.WorkerHost)
	assert.Equal(t, "/health", cfg.HealthPath)
	assert.Equal(t, 30*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 10*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 3, cfg.MaxRestartAttempts)
	assert.Equal(t, 2.0, cfg.BackoffBase)
	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CTXFLEET_CONFIG", "/etc/ctxfleet/fleet.yaml")
	t.Setenv("CTXFLEET_LOG_LEVEL", "debug")
	t.Setenv("CTXFLEET_DEBUG", "true")
	t.Setenv("CTXFLEET_WORKER_HOST", "10.1.2.3")
	t.Setenv("CTXFLEET_STARTUP_TIMEOUT", "45s")
	t.Setenv("CTXFLEET_MAX_RESTART_ATTEMPTS", "7")
	t.Setenv("CTXFLEET_BACKOFF_BASE", "1.5")
	t.Setenv("CTXFLEET_MAX_CONNECTIONS", "16")
	t.Setenv("CTXFLEET_RETRY_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/etc/ctxfleet/fleet.yaml", cfg.FleetFile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "10.1.2.3", cfg.WorkerHost)
	assert.Equal(t, 45*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 7, cfg.MaxRestartAttempts)
	assert.Equal(t, 1.5, cfg.BackoffBase)
	assert.Equal(t, 16, cfg.MaxConnections)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
}

func TestEnvWorker(t *testing.T) {
	t.Setenv("CTXFLEET_WORKER_NAME", "solo")
	t.Setenv("CTXFLEET_WORKER_PORT", "9100")
	t.Setenv("CTXFLEET_WORKER_COMMAND", "/usr/local/bin/ctx-worker")
	t.Setenv("CTXFLEET_WORKER_ARGS", "--model small --cache /tmp")

	cfg, err := Load()
	require.NoError(t, err)

	spec, ok := cfg.EnvWorker()
	require.True(t, ok)
	assert.Equal(t, "solo", spec.Name)
	assert.Equal(t, 9100, spec.Port)
	assert.Equal(t, "/usr/local/bin/ctx-worker", spec.Command)
	assert.Equal(t, []string{"--model", "small", "--cache", "/tmp"}, spec.Args)
}

func TestEnvWorkerRequiresCommandAndPort(t *testing.T) {
	t.Setenv("CTXFLEET_WORKER_COMMAND", "/usr/local/bin/ctx-worker")

	cfg, err := Load()
	require.NoError(t, err)

	_, ok := cfg.EnvWorker()
	assert.False(t, ok, "a port is required for the env-described worker")
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CTXFLEET_MAX_CONNECTIONS", "many")
	t.Setenv("CTXFLEET_STARTUP_TIMEOUT", "soon")
	t.Setenv("CTXFLEET_BACKOFF_BASE", "steep")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxConnections)
	assert.Equal(t, 30*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 2.0, cfg.BackoffBase)
}
