package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonInfoRoundTrip(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "supervisor.pid")
	info := &DaemonInfo{
		PID:       os.Getpid(),
		Worker:    "embeddings",
		WorkerDir: "/tmp/ctxfleet/embeddings",
		LogFile:   "/tmp/ctxfleet/embeddings/supervisor.log",
		PIDFile:   pidFile,
		StartedAt: time.Now().Truncate(time.Second),
	}

	require.NoError(t, writePIDFile(pidFile, info))

	got, err := ReadDaemonInfo(pidFile)
	require.NoError(t, err)
	assert.Equal(t, info.PID, got.PID)
	assert.Equal(t, info.Worker, got.Worker)
	assert.True(t, info.StartedAt.Equal(got.StartedAt))
}

func TestReadDaemonInfoErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadDaemonInfo(filepath.Join(dir, "absent.pid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read PID file")

	garbled := filepath.Join(dir, "garbled.pid")
	require.NoError(t, os.WriteFile(garbled, []byte("not json"), 0644))
	_, err = ReadDaemonInfo(garbled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse PID file")
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, IsProcessRunning(os.Getpid()), "our own process is running")
	assert.False(t, IsProcessRunning(1<<30), "absurd pid must not resolve")
}

func TestStopDaemonStalePIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "supervisor.pid")
	require.NoError(t, writePIDFile(pidFile, &DaemonInfo{
		PID:    1 << 30,
		Worker: "ghost",
	}))

	err := StopDaemon(pidFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not running")
	assert.NoFileExists(t, pidFile, "stale PID file must be removed")
}
