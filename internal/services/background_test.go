package services

import (
	"os"
	"path/filepath"
	"testing"

	. "aktis-launcher-jira/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refreshConfig(t *testing.T) *StorageConfig {
	t.Helper()
	return &StorageConfig{
		DatabasePath: filepath.Join(t.TempDir(), "launcher.db"),
	}
}

func TestIsRefreshRunningWithoutPidfile(t *testing.T) {
	config := refreshConfig(t)

	assert.False(t, IsRefreshRunning(config))
}

func TestIsRefreshRunningCleansGarbagePidfile(t *testing.T) {
	config := refreshConfig(t)
	pidfile := filepath.Join(filepath.Dir(config.DatabasePath), "update.pid")
	require.NoError(t, os.WriteFile(pidfile, []byte("not-a-pid"), 0644))

	assert.False(t, IsRefreshRunning(config))

	_, err := os.Stat(pidfile)
	assert.True(t, os.IsNotExist(err), "garbage pidfile gets removed")
}

func TestIsRefreshRunningCleansDeadPidfile(t *testing.T) {
	config := refreshConfig(t)
	pidfile := filepath.Join(filepath.Dir(config.DatabasePath), "update.pid")

	// Way beyond kernel.pid_max, so no live process can own it
	require.NoError(t, os.WriteFile(pidfile, []byte("99999999"), 0644))

	assert.False(t, IsRefreshRunning(config))

	_, err := os.Stat(pidfile)
	assert.True(t, os.IsNotExist(err), "stale pidfile gets removed")
}

func TestPidFileLifecycle(t *testing.T) {
	config := refreshConfig(t)

	require.NoError(t, WritePidFile(config))
	assert.True(t, IsRefreshRunning(config), "own pid counts as a live refresh")

	RemovePidFile(config)
	assert.False(t, IsRefreshRunning(config))
}

func TestStartBackgroundRefreshSkipsWhenAlreadyRunning(t *testing.T) {
	config := DefaultConfig()
	config.Storage = *refreshConfig(t)

	// The current process poses as the running refresher
	require.NoError(t, WritePidFile(&config.Storage))
	t.Cleanup(func() { RemovePidFile(&config.Storage) })

	require.NoError(t, StartBackgroundRefresh(config, "AB", 100))

	assert.True(t, IsRefreshRunning(&config.Storage), "pidfile untouched by the no-op spawn")
}
