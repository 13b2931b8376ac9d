package services

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	. "aktis-launcher-jira/internal/common"
)

// Background cache refreshes run as a detached copy of this binary so
// the launcher invocation can return its item list immediately. A
// pidfile next to the database marks a refresh in progress.

func pidFilePath(config *StorageConfig) string {
	return filepath.Join(filepath.Dir(config.DatabasePath), "update.pid")
}

// StartBackgroundRefresh spawns `self -update-cache project -total n`
// detached from the current process. A no-op when a refresh is already
// running.
func StartBackgroundRefresh(config *Config, projectKey string, total int) error {
	if IsRefreshRunning(&config.Storage) {
		return nil
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	cmd := exec.Command(self,
		"-update-cache", projectKey,
		"-total", strconv.Itoa(total))
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start background refresh: %w", err)
	}

	GetLogger().Debug().
		Str("project", projectKey).
		Int("pid", cmd.Process.Pid).
		Msg("Background refresh started")

	// The child owns the pidfile lifecycle from here
	return cmd.Process.Release()
}

// WritePidFile records the current process as the active refresher.
func WritePidFile(config *StorageConfig) error {
	if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(config), []byte(strconv.Itoa(os.Getpid())), 0644)
}

// RemovePidFile clears the refresh marker.
func RemovePidFile(config *StorageConfig) {
	_ = os.Remove(pidFilePath(config))
}

// IsRefreshRunning reports whether the pidfile names a live process.
// A stale pidfile (dead process) is cleaned up on the way through.
func IsRefreshRunning(config *StorageConfig) bool {
	data, err := os.ReadFile(pidFilePath(config))
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		_ = os.Remove(pidFilePath(config))
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		_ = os.Remove(pidFilePath(config))
		return false
	}

	// Signal 0 probes liveness without delivering anything
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = os.Remove(pidFilePath(config))
		return false
	}

	return true
}
