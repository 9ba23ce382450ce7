package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFile is created in the output directory while a command writes to it.
const LockFile = ".diyqa.lock"

// OutputLock is the lock file format. A second pipeline process pointed at the
// same output directory refuses to start while a live holder exists.
type OutputLock struct {
	Command   string    `json:"command"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireOutputLock claims dir for command. Stale locks left by dead local
// processes are overwritten. Returns the lock path for ReleaseOutputLock.
func AcquireOutputLock(dir, command, version string) (lockPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	lockPath = filepath.Join(dir, LockFile)

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing OutputLock
		if json.Unmarshal(data, &existing) == nil && existing.PID != os.Getpid() {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("output directory %s is in use by %q (PID %d on %s, started %s)",
					dir, existing.Command, existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
			}
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := OutputLock{
		Command:   command,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create output lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseOutputLock removes the lock file. Use defer.
func ReleaseOutputLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove output lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid exists on hostname. Remote hosts and
// permission errors count as alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
