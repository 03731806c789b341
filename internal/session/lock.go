package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/logging"
)

// LockFileName is the name of the lock file within the compiler storage directory.
const LockFileName = "flixbridge.lock"

// ErrStorageLocked is returned when another live session owns the storage directory.
var ErrStorageLocked = fmt.Errorf("%w: storage directory is locked", errors.ErrSessionActive)

// Lock marks a storage directory as owned by one session, so that at most one
// compiler runs per directory.
type Lock struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	lockFile string
	logger   *logging.Logger
}

// AcquireLock takes the lock on dir for sessionID. A lock left behind by a
// dead process is removed first. Returns ErrStorageLocked if a live session
// holds it. logger may be nil.
func AcquireLock(dir, sessionID string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	lockPath := filepath.Join(dir, LockFileName)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			logger.Error("failed to acquire lock",
				"session_id", sessionID,
				"holder", existing.SessionID,
				"pid", existing.PID,
			)
			return nil, fmt.Errorf("%w: session %s (PID %d on %s)",
				ErrStorageLocked, existing.SessionID, existing.PID, existing.Hostname)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "session_id", sessionID, "old_pid", existing.PID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		SessionID: sessionID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL loses the race cleanly against a concurrent acquirer.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrStorageLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Debug("storage lock acquired", "session_id", sessionID, "path", lockPath)
	return lock, nil
}

// Release removes the lock file if this session still owns it.
// Safe to call multiple times and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadLock(l.lockFile)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID || existing.SessionID != l.SessionID {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil {
		return err
	}
	l.logger.Debug("storage lock released", "session_id", l.SessionID)
	return nil
}

// ReadLock reads a lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	lock.logger = logging.NopLogger()
	return &lock, nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without affecting the process.
	return process.Signal(syscall.Signal(0)) == nil
}
