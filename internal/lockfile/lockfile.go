// Package lockfile guards the DONNA state directory against concurrent
// instances. The lock is a non-blocking flock, so the kernel drops it when
// the process exits however it exits; the file itself only carries the
// holder's PID for diagnostics.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the file created inside the state directory.
const LockFileName = "donna.lock"

// Lock is a held flock on the state directory.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes an exclusive lock on the state directory, creating the
// directory if needed. If another process holds the lock it returns a
// *LockError describing the holder.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)
	// No O_TRUNC here: truncating before the flock check would wipe the
	// holder's PID from the file we are about to report on.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		lockErr := &LockError{LockPath: path, Holder: holderInfo(path), Cause: err}
		slog.Error("lockfile: state directory already locked", "lockPath", path, "holder", lockErr.Holder)
		return nil, lockErr
	}
	if err := file.Truncate(0); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to truncate lock file %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(file, "pid=%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}
	// Sync failures are not fatal; the flock is what actually protects us.
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile: sync failed", "error", err, "lockPath", path)
	}
	slog.Debug("lockfile: acquired", "lockPath", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Release drops the flock and removes the lock file. Safe to call more than
// once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile: unlock failed", "error", err, "lockPath", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Warn("lockfile: close failed", "error", err, "lockPath", l.path)
	}
	if err := os.Remove(l.path); err != nil {
		slog.Warn("lockfile: remove failed", "error", err, "lockPath", l.path)
	}
	l.file = nil
	slog.Debug("lockfile: released", "lockPath", l.path)
	return nil
}

// LockError reports a lock held by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another DONNA instance is already running (lock file %s", e.LockPath)
	if e.Holder != "" {
		msg += ", held by " + e.Holder
	}
	return msg + "); remove the lock file only if the holder is gone"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// holderInfo reads the lock file and reports the holding PID, noting when
// that process no longer exists and the lock is stale.
func holderInfo(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	content := strings.TrimSpace(string(data))
	pidStr, ok := strings.CutPrefix(content, "pid=")
	if !ok {
		return content
	}
	pid, err := strconv.Atoi(strings.TrimSpace(pidStr))
	if err != nil {
		return content
	}
	// Signal 0 checks for existence without delivering anything.
	if proc, err := os.FindProcess(pid); err == nil && proc.Signal(syscall.Signal(0)) == nil {
		return fmt.Sprintf("PID %d", pid)
	}
	return fmt.Sprintf("PID %d (stale)", pid)
}
