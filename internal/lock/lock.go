// Package lock implements the archiver's single-instance file lock: an
// OS-level advisory exclusive lock on a regular file whose content is the
// owning process's pid, plus a background watcher that verifies the lock
// is still held and signals the shutdown coordinator if it is not.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// AlreadyHeldError is returned by Acquire when another process already
// holds the lock. It carries the conflicting pid so callers can report it.
type AlreadyHeldError struct {
	Path string
	PID  int
}

func (e *AlreadyHeldError) Error() string {
	return fmt.Sprintf("lock %s already held by pid %d", e.Path, e.PID)
}

// FileLock is an exclusive, process-scoped advisory lock over a single
// regular file. The file's content is the owning pid.
type FileLock struct {
	path string
	file *os.File
	held bool
}

// New constructs a FileLock over path. The file is not touched until
// Acquire is called.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Acquire attempts to take the lock without blocking. On contention it
// returns an *AlreadyHeldError carrying the conflicting pid read from the
// lock file's current content.
func (l *FileLock) Acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readPID(f)
		f.Close()
		return &AlreadyHeldError{Path: l.path, PID: holder}
	}

	if err := f.Truncate(0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return fmt.Errorf("writing pid to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return fmt.Errorf("syncing lock file: %w", err)
	}

	l.file = f
	l.held = true
	return nil
}

// Release drops the lock and closes the underlying file descriptor. Safe to
// call on an exit path even if Acquire failed or was never called.
func (l *FileLock) Release() error {
	if !l.held || l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.held = false
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlocking: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock file: %w", closeErr)
	}
	return nil
}

// HolderPID reads the pid currently recorded in the lock file, whether or
// not this process holds the lock.
func (l *FileLock) HolderPID() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid from lock file: %w", err)
	}
	return pid, nil
}

// Valid reports whether the lock file still exists and still records this
// process's own pid — used by Watcher to detect external invalidation
// (e.g. the lock file was deleted or overwritten by another tool).
func (l *FileLock) Valid() bool {
	pid, err := l.HolderPID()
	if err != nil {
		return false
	}
	return pid == os.Getpid()
}

func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return 0
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	return pid
}
