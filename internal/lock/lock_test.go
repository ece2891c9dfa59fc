package lock

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archiver.lock")
	l := New(path)
	require.NoError(t, l.Acquire())

	pid, err := l.HolderPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, l.Valid())

	require.NoError(t, l.Release())
}

func TestAcquire_AlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archiver.lock")
	first := New(path)
	require.NoError(t, first.Acquire())
	defer first.Release()

	second := New(path)
	err := second.Acquire()
	require.Error(t, err)

	var heldErr *AlreadyHeldError
	require.ErrorAs(t, err, &heldErr)
	assert.Equal(t, os.Getpid(), heldErr.PID)
}

func TestValid_FalseAfterExternalDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archiver.lock")
	l := New(path)
	require.NoError(t, l.Acquire())
	defer l.Release()

	require.NoError(t, os.Remove(path))
	assert.False(t, l.Valid())
}

type invalidateRecorder struct {
	ch chan struct{}
}

func (r *invalidateRecorder) InvalidateLock() {
	close(r.ch)
}

func TestWatcher_SignalsOnInvalidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archiver.lock")
	l := New(path)
	require.NoError(t, l.Acquire())
	defer l.Release()

	rec := &invalidateRecorder{ch: make(chan struct{})}
	w := NewWatcher(l, rec, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	defer w.Stop()

	// Corrupt the lock file content out from under the watcher.
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))

	select {
	case <-rec.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not signal invalidation in time")
	}
}
