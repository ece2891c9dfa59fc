package shutdown

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestShutdown_SetsFlagAndClosesDone(t *testing.T) {
	c := New(nil)
	assert.False(t, c.Requested())

	c.RequestShutdown()
	assert.True(t, c.Requested())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() channel did not close")
	}
}

func TestRequestShutdown_SafeToCallTwice(t *testing.T) {
	c := New(nil)
	assert.NotPanics(t, func() {
		c.RequestShutdown()
		c.RequestShutdown()
	})
}

func TestInvalidateLock_ActsLikeGracefulShutdown(t *testing.T) {
	c := New(nil)
	c.InvalidateLock()
	assert.True(t, c.Requested())
}

func TestHandle_SIGTERM_RequestsShutdownWithoutImmediateExit(t *testing.T) {
	var immediateCalls atomic.Int32
	c := New(func() { immediateCalls.Add(1) })
	c.handle(syscall.SIGTERM)
	assert.True(t, c.Requested())
	assert.Equal(t, int32(0), immediateCalls.Load())
}

func TestHandle_ThreeInterruptsWithinWindow_TriggersImmediateExit(t *testing.T) {
	var immediateCalls atomic.Int32
	c := New(func() { immediateCalls.Add(1) })
	sig := syscall.SIGINT
	c.handle(sig)
	c.handle(sig)
	c.handle(sig)
	assert.Equal(t, int32(1), immediateCalls.Load())
}

func TestHandle_TwoInterruptsOutsideWindow_DoesNotTrigger(t *testing.T) {
	var immediateCalls atomic.Int32
	c := New(func() { immediateCalls.Add(1) })
	sig := syscall.SIGINT
	c.handle(sig)
	time.Sleep(ImmediateWindow + 50*time.Millisecond)
	c.handle(sig)
	assert.Equal(t, int32(0), immediateCalls.Load())
}
