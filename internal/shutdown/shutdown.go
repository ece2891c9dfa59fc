// Package shutdown implements the archiver's signal/shutdown coordinator:
// a single atomic shutdown flag plus an interrupt counter with a sliding
// window, distinguishing a graceful-shutdown request from an immediate
// exit.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ImmediateWindow is the sliding window within which three interrupts
// trigger an immediate, non-graceful exit.
const ImmediateWindow = 2 * time.Second

// ImmediateThreshold is the number of interrupts within ImmediateWindow
// that triggers an immediate exit.
const ImmediateThreshold = 3

// Coordinator tracks shutdown state shared across all components. All
// components consult Requested() between indivisible units of work, never
// mid-task.
type Coordinator struct {
	requested atomic.Bool
	requestOnce sync.Once
	requestedCh chan struct{}

	mu        sync.Mutex
	interrupt []time.Time

	immediateFn func() // called when the immediate-exit threshold is hit; overridable for tests

	sigCh chan os.Signal
	done  chan struct{}
}

// New constructs a Coordinator. immediateFn is invoked (once) when three
// interrupts land within the sliding window; production callers pass a
// function that calls os.Exit(130).
func New(immediateFn func()) *Coordinator {
	if immediateFn == nil {
		immediateFn = func() { os.Exit(130) }
	}
	return &Coordinator{immediateFn: immediateFn, requestedCh: make(chan struct{})}
}

// Requested reports whether a graceful shutdown has been requested.
func (c *Coordinator) Requested() bool {
	return c.requested.Load()
}

// Done returns a channel that is closed the moment a graceful shutdown is
// requested, so stage engines can select on it alongside run-context
// cancellation instead of polling Requested().
func (c *Coordinator) Done() <-chan struct{} {
	return c.requestedCh
}

// RequestShutdown sets the graceful-shutdown flag and closes Done(). Safe
// to call more than once.
func (c *Coordinator) RequestShutdown() {
	c.requested.Store(true)
	c.requestOnce.Do(func() { close(c.requestedCh) })
}

// NotifySignal registers SIGINT/SIGTERM handling. SIGTERM and the first
// SIGINT set the graceful flag; a third SIGINT within ImmediateWindow
// triggers immediateFn without waiting for in-progress work to drain. Call
// Stop to unregister.
func (c *Coordinator) NotifySignal() {
	c.sigCh = make(chan os.Signal, 4)
	c.done = make(chan struct{})
	signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig, ok := <-c.sigCh:
				if !ok {
					return
				}
				c.handle(sig)
			case <-c.done:
				return
			}
		}
	}()
}

// Stop unregisters signal handling.
func (c *Coordinator) Stop() {
	if c.sigCh != nil {
		signal.Stop(c.sigCh)
	}
	if c.done != nil {
		close(c.done)
	}
}

func (c *Coordinator) handle(sig os.Signal) {
	if sig == syscall.SIGTERM {
		c.RequestShutdown()
		return
	}

	// SIGINT: track sliding window, first interrupt is graceful.
	c.RequestShutdown()

	c.mu.Lock()
	now := time.Now()
	c.interrupt = append(c.interrupt, now)
	cutoff := now.Add(-ImmediateWindow)
	kept := c.interrupt[:0]
	for _, t := range c.interrupt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.interrupt = kept
	hit := len(c.interrupt) >= ImmediateThreshold
	c.mu.Unlock()

	if hit {
		c.immediateFn()
	}
}

// InvalidateLock is called by the lock watcher when it detects the lock
// file is no longer valid (deleted or overwritten by another process). It
// is treated the same as a graceful shutdown request.
func (c *Coordinator) InvalidateLock() {
	c.RequestShutdown()
}
