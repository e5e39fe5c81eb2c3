// Package lifecycle coordinates startup and shutdown of long-lived service
// handles: bounded connection retries, background startup hooks, readiness
// signals and ordered teardown.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutdownTimeout is returned when shutdown hooks outlive the deadline.
var ErrShutdownTimeout = errors.New("lifecycle: shutdown timed out")

// Coordinator runs startup hooks concurrently and holds a context that is
// cancelled when shutdown begins. Shutdown hooks are expected to block on
// Context().Done() and then release their resource.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	startup  sync.WaitGroup
	shutdown sync.WaitGroup
	ready    atomic.Bool
}

// New creates a coordinator with a fresh root context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{ctx: ctx, cancel: cancel}
}

func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn in the background; WaitForStartup blocks until all
// registered startup hooks return.
func (c *Coordinator) OnStartup(fn func()) {
	c.startup.Add(1)
	go func() {
		defer c.startup.Done()
		fn()
	}()
}

// OnShutdown runs fn in the background. fn should wait for Context().Done().
func (c *Coordinator) OnShutdown(fn func()) {
	c.shutdown.Add(1)
	go func() {
		defer c.shutdown.Done()
		fn()
	}()
}

func (c *Coordinator) WaitForStartup() {
	c.startup.Wait()
	c.ready.Store(true)
}

func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// Shutdown cancels the root context and waits up to timeout for shutdown hooks.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.ready.Store(false)
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.shutdown.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
