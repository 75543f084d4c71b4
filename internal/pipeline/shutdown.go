package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// Await timeouts for the in-flight tasks. If a task fails to stop in time
// the coordinator moves on; the timeout is a safety valve, not an error.
const (
	captureAwaitTimeout = 2 * time.Second
	timerAwaitTimeout   = 1 * time.Second
)

// Coordinator tears down a run in a fixed order: cancel the in-flight tasks,
// await each with a bounded timeout, disconnect the source, then close the
// persist sink. Shutdown is idempotent; concurrent calls collapse into one
// pass, so resources are released exactly once. It is synchronous and safe
// to invoke from a signal handler even when no UI loop is running.
type Coordinator struct {
	logger *slog.Logger

	cancel      func()
	captureDone <-chan struct{}
	timerDone   <-chan struct{}
	source      ByteSource
	sink        func() PersistSink

	once sync.Once
}

// CoordinatorOptions lists the resources to tear down. Any field may be
// left zero when the run does not use it.
type CoordinatorOptions struct {
	Logger      *slog.Logger
	Cancel      func()
	CaptureDone <-chan struct{}
	TimerDone   <-chan struct{}
	Source      ByteSource
	// Sink is late-bound because the persist sink only exists after a
	// successful setup.
	Sink func() PersistSink
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:      logger,
		cancel:      opts.Cancel,
		captureDone: opts.CaptureDone,
		timerDone:   opts.TimerDone,
		source:      opts.Source,
		sink:        opts.Sink,
	}
}

// Shutdown runs the teardown sequence once. Extra calls block until the
// first pass completes and then return.
func (c *Coordinator) Shutdown() {
	c.once.Do(c.run)
}

func (c *Coordinator) run() {
	c.logger.Info("shutting down")

	if c.cancel != nil {
		c.cancel()
	}

	awaitDone(c.captureDone, captureAwaitTimeout, "capture task", c.logger)
	awaitDone(c.timerDone, timerAwaitTimeout, "timer task", c.logger)

	if c.source != nil {
		if err := c.source.Disconnect(); err != nil {
			c.logger.Warn("source disconnect failed", "error", err)
		}
	}
	if c.sink != nil {
		if sink := c.sink(); sink != nil {
			if err := sink.Close(); err != nil {
				c.logger.Warn("persist sink close failed", "error", err)
			}
		}
	}

	c.logger.Info("shutdown complete")
}

// awaitDone waits for a task to signal completion, giving up after the
// timeout so cleanup never blocks process exit indefinitely.
func awaitDone(done <-chan struct{}, timeout time.Duration, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		logger.Warn("task did not stop within timeout", "task", name, "timeout", timeout)
	}
}
