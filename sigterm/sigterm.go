// Package sigterm implements the graceful-shutdown ambient utility spec §5
// names: a context cancelled by SIGTERM/SIGINT, used by cmd/registry-server
// to stop accepting new connections and drain the docgen orchestrator
// before exiting. The teacher has no dedicated package for this either —
// it's a few lines over signal.NotifyContext, not an extension point.
package sigterm

import (
	"context"
	"os/signal"
	"syscall"
)

// Waiter carries a context cancelled on SIGTERM or SIGINT, and the stop
// function to release the underlying signal.Notify registration.
type Waiter struct {
	Ctx  context.Context
	stop context.CancelFunc
}

// New registers for SIGTERM/SIGINT against ctx's parent.
func New(ctx context.Context) *Waiter {
	c, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	return &Waiter{Ctx: c, stop: stop}
}

// Release unregisters the signal handler. Call once shutdown is complete.
func (w *Waiter) Release() { w.stop() }
