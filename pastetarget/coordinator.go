// Package pastetarget decides when it is safe to send the paste keystroke.
package pastetarget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"markestedt/clipkeeper/platform"
)

// ForegroundView is the part of the foreground tracker the coordinator reads
type ForegroundView interface {
	CurrentForeground() platform.Handle
	LastExternalForeground() platform.Handle
	// IsManagerWindow covers this process's windows and the UI host window
	IsManagerWindow(h platform.Handle) bool
	OnForegroundChanged(fn func(platform.Handle)) (cancel func())
}

// Coordinator freezes the window that should receive the next paste
type Coordinator struct {
	view ForegroundView
	log  *slog.Logger

	mu     sync.Mutex
	frozen bool
	target platform.Handle
}

// New creates a coordinator over a foreground view
func New(view ForegroundView, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		view: view,
		log:  logger.With("component", "pastetarget"),
	}
}

// Freeze captures the paste target when the manager UI becomes visible.
// Calling it while frozen keeps the original target.
func (c *Coordinator) Freeze() {
	// Tracker reads take the tracker's own lock; do them before ours
	target := c.view.LastExternalForeground()
	if target == 0 {
		target = c.view.CurrentForeground()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return
	}
	c.frozen = true
	c.target = target
	c.log.Debug("Paste target frozen", "target", target)
}

// Unfreeze clears the paste target when the UI hides
func (c *Coordinator) Unfreeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = false
	c.target = 0
}

// Target returns the frozen paste target
func (c *Coordinator) Target() (platform.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.frozen
}

// ready is the readiness predicate: an exact target match, or any
// foreground window that is not a manager window. Tabbed hosts can change
// handle identity between freeze and paste.
func (c *Coordinator) ready(current platform.Handle) bool {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()

	if target != 0 && current == target {
		return true
	}
	return current != 0 && !c.view.IsManagerWindow(current)
}

// IsReadyToPaste evaluates readiness against the current foreground
func (c *Coordinator) IsReadyToPaste() (bool, platform.Handle) {
	current := c.view.CurrentForeground()
	return c.ready(current), current
}

// WaitUntilReadyToPaste blocks until the paste target is back in the
// foreground, timeout elapses or ctx is done. On timeout or cancellation it
// returns false and the last observed foreground window.
func (c *Coordinator) WaitUntilReadyToPaste(ctx context.Context, timeout time.Duration) (bool, platform.Handle) {
	if ok, current := c.IsReadyToPaste(); ok {
		return true, current
	}

	readyCh := make(chan platform.Handle, 1)
	cancel := c.view.OnForegroundChanged(func(h platform.Handle) {
		if c.ready(h) {
			select {
			case readyCh <- h:
			default:
			}
		}
	})
	defer cancel()

	// The foreground may have changed between the first check and subscribing
	if ok, current := c.IsReadyToPaste(); ok {
		return true, current
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case h := <-readyCh:
		return true, h
	case <-timer.C:
		return false, c.view.CurrentForeground()
	case <-ctx.Done():
		return false, c.view.CurrentForeground()
	}
}
