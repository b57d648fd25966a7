// Package foreground keeps a live view of the OS foreground window.
package foreground

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"markestedt/clipkeeper/platform"
)

// Tracker records the current foreground window and the most recent one
// that was not a manager window. Manager windows are this process's own
// windows plus one registered host window, such as the browser showing
// the dashboard.
type Tracker struct {
	src platform.ForegroundSource
	pid uint32
	log *slog.Logger

	// mu guards the subscription and the handles
	mu           sync.Mutex
	unsubscribe  func() error
	current      platform.Handle
	lastExternal platform.Handle
	manager      platform.Handle

	listenersMu sync.Mutex
	listeners   map[int]func(platform.Handle)
	nextID      int
}

// New creates a tracker for the current process
func New(src platform.ForegroundSource, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		src:       src,
		pid:       uint32(os.Getpid()),
		log:       logger.With("component", "foreground"),
		listeners: make(map[int]func(platform.Handle)),
	}
}

// Start subscribes to foreground changes. Calling Start while running is a no-op.
func (t *Tracker) Start() error {
	h := t.src.Foreground()
	own := t.IsOwnProcessWindow(h)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.unsubscribe != nil {
		return nil
	}
	own = own || (h != 0 && h == t.manager)

	unsubscribe, err := t.src.Subscribe(t.onForeground)
	if err != nil {
		return fmt.Errorf("failed to subscribe to foreground changes: %w", err)
	}
	t.unsubscribe = unsubscribe
	t.current = h
	if h != 0 && !own {
		t.lastExternal = h
	}
	return nil
}

// Stop removes the subscription. Calling Stop when stopped is a no-op.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe == nil {
		return nil
	}
	if err := unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from foreground changes: %w", err)
	}
	return nil
}

// CurrentForeground returns the last reported foreground window
func (t *Tracker) CurrentForeground() platform.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// LastExternalForeground returns the most recent foreground window that was not a manager window
func (t *Tracker) LastExternalForeground() platform.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastExternal
}

// IsOwnProcessWindow reports whether the window belongs to this process
func (t *Tracker) IsOwnProcessWindow(h platform.Handle) bool {
	if h == 0 {
		return false
	}
	pid, err := t.src.ProcessID(h)
	if err != nil {
		return false
	}
	return pid == t.pid
}

// SetManagerWindow registers h as the window hosting the manager UI. Zero
// clears it.
func (t *Tracker) SetManagerWindow(h platform.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manager != h {
		t.log.Debug("Manager window changed", "window", h)
	}
	t.manager = h
}

// ManagerWindow returns the registered manager host window
func (t *Tracker) ManagerWindow() platform.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager
}

// IsManagerWindow reports whether h belongs to this process or is the
// registered manager host window
func (t *Tracker) IsManagerWindow(h platform.Handle) bool {
	if h == 0 {
		return false
	}
	t.mu.Lock()
	manager := t.manager
	t.mu.Unlock()
	return h == manager || t.IsOwnProcessWindow(h)
}

// Activate asks the OS to bring h to the foreground
func (t *Tracker) Activate(h platform.Handle) error {
	if err := t.src.Activate(h); err != nil {
		return fmt.Errorf("failed to activate window %#x: %w", h, err)
	}
	return nil
}

// OnForegroundChanged registers fn for every foreground change. fn runs on an
// arbitrary thread and must not block.
func (t *Tracker) OnForegroundChanged(fn func(platform.Handle)) (cancel func()) {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()

	id := t.nextID
	t.nextID++
	t.listeners[id] = fn

	return func() {
		t.listenersMu.Lock()
		defer t.listenersMu.Unlock()
		delete(t.listeners, id)
	}
}

// listenerCount is used by tests to check for leaked subscriptions
func (t *Tracker) listenerCount() int {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	return len(t.listeners)
}

func (t *Tracker) onForeground(h platform.Handle) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Foreground callback panicked", "panic", r)
		}
	}()

	// The process lookup is a syscall; keep it outside the lock
	own := t.IsOwnProcessWindow(h)

	t.mu.Lock()
	t.current = h
	if h != 0 && !own && h != t.manager {
		t.lastExternal = h
	}
	t.mu.Unlock()

	t.listenersMu.Lock()
	fns := make([]func(platform.Handle), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.listenersMu.Unlock()

	for _, fn := range fns {
		fn(h)
	}
}
