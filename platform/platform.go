package platform

import (
	"context"
	"errors"

	"markestedt/clipkeeper/clip"
)

// ErrUnsupported is returned by collaborators that have no implementation on this OS
var ErrUnsupported = errors.New("not supported on this platform")

// Handle is an opaque native window handle. It is compared, never closed.
type Handle uintptr

// KeyEvent is a single low-level keyboard event
type KeyEvent struct {
	VKey uint16
	Down bool
	// Injected is set for events produced by this process's Injector
	Injected bool
}

// KeyboardHook installs a process-wide low-level keyboard hook.
// The handler runs on the hook thread and returns true to suppress the event.
type KeyboardHook interface {
	Install(handler func(KeyEvent) bool) error
	Uninstall() error
}

// Injector sends synthetic key input
type Injector interface {
	// Tap sends a down/up pair for vk
	Tap(vk uint16) error
	// KeyUp sends a lone key-up for vk
	KeyUp(vk uint16) error
	// SendPaste sends the platform paste accelerator
	SendPaste() error
}

// ForegroundSource reports foreground window changes
type ForegroundSource interface {
	// Subscribe installs a system-wide foreground-change callback.
	// The callback may run on any thread.
	Subscribe(fn func(Handle)) (unsubscribe func() error, err error)
	Foreground() Handle
	ProcessID(h Handle) (uint32, error)
	// Activate brings h to the foreground
	Activate(h Handle) error
}

// Clipboard provides clipboard access
type Clipboard interface {
	Read() (clip.Payload, error)
	Write(p clip.Payload) error
	// Watch signals every clipboard change until ctx is done
	Watch(ctx context.Context) (<-chan struct{}, error)
}
