//go:build windows

package platform

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	setWinEventHook          = user32.NewProc("SetWinEventHook")
	unhookWinEvent           = user32.NewProc("UnhookWinEvent")
	getForegroundWindow      = user32.NewProc("GetForegroundWindow")
	getWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	setForegroundWindow      = user32.NewProc("SetForegroundWindow")
	bringWindowToTop         = user32.NewProc("BringWindowToTop")
	attachThreadInput        = user32.NewProc("AttachThreadInput")
	isIconic                 = user32.NewProc("IsIconic")
	showWindow               = user32.NewProc("ShowWindow")
)

const (
	eventSystemForeground = 0x0003
	wineventOutOfContext  = 0x0000
	swRestore             = 9
)

var (
	winEventCallbackOnce sync.Once
	winEventCallback     uintptr
	foregroundHandler    atomic.Pointer[func(Handle)]
)

// WindowsForeground implements ForegroundSource with SetWinEventHook
type WindowsForeground struct {
	mu     sync.Mutex
	thread *messageThread
}

// NewForegroundSource creates a new Windows foreground-change source
func NewForegroundSource() ForegroundSource {
	return &WindowsForeground{}
}

// Subscribe installs an EVENT_SYSTEM_FOREGROUND hook on a dedicated message thread
func (f *WindowsForeground) Subscribe(fn func(Handle)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.thread != nil {
		return nil, fmt.Errorf("foreground hook already installed")
	}

	winEventCallbackOnce.Do(func() {
		winEventCallback = windows.NewCallback(winEventProc)
	})
	foregroundHandler.Store(&fn)

	thread, err := startMessageThread("foreground-hook", func() (func(), error) {
		hook, _, err := setWinEventHook.Call(
			eventSystemForeground,
			eventSystemForeground,
			0,
			winEventCallback,
			0,
			0,
			wineventOutOfContext,
		)
		if hook == 0 {
			return nil, fmt.Errorf("SetWinEventHook failed: %w", err)
		}
		return func() { unhookWinEvent.Call(hook) }, nil
	})
	if err != nil {
		foregroundHandler.Store(nil)
		return nil, err
	}
	f.thread = thread

	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.thread == nil {
			return nil
		}
		err := f.thread.stop()
		f.thread = nil
		foregroundHandler.Store(nil)
		return err
	}, nil
}

// Foreground returns the current foreground window
func (f *WindowsForeground) Foreground() Handle {
	h, _, _ := getForegroundWindow.Call()
	return Handle(h)
}

// ProcessID returns the id of the process owning the window
func (f *WindowsForeground) ProcessID(h Handle) (uint32, error) {
	if h == 0 {
		return 0, fmt.Errorf("null window handle")
	}
	var pid uint32
	tid, _, err := getWindowThreadProcessID.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
	if tid == 0 {
		return 0, fmt.Errorf("GetWindowThreadProcessId failed: %w", err)
	}
	return pid, nil
}

// Activate brings h to the foreground. Windows only lets the foreground
// thread's input queue hand focus away, so the call attaches to it first.
func (f *WindowsForeground) Activate(h Handle) error {
	if h == 0 {
		return fmt.Errorf("null window handle")
	}
	if iconic, _, _ := isIconic.Call(uintptr(h)); iconic != 0 {
		showWindow.Call(uintptr(h), swRestore)
	}
	if ok, _, _ := setForegroundWindow.Call(uintptr(h)); ok != 0 {
		return nil
	}

	fg, _, _ := getForegroundWindow.Call()
	fgThread, _, _ := getWindowThreadProcessID.Call(fg, 0)
	self, _, _ := getCurrentThreadID.Call()
	if fgThread != 0 && fgThread != self {
		attachThreadInput.Call(self, fgThread, 1)
		defer attachThreadInput.Call(self, fgThread, 0)
	}

	bringWindowToTop.Call(uintptr(h))
	if ok, _, err := setForegroundWindow.Call(uintptr(h)); ok == 0 {
		return fmt.Errorf("SetForegroundWindow failed: %w", err)
	}
	return nil
}

func winEventProc(hook, event, hwnd, idObject, idChild, eventThread, eventTime uintptr) uintptr {
	if uint32(event) != eventSystemForeground {
		return 0
	}
	handler := foregroundHandler.Load()
	if handler == nil {
		return 0
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Foreground handler panicked", "panic", r)
		}
	}()
	(*handler)(Handle(hwnd))
	return 0
}
