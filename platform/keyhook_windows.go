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
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
)

const (
	whKeyboardLL  = 13
	wmKeydown     = 0x0100
	wmSyskeydown  = 0x0104
	llkhfInjected = 0x00000010
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// The OS allows one callback per process for our purposes; the active
// handler is swapped behind it.
var (
	keyboardCallbackOnce sync.Once
	keyboardCallback     uintptr
	keyboardHandler      atomic.Pointer[func(KeyEvent) bool]
)

// WindowsKeyboardHook implements KeyboardHook with a WH_KEYBOARD_LL hook
type WindowsKeyboardHook struct {
	mu     sync.Mutex
	thread *messageThread
}

// NewKeyboardHook creates a new Windows low-level keyboard hook
func NewKeyboardHook() KeyboardHook {
	return &WindowsKeyboardHook{}
}

// Install installs the hook on a dedicated message thread. Installing twice is a no-op.
func (h *WindowsKeyboardHook) Install(handler func(KeyEvent) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.thread != nil {
		return nil
	}

	keyboardCallbackOnce.Do(func() {
		keyboardCallback = windows.NewCallback(keyboardProc)
	})
	keyboardHandler.Store(&handler)

	thread, err := startMessageThread("keyboard-hook", func() (func(), error) {
		hook, _, err := setWindowsHookEx.Call(whKeyboardLL, keyboardCallback, 0, 0)
		if hook == 0 {
			return nil, fmt.Errorf("SetWindowsHookEx failed: %w", err)
		}
		return func() { unhookWindowsHookEx.Call(hook) }, nil
	})
	if err != nil {
		keyboardHandler.Store(nil)
		return err
	}

	h.thread = thread
	return nil
}

// Uninstall removes the hook. Uninstalling when not installed is a no-op.
func (h *WindowsKeyboardHook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.thread == nil {
		return nil
	}

	err := h.thread.stop()
	h.thread = nil
	keyboardHandler.Store(nil)
	return err
}

func keyboardProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if handler := keyboardHandler.Load(); handler != nil {
			kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			ev := KeyEvent{
				VKey:     uint16(kb.vkCode),
				Down:     wParam == wmKeydown || wParam == wmSyskeydown,
				Injected: kb.flags&llkhfInjected != 0 && kb.dwExtraInfo == injectSignature,
			}
			if dispatchKeyEvent(*handler, ev) {
				return 1
			}
		}
	}
	r, _, _ := callNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

// dispatchKeyEvent never lets a panic unwind into the OS callback
func dispatchKeyEvent(handler func(KeyEvent) bool, ev KeyEvent) (suppress bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Keyboard hook handler panicked", "panic", r, "vk", ev.VKey)
			suppress = false
		}
	}()
	return handler(ev)
}
