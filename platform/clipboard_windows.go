//go:build windows

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	shell32  = windows.NewLazySystemDLL("shell32.dll")

	openClipboard                 = user32.NewProc("OpenClipboard")
	closeClipboard                = user32.NewProc("CloseClipboard")
	emptyClipboard                = user32.NewProc("EmptyClipboard")
	getClipboardData              = user32.NewProc("GetClipboardData")
	setClipboardData              = user32.NewProc("SetClipboardData")
	isClipboardFormatAvailable    = user32.NewProc("IsClipboardFormatAvailable")
	addClipboardFormatListener    = user32.NewProc("AddClipboardFormatListener")
	removeClipboardFormatListener = user32.NewProc("RemoveClipboardFormatListener")
	registerClassEx               = user32.NewProc("RegisterClassExW")
	createWindowEx                = user32.NewProc("CreateWindowExW")
	destroyWindow                 = user32.NewProc("DestroyWindow")
	defWindowProc                 = user32.NewProc("DefWindowProcW")
	globalAlloc                   = kernel32.NewProc("GlobalAlloc")
	globalFree                    = kernel32.NewProc("GlobalFree")
	globalLock                    = kernel32.NewProc("GlobalLock")
	globalUnlock                  = kernel32.NewProc("GlobalUnlock")
	getModuleHandle               = kernel32.NewProc("GetModuleHandleW")
	dragQueryFile                 = shell32.NewProc("DragQueryFileW")
)

const (
	cfHdrop           = 15
	gmemMoveable      = 0x0002
	gmemZeroinit      = 0x0040
	wmClipboardUpdate = 0x031D
	hwndMessage       = ^uintptr(2) // (HWND)-3

	listenerClassName = "ClipkeeperClipboardListener"
)

// dropFiles mirrors the Win32 DROPFILES header that precedes a CF_HDROP path list
type dropFiles struct {
	pFiles uint32
	pt     struct{ x, y int32 }
	fNC    int32
	fWide  int32
}

type wndClassEx struct {
	cbSize        uint32
	style         uint32
	lpfnWndProc   uintptr
	cbClsExtra    int32
	cbWndExtra    int32
	hInstance     uintptr
	hIcon         uintptr
	hCursor       uintptr
	hbrBackground uintptr
	lpszMenuName  *uint16
	lpszClassName *uint16
	hIconSm       uintptr
}

var (
	listenerClassOnce sync.Once
	listenerClassErr  error
	clipboardNotifyCh atomic.Pointer[chan struct{}]
)

// readFiles returns the CF_HDROP path list, or nil if the clipboard holds none
func readFiles() ([]string, error) {
	if r, _, _ := isClipboardFormatAvailable.Call(cfHdrop); r == 0 {
		return nil, nil
	}

	if err := openWithRetry(); err != nil {
		return nil, err
	}
	defer closeClipboard.Call()

	h, _, err := getClipboardData.Call(cfHdrop)
	if h == 0 {
		if err != nil && err != syscall.Errno(0) {
			return nil, fmt.Errorf("GetClipboardData failed: %w", err)
		}
		return nil, nil
	}

	count, _, _ := dragQueryFile.Call(h, 0xFFFFFFFF, 0, 0)
	paths := make([]string, 0, count)
	for i := uintptr(0); i < count; i++ {
		n, _, _ := dragQueryFile.Call(h, i, 0, 0)
		if n == 0 {
			continue
		}
		buf := make([]uint16, n+1)
		dragQueryFile.Call(h, i, uintptr(unsafe.Pointer(&buf[0])), n+1)
		paths = append(paths, windows.UTF16ToString(buf))
	}
	return paths, nil
}

// writeFiles places a CF_HDROP path list on the clipboard
func writeFiles(paths []string) error {
	var list []uint16
	for _, p := range paths {
		u, err := windows.UTF16FromString(p)
		if err != nil {
			return fmt.Errorf("UTF16 conversion failed: %w", err)
		}
		list = append(list, u...) // includes the terminating NUL
	}
	list = append(list, 0)

	header := uint32(unsafe.Sizeof(dropFiles{}))
	size := uintptr(header) + uintptr(len(list))*2

	h, _, err := globalAlloc.Call(gmemMoveable|gmemZeroinit, size)
	if h == 0 {
		return fmt.Errorf("GlobalAlloc failed: %w", err)
	}

	l, _, err := globalLock.Call(h)
	if l == 0 {
		globalFree.Call(h)
		return fmt.Errorf("GlobalLock failed: %w", err)
	}
	df := (*dropFiles)(unsafe.Pointer(l))
	df.pFiles = header
	df.fWide = 1
	dest := unsafe.Slice((*uint16)(unsafe.Pointer(l+uintptr(header))), len(list))
	copy(dest, list)
	globalUnlock.Call(h)

	if err := openWithRetry(); err != nil {
		globalFree.Call(h)
		return err
	}
	defer closeClipboard.Call()

	emptyClipboard.Call()
	r, _, err := setClipboardData.Call(cfHdrop, h)
	if r == 0 {
		globalFree.Call(h)
		return fmt.Errorf("SetClipboardData failed: %w", err)
	}
	return nil
}

func openWithRetry() error {
	// Try to open clipboard with retries
	for i := 0; i < 10; i++ {
		r, _, _ := openClipboard.Call(0)
		if r != 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ErrClipboardBusy
}

// watchClipboard listens for WM_CLIPBOARDUPDATE on a message-only window
func watchClipboard(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	if !clipboardNotifyCh.CompareAndSwap(nil, &ch) {
		return nil, fmt.Errorf("clipboard listener already running")
	}

	thread, err := startMessageThread("clipboard-listener", func() (func(), error) {
		hwnd, err := createListenerWindow()
		if err != nil {
			return nil, err
		}
		if r, _, err := addClipboardFormatListener.Call(hwnd); r == 0 {
			destroyWindow.Call(hwnd)
			return nil, fmt.Errorf("AddClipboardFormatListener failed: %w", err)
		}
		return func() {
			removeClipboardFormatListener.Call(hwnd)
			destroyWindow.Call(hwnd)
		}, nil
	})
	if err != nil {
		clipboardNotifyCh.Store(nil)
		return nil, err
	}

	go func() {
		<-ctx.Done()
		if err := thread.stop(); err != nil {
			slog.Warn("Failed to stop clipboard listener", "error", err)
		}
		clipboardNotifyCh.Store(nil)
		close(ch)
	}()

	return ch, nil
}

func createListenerWindow() (uintptr, error) {
	className, err := windows.UTF16PtrFromString(listenerClassName)
	if err != nil {
		return 0, err
	}
	instance, _, _ := getModuleHandle.Call(0)

	listenerClassOnce.Do(func() {
		wc := wndClassEx{
			lpfnWndProc:   windows.NewCallback(listenerWndProc),
			hInstance:     instance,
			lpszClassName: className,
		}
		wc.cbSize = uint32(unsafe.Sizeof(wc))
		if r, _, err := registerClassEx.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			listenerClassErr = fmt.Errorf("RegisterClassEx failed: %w", err)
		}
	})
	if listenerClassErr != nil {
		return 0, listenerClassErr
	}

	hwnd, _, err := createWindowEx.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		hwndMessage,
		0,
		instance,
		0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowEx failed: %w", err)
	}
	return hwnd, nil
}

func listenerWndProc(hwnd, message, wParam, lParam uintptr) uintptr {
	if uint32(message) == wmClipboardUpdate {
		if ch := clipboardNotifyCh.Load(); ch != nil {
			notify(*ch)
		}
		return 0
	}
	r, _, _ := defWindowProc.Call(hwnd, message, wParam, lParam)
	return r
}
