//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"
	"unsafe"
)

var (
	getMessage         = user32.NewProc("GetMessageW")
	translateMessage   = user32.NewProc("TranslateMessage")
	dispatchMessage    = user32.NewProc("DispatchMessageW")
	postThreadMessage  = user32.NewProc("PostThreadMessageW")
	peekMessage        = user32.NewProc("PeekMessageW")
	getCurrentThreadID = kernel32.NewProc("GetCurrentThreadId")
)

const (
	wmQuit     = 0x0012
	pmNoRemove = 0x0000

	loopStopTimeout = 2 * time.Second
)

type msg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       struct{ x, y int32 }
	lPrivate uint32
}

// messageThread is a locked OS thread pumping a Win32 message queue.
// Hooks and windows created by setup belong to this thread.
type messageThread struct {
	name     string
	threadID uint32
	done     chan struct{}
}

type loopReady struct {
	threadID uint32
	err      error
}

// startMessageThread runs setup on a fresh locked thread and pumps messages until stop.
// cleanup runs on the same thread after the loop exits.
func startMessageThread(name string, setup func() (cleanup func(), err error)) (*messageThread, error) {
	readyCh := make(chan loopReady, 1)
	done := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		tid, _, _ := getCurrentThreadID.Call()

		cleanup, err := setup()
		if err != nil {
			readyCh <- loopReady{err: err}
			return
		}
		defer cleanup()

		// Force creation of the thread message queue so stop can post to it
		var m msg
		peekMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)

		readyCh <- loopReady{threadID: uint32(tid)}

		for {
			r, _, _ := getMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			// 0 is WM_QUIT, -1 is an error
			if int32(r) <= 0 {
				return
			}
			translateMessage.Call(uintptr(unsafe.Pointer(&m)))
			dispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
		}
	}()

	ready := <-readyCh
	if ready.err != nil {
		return nil, ready.err
	}
	return &messageThread{name: name, threadID: ready.threadID, done: done}, nil
}

// stop posts WM_QUIT and waits for the loop to exit
func (t *messageThread) stop() error {
	r, _, err := postThreadMessage.Call(uintptr(t.threadID), wmQuit, 0, 0)
	if r == 0 {
		return fmt.Errorf("PostThreadMessage failed for %s thread: %w", t.name, err)
	}

	timer := time.NewTimer(loopStopTimeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return nil
	case <-timer.C:
		slog.Warn("Message loop stop timed out", "thread", t.name, "threadID", t.threadID)
		return errors.New("message loop stop timed out")
	}
}
