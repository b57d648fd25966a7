//go:build windows

package platform

import (
	"fmt"
	"time"
	"unsafe"
)

var (
	sendInput      = user32.NewProc("SendInput")
	mapVirtualKeyW = user32.NewProc("MapVirtualKeyW")
)

const (
	inputKeyboard  = 1
	keyeventfKeyup = 0x0002
	mapvkVkToVsc   = 0
	vkControl      = 0x11
	vkV            = 0x56

	// injectSignature tags our synthetic events so the keyboard hook can recognize them
	injectSignature uintptr = 0x434B5045
)

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type input struct {
	inputType uint32
	ki        keyboardInput
	padding   [8]byte // Padding to match C struct size
}

// WindowsInjector implements the Injector interface with SendInput
type WindowsInjector struct{}

// NewInjector creates a new Windows input injector
func NewInjector() Injector {
	return &WindowsInjector{}
}

func keyInput(vk uint16, up bool) input {
	scan, _, _ := mapVirtualKeyW.Call(uintptr(vk), mapvkVkToVsc)
	var flags uint32
	if up {
		flags = keyeventfKeyup
	}
	return input{
		inputType: inputKeyboard,
		ki: keyboardInput{
			wVk:         vk,
			wScan:       uint16(scan),
			dwFlags:     flags,
			dwExtraInfo: injectSignature,
		},
	}
}

// send submits all inputs in a single SendInput call for atomicity
func send(inputs []input) error {
	ret, _, err := sendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(ret) != len(inputs) {
		return fmt.Errorf("SendInput failed: sent %d of %d: %w", ret, len(inputs), err)
	}
	return nil
}

// Tap sends a key down immediately followed by its key up
func (i *WindowsInjector) Tap(vk uint16) error {
	return send([]input{keyInput(vk, false), keyInput(vk, true)})
}

// KeyUp sends a lone key up
func (i *WindowsInjector) KeyUp(vk uint16) error {
	return send([]input{keyInput(vk, true)})
}

// SendPaste simulates Ctrl+V with scan codes for better compatibility with elevated applications
func (i *WindowsInjector) SendPaste() error {
	inputs := []input{
		keyInput(vkControl, false),
		keyInput(vkV, false),
		keyInput(vkV, true),
		keyInput(vkControl, true),
	}
	if err := send(inputs); err != nil {
		return err
	}

	// Small delay to ensure input is processed
	time.Sleep(20 * time.Millisecond)
	return nil
}
