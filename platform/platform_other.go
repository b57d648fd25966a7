//go:build !windows

package platform

import (
	"context"

	"golang.design/x/clipboard"
)

type unsupportedHook struct{}

// NewKeyboardHook returns a hook that cannot be installed on this platform
func NewKeyboardHook() KeyboardHook { return unsupportedHook{} }

func (unsupportedHook) Install(func(KeyEvent) bool) error { return ErrUnsupported }
func (unsupportedHook) Uninstall() error                   { return nil }

type unsupportedInjector struct{}

// NewInjector returns an injector that fails every call on this platform
func NewInjector() Injector { return unsupportedInjector{} }

func (unsupportedInjector) Tap(uint16) error   { return ErrUnsupported }
func (unsupportedInjector) KeyUp(uint16) error { return ErrUnsupported }
func (unsupportedInjector) SendPaste() error   { return ErrUnsupported }

type unsupportedForeground struct{}

// NewForegroundSource returns a source that never reports a foreground window
func NewForegroundSource() ForegroundSource { return unsupportedForeground{} }

func (unsupportedForeground) Subscribe(func(Handle)) (func() error, error) {
	return nil, ErrUnsupported
}
func (unsupportedForeground) Foreground() Handle               { return 0 }
func (unsupportedForeground) ProcessID(Handle) (uint32, error) { return 0, ErrUnsupported }
func (unsupportedForeground) Activate(Handle) error            { return ErrUnsupported }

func readFiles() ([]string, error) { return nil, nil }

func writeFiles([]string) error { return ErrUnsupported }

// watchClipboard merges golang.design's polling watchers for text and images
func watchClipboard(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	text := clipboard.Watch(ctx, clipboard.FmtText)
	img := clipboard.Watch(ctx, clipboard.FmtImage)

	go func() {
		defer close(ch)
		for text != nil || img != nil {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-text:
				if !ok {
					text = nil
					continue
				}
				notify(ch)
			case _, ok := <-img:
				if !ok {
					img = nil
					continue
				}
				notify(ch)
			}
		}
	}()
	return ch, nil
}
