package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/clipboard"

	"markestedt/clipkeeper/clip"
)

// ErrClipboardBusy is returned when another application holds the clipboard
var ErrClipboardBusy = errors.New("clipboard is busy")

// SystemClipboard implements the Clipboard interface. Text and images go
// through golang.design/x/clipboard, file lists through the native format
// where the OS has one.
type SystemClipboard struct {
	once    sync.Once
	initErr error
}

// NewClipboard creates a new system clipboard instance
func NewClipboard() Clipboard {
	return &SystemClipboard{}
}

func (c *SystemClipboard) init() error {
	c.once.Do(func() {
		c.initErr = clipboard.Init()
	})
	if c.initErr != nil {
		return fmt.Errorf("failed to initialize clipboard: %w", c.initErr)
	}
	return nil
}

// Read returns the current clipboard content. An empty payload means nothing supported is on it.
func (c *SystemClipboard) Read() (clip.Payload, error) {
	if err := c.init(); err != nil {
		return clip.Payload{}, err
	}

	files, err := readFiles()
	if err != nil {
		slog.Debug("File list not readable", "error", err)
	} else if len(files) > 0 {
		return clip.FilesPayload(files...), nil
	}

	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return clip.TextPayload(string(text)), nil
	}
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return clip.ImagePayload(img), nil
	}
	return clip.Payload{}, nil
}

// Write replaces the clipboard content with the payload
func (c *SystemClipboard) Write(p clip.Payload) error {
	if err := c.init(); err != nil {
		return err
	}

	switch p.Kind {
	case clip.Text:
		// golang.design/x/clipboard reports failure as a nil change channel
		if clipboard.Write(clipboard.FmtText, []byte(p.Text)) == nil {
			return ErrClipboardBusy
		}
	case clip.Image:
		if clipboard.Write(clipboard.FmtImage, p.Image) == nil {
			return ErrClipboardBusy
		}
	case clip.FileList:
		return writeFiles(p.Files)
	default:
		return fmt.Errorf("%w: %s", clip.ErrUnsupportedKind, p.Kind)
	}
	return nil
}

// Watch signals clipboard changes until ctx is done, then closes the channel
func (c *SystemClipboard) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	return watchClipboard(ctx)
}

// notify delivers a change signal without blocking; one pending signal is enough
func notify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
