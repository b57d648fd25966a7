// Package paste puts a history item back on the clipboard and pastes it
// into the window the user came from.
package paste

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"markestedt/clipkeeper/clip"
	"markestedt/clipkeeper/platform"
)

const (
	DefaultHideTimeout = 500 * time.Millisecond
	DefaultWaitTimeout = 500 * time.Millisecond
)

var (
	ErrClipboardWrite = errors.New("clipboard write failed")
	ErrKeystroke      = errors.New("paste keystroke failed")
)

// ClipboardWriter puts a payload on the system clipboard
type ClipboardWriter interface {
	Write(ctx context.Context, p clip.Payload) error
}

// UI is the manager window. Hide returns once the window is hidden.
type UI interface {
	Hide(ctx context.Context) error
}

// TargetWaiter waits for the paste target to regain focus
type TargetWaiter interface {
	WaitUntilReadyToPaste(ctx context.Context, timeout time.Duration) (bool, platform.Handle)
}

// KeystrokeSender sends the platform paste accelerator
type KeystrokeSender interface {
	SendPaste() error
}

// Options configures an Orchestrator
type Options struct {
	HideTimeout time.Duration
	WaitTimeout time.Duration
	Logger      *slog.Logger
}

// Orchestrator runs the paste sequence: write clipboard, hide UI, wait
// for the target, send the keystroke.
type Orchestrator struct {
	writer ClipboardWriter
	ui     UI
	target TargetWaiter
	keys   KeystrokeSender
	opts   Options
	log    *slog.Logger
}

// New creates an orchestrator
func New(writer ClipboardWriter, ui UI, target TargetWaiter, keys KeystrokeSender, opts Options) *Orchestrator {
	if opts.HideTimeout <= 0 {
		opts.HideTimeout = DefaultHideTimeout
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		writer: writer,
		ui:     ui,
		target: target,
		keys:   keys,
		opts:   opts,
		log:    opts.Logger.With("component", "paste"),
	}
}

// Paste pastes rec into the frozen target. The clipboard is written before
// focus returns so the target never reads stale content. A failed
// keystroke leaves the clipboard written.
func (o *Orchestrator) Paste(ctx context.Context, rec *clip.Record) error {
	start := time.Now()

	payload, err := rec.Payload()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClipboardWrite, err)
	}
	if err := o.writer.Write(ctx, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrClipboardWrite, err)
	}

	o.hide(ctx)

	ready, fg := o.target.WaitUntilReadyToPaste(ctx, o.opts.WaitTimeout)
	if !ready {
		o.log.Warn("Paste target not ready, sending keystroke anyway", "foreground", fg, "timeout", o.opts.WaitTimeout)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("paste cancelled: %w", err)
	}

	if err := o.keys.SendPaste(); err != nil {
		return fmt.Errorf("%w: %w", ErrKeystroke, err)
	}

	o.log.Debug("Pasted history item", "id", rec.ID, "kind", rec.Kind, "foreground", fg, "elapsed", time.Since(start))
	return nil
}

func (o *Orchestrator) hide(ctx context.Context) {
	if o.ui == nil {
		return
	}
	hideCtx, cancel := context.WithTimeout(ctx, o.opts.HideTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- o.ui.Hide(hideCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			o.log.Warn("Failed to hide window before paste", "error", err)
		}
	case <-hideCtx.Done():
		o.log.Warn("Timed out hiding window before paste", "timeout", o.opts.HideTimeout)
	}
}
