package paste

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"markestedt/clipkeeper/clip"
)

const (
	DefaultWriteAttempts = 3
	DefaultWriteBackoff  = 100 * time.Millisecond
)

// RetryWriter retries clipboard writes while another application holds the
// clipboard open. The delay before attempt n+1 is Backoff*n.
type RetryWriter struct {
	Writer   PayloadWriter
	Attempts int
	Backoff  time.Duration
	Logger   *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// PayloadWriter is a single clipboard write attempt, as platform.Clipboard provides
type PayloadWriter interface {
	Write(p clip.Payload) error
}

// NewRetryWriter wraps w with the default retry policy
func NewRetryWriter(w PayloadWriter) *RetryWriter {
	return &RetryWriter{
		Writer:   w,
		Attempts: DefaultWriteAttempts,
		Backoff:  DefaultWriteBackoff,
	}
}

// Write implements ClipboardWriter. The backoff stops early once ctx is done.
func (r *RetryWriter) Write(ctx context.Context, p clip.Payload) error {
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	attempts := max(r.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = r.Writer.Write(p); err == nil {
			return nil
		}
		// Unsupported kinds are never retried
		if errors.Is(err, clip.ErrUnsupportedKind) {
			return err
		}
		if attempt == attempts {
			break
		}
		log.Debug("Clipboard write failed, retrying", "attempt", attempt, "error", err)
		if serr := sleep(ctx, r.Backoff*time.Duration(attempt)); serr != nil {
			return fmt.Errorf("clipboard write interrupted: %w", serr)
		}
	}
	return fmt.Errorf("failed to write clipboard after %d attempts: %w", attempts, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
