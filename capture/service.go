// Package capture turns clipboard changes into stored history records.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"markestedt/clipkeeper/clip"
)

// Store is the persistence contract the capture pipeline needs
type Store interface {
	// FindByHash returns nil, nil when no record has the hash
	FindByHash(ctx context.Context, hash string) (*clip.Record, error)
	// Latest returns the most recently inserted record, or nil, nil when empty
	Latest(ctx context.Context) (*clip.Record, error)
	Insert(ctx context.Context, rec *clip.Record) (int64, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	BackfillHash(ctx context.Context, id int64, hash string) error
}

// Result is the outcome of one capture. A duplicate carries the id of the
// existing record, or clip.NoID when nothing was stored.
type Result struct {
	ID        int64
	Record    *clip.Record
	Duplicate bool
}

// Options configures a Service
type Options struct {
	// MaxItemBytes skips larger payloads. Zero means no limit.
	MaxItemBytes int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Service records clipboard payloads with content-hash dedup
type Service struct {
	store  Store
	maxLen int
	now    func() time.Time
	log    *slog.Logger
	paused atomic.Bool
}

// New creates a capture service
func New(store Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:  store,
		maxLen: opts.MaxItemBytes,
		now:    opts.Now,
		log:    opts.Logger.With("component", "capture"),
	}
}

// Pause stops or resumes recording
func (s *Service) Pause(paused bool) {
	if s.paused.Swap(paused) != paused {
		s.log.Info("Capture paused state changed", "paused", paused)
	}
}

// Paused reports whether captures are skipped
func (s *Service) Paused() bool {
	return s.paused.Load()
}

func skipped() Result {
	return Result{ID: clip.NoID, Duplicate: true}
}

// Capture stores a payload, or bumps the existing record when the same
// content was captured before.
func (s *Service) Capture(ctx context.Context, p clip.Payload) (Result, error) {
	if p.Empty() || s.paused.Load() {
		return skipped(), nil
	}

	now := s.now()
	rec, err := clip.NewRecord(p, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode clipboard item: %w", err)
	}
	if s.maxLen > 0 && len(rec.Content) > s.maxLen {
		s.log.Debug("Skipping oversized clipboard item", "kind", rec.Kind, "bytes", len(rec.Content))
		return skipped(), nil
	}

	if rec.Kind.Hashed() {
		existing, err := s.findDuplicate(ctx, rec)
		if err != nil {
			return Result{}, err
		}
		if existing != nil {
			if err := s.store.Touch(ctx, existing.ID, now); err != nil {
				return Result{}, fmt.Errorf("failed to update timestamp: %w", err)
			}
			existing.CreatedAt = now
			if existing.ContentHash == "" {
				if err := s.store.BackfillHash(ctx, existing.ID, rec.ContentHash); err != nil {
					return Result{}, fmt.Errorf("failed to backfill content hash: %w", err)
				}
				existing.ContentHash = rec.ContentHash
			}
			return Result{ID: existing.ID, Record: existing, Duplicate: true}, nil
		}
	}

	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		return Result{}, fmt.Errorf("failed to insert clipboard item: %w", err)
	}
	rec.ID = id
	return Result{ID: id, Record: rec}, nil
}

// findDuplicate looks up a record by hash, then falls back to the most
// recent row when it was written without one.
func (s *Service) findDuplicate(ctx context.Context, rec *clip.Record) (*clip.Record, error) {
	existing, err := s.store.FindByHash(ctx, rec.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up content hash: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	latest, err := s.store.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest item: %w", err)
	}
	if latest == nil || latest.ContentHash != "" || latest.Kind != rec.Kind {
		return nil, nil
	}
	if !bytes.Equal(latest.Content, rec.Content) {
		return nil, nil
	}
	return latest, nil
}

// Run captures every payload from changes until ctx is done or changes is
// closed. sink receives each result and may be nil.
func (s *Service) Run(ctx context.Context, changes <-chan clip.Payload, sink func(Result)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-changes:
			if !ok {
				return
			}
			res, err := s.Capture(ctx, p)
			if err != nil {
				s.log.Error("Failed to capture clipboard", "kind", p.Kind, "error", err)
				continue
			}
			if res.ID == clip.NoID {
				continue
			}
			s.log.Debug("Clipboard captured", "id", res.ID, "kind", p.Kind, "duplicate", res.Duplicate)
			if sink != nil {
				sink(res)
			}
		}
	}
}
