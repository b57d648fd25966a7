package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"markestedt/clipkeeper/capture"
	"markestedt/clipkeeper/clip"
)

// DB must satisfy the capture store contract
var _ capture.Store = (*DB)(nil)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insert(t *testing.T, db *DB, p clip.Payload, at time.Time) int64 {
	t.Helper()
	rec, err := clip.NewRecord(p, at)
	if err != nil {
		t.Fatal(err)
	}
	id, err := db.Insert(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.UnixMilli(1700000000123)

	tests := []struct {
		name    string
		payload clip.Payload
	}{
		{"text", clip.TextPayload("hello")},
		{"image", clip.ImagePayload([]byte{0x89, 'P', 'N', 'G'})},
		{"files", clip.FilesPayload(`C:\a.txt`, `C:\dir\b.txt`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := insert(t, db, tt.payload, at)

			got, err := db.Get(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if got.Kind != tt.payload.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.payload.Kind)
			}
			if !got.CreatedAt.Equal(at) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, at)
			}
			if tt.payload.Kind.Hashed() != (got.ContentHash != "") {
				t.Errorf("ContentHash = %q for %v", got.ContentHash, got.Kind)
			}
			p, err := got.Payload()
			if err != nil {
				t.Fatal(err)
			}
			want, _ := tt.payload.Encode()
			have, _ := p.Encode()
			if string(want) != string(have) {
				t.Errorf("content = %q, want %q", have, want)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Get(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, want ErrNotFound", err)
	}
	if err := db.Delete(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() = %v, want ErrNotFound", err)
	}
}

func TestFindByHashAndLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if r, err := db.Latest(ctx); err != nil || r != nil {
		t.Fatalf("Latest() on empty db = %v, %v", r, err)
	}
	if r, err := db.FindByHash(ctx, clip.Hash([]byte("x"))); err != nil || r != nil {
		t.Fatalf("FindByHash() miss = %v, %v", r, err)
	}

	now := time.Now()
	first := insert(t, db, clip.TextPayload("first"), now)
	second := insert(t, db, clip.TextPayload("second"), now.Add(-time.Hour))

	r, err := db.FindByHash(ctx, clip.Hash([]byte("first")))
	if err != nil || r == nil || r.ID != first {
		t.Errorf("FindByHash() = %+v, %v", r, err)
	}

	// Latest goes by insertion order, not timestamp
	r, err = db.Latest(ctx)
	if err != nil || r == nil || r.ID != second {
		t.Errorf("Latest() = %+v, %v, want id %d", r, err, second)
	}
}

func TestTouchAndBackfill(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	legacy := &clip.Record{Kind: clip.Text, Content: []byte("legacy"), CreatedAt: time.UnixMilli(1000)}
	id, err := db.Insert(ctx, legacy)
	if err != nil {
		t.Fatal(err)
	}

	r, _ := db.Get(ctx, id)
	if r.ContentHash != "" {
		t.Fatalf("legacy row hash = %q, want NULL", r.ContentHash)
	}

	bumped := time.UnixMilli(5000)
	if err := db.Touch(ctx, id, bumped); err != nil {
		t.Fatal(err)
	}
	hash := clip.Hash(legacy.Content)
	if err := db.BackfillHash(ctx, id, hash); err != nil {
		t.Fatal(err)
	}

	r, _ = db.Get(ctx, id)
	if !r.CreatedAt.Equal(bumped) || r.ContentHash != hash {
		t.Errorf("after touch/backfill = %+v", r)
	}
}

func TestCaptureAgainstDatabase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	svc := capture.New(db, capture.Options{})

	a, err := svc.Capture(ctx, clip.TextPayload("hello"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Capture(ctx, clip.TextPayload("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID || !b.Duplicate {
		t.Errorf("captures = %+v, %+v", a, b)
	}
	if n, _ := db.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestListAndSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	hello := insert(t, db, clip.TextPayload("hello world"), base)
	percent := insert(t, db, clip.TextPayload("100% done"), base.Add(time.Minute))
	files := insert(t, db, clip.FilesPayload(`C:\reports\q1.xlsx`), base.Add(2*time.Minute))
	insert(t, db, clip.ImagePayload([]byte("hello png")), base.Add(3*time.Minute))

	if err := db.SetFavorite(ctx, hello, true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts ListOptions
		want []int64
	}{
		{"all newest first", ListOptions{}, nil},
		{"limit", ListOptions{Limit: 2}, nil},
		{"favorites", ListOptions{FavoritesOnly: true}, []int64{hello}},
		{"text query skips images", ListOptions{Query: "hello"}, []int64{hello}},
		{"file path query", ListOptions{Query: "reports"}, []int64{files}},
		{"literal percent", ListOptions{Query: "0%"}, []int64{percent}},
		{"no match", ListOptions{Query: "missing"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.List(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			switch tt.name {
			case "all newest first":
				if len(got) != 4 || got[0].Kind != clip.Image || got[3].ID != hello {
					t.Errorf("List() order wrong: %d items", len(got))
				}
				return
			case "limit":
				if len(got) != 2 {
					t.Errorf("len = %d, want 2", len(got))
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("got[%d] = %d, want %d", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestCleanupKeepsFavorites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	old := insert(t, db, clip.TextPayload("old"), now.Add(-60*24*time.Hour))
	oldFav := insert(t, db, clip.TextPayload("old favorite"), now.Add(-60*24*time.Hour))
	if err := db.SetFavorite(ctx, oldFav, true); err != nil {
		t.Fatal(err)
	}
	var recent []int64
	for i, s := range []string{"a", "b", "c"} {
		recent = append(recent, insert(t, db, clip.TextPayload(s), now.Add(time.Duration(i)*time.Second)))
	}

	deleted, err := db.Cleanup(ctx, 2, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	if _, err := db.Get(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Error("old item survived cleanup")
	}
	if _, err := db.Get(ctx, recent[0]); !errors.Is(err, ErrNotFound) {
		t.Error("item beyond max_items survived cleanup")
	}
	for _, id := range []int64{oldFav, recent[1], recent[2]} {
		if _, err := db.Get(ctx, id); err != nil {
			t.Errorf("item %d removed: %v", id, err)
		}
	}
}
