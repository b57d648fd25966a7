package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"markestedt/clipkeeper/clip"
)

type memStore struct {
	rows   []*clip.Record
	nextID int64
	calls  int
	err    error
}

func newMemStore(nextID int64) *memStore {
	return &memStore{nextID: nextID}
}

func (m *memStore) FindByHash(_ context.Context, hash string) (*clip.Record, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.rows {
		if r.ContentHash != "" && r.ContentHash == hash {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) Latest(context.Context) (*clip.Record, error) {
	m.calls++
	if len(m.rows) == 0 {
		return nil, nil
	}
	copied := *m.rows[len(m.rows)-1]
	return &copied, nil
}

func (m *memStore) Insert(_ context.Context, rec *clip.Record) (int64, error) {
	m.calls++
	copied := *rec
	copied.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, &copied)
	return copied.ID, nil
}

func (m *memStore) Touch(_ context.Context, id int64, at time.Time) error {
	m.calls++
	r := m.get(id)
	if r == nil {
		return errors.New("no such row")
	}
	r.CreatedAt = at
	return nil
}

func (m *memStore) BackfillHash(_ context.Context, id int64, hash string) error {
	m.calls++
	r := m.get(id)
	if r == nil {
		return errors.New("no such row")
	}
	r.ContentHash = hash
	return nil
}

func (m *memStore) get(id int64) *clip.Record {
	for _, r := range m.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// clock returns a Now func that advances one second per call
func clock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestDuplicateTextBumpsExistingRecord(t *testing.T) {
	store := newMemStore(5)
	svc := New(store, Options{Now: clock()})
	ctx := context.Background()

	first, err := svc.Capture(ctx, clip.TextPayload("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != 5 || first.Duplicate {
		t.Fatalf("first capture = %+v, want new id 5", first)
	}
	created := store.get(5).CreatedAt

	second, err := svc.Capture(ctx, clip.TextPayload("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != 5 || !second.Duplicate {
		t.Errorf("second capture = %+v, want duplicate of 5", second)
	}
	if len(store.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(store.rows))
	}
	if got := store.get(5).CreatedAt; !got.After(created) {
		t.Errorf("createdAt not bumped: %v -> %v", created, got)
	}
	if !second.Record.CreatedAt.Equal(store.get(5).CreatedAt) {
		t.Errorf("result record time %v, stored %v", second.Record.CreatedAt, store.get(5).CreatedAt)
	}
}

func TestFileListDedup(t *testing.T) {
	store := newMemStore(1)
	svc := New(store, Options{Now: clock()})
	ctx := context.Background()

	a, _ := svc.Capture(ctx, clip.FilesPayload(`C:\a.txt`, `C:\b.txt`))
	b, _ := svc.Capture(ctx, clip.FilesPayload(`C:\a.txt`, `C:\b.txt`))
	c, _ := svc.Capture(ctx, clip.FilesPayload(`C:\b.txt`, `C:\a.txt`))

	if a.ID != b.ID || !b.Duplicate {
		t.Errorf("identical file lists not deduped: %+v %+v", a, b)
	}
	if c.ID == a.ID || c.Duplicate {
		t.Errorf("reordered file list treated as duplicate: %+v", c)
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(store.rows))
	}
}

func TestImagesNeverDedup(t *testing.T) {
	store := newMemStore(1)
	svc := New(store, Options{Now: clock()})
	ctx := context.Background()

	png := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	for i := 0; i < 2; i++ {
		res, err := svc.Capture(ctx, clip.ImagePayload(png))
		if err != nil {
			t.Fatal(err)
		}
		if res.Duplicate {
			t.Errorf("image capture %d reported duplicate", i)
		}
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d, want 2", len(store.rows))
	}
	for _, r := range store.rows {
		if r.ContentHash != "" {
			t.Errorf("image row %d has hash %q", r.ID, r.ContentHash)
		}
	}
}

func TestLegacyRowFallback(t *testing.T) {
	legacyTime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		legacy  *clip.Record
		payload clip.Payload
		wantDup bool
	}{
		{
			name:    "same text",
			legacy:  &clip.Record{ID: 9, Kind: clip.Text, Content: []byte("legacy")},
			payload: clip.TextPayload("legacy"),
			wantDup: true,
		},
		{
			name:    "different text",
			legacy:  &clip.Record{ID: 9, Kind: clip.Text, Content: []byte("legacy")},
			payload: clip.TextPayload("other"),
		},
		{
			name:    "same bytes different kind",
			legacy:  &clip.Record{ID: 9, Kind: clip.Text, Content: []byte(`["a"]`)},
			payload: clip.FilesPayload("a"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(10)
			tt.legacy.CreatedAt = legacyTime
			store.rows = append(store.rows, tt.legacy)
			svc := New(store, Options{Now: clock()})

			res, err := svc.Capture(context.Background(), tt.payload)
			if err != nil {
				t.Fatal(err)
			}
			if res.Duplicate != tt.wantDup {
				t.Fatalf("Duplicate = %v, want %v", res.Duplicate, tt.wantDup)
			}
			if !tt.wantDup {
				if len(store.rows) != 2 {
					t.Errorf("rows = %d, want 2", len(store.rows))
				}
				return
			}
			legacy := store.get(9)
			if res.ID != 9 {
				t.Errorf("ID = %d, want 9", res.ID)
			}
			if legacy.ContentHash != clip.Hash([]byte("legacy")) {
				t.Errorf("hash not backfilled: %q", legacy.ContentHash)
			}
			if !legacy.CreatedAt.After(legacyTime) {
				t.Error("legacy createdAt not bumped")
			}
		})
	}
}

func TestLegacyFallbackOnlyChecksLatest(t *testing.T) {
	store := newMemStore(3)
	store.rows = []*clip.Record{
		{ID: 1, Kind: clip.Text, Content: []byte("old")},
		{ID: 2, Kind: clip.Text, Content: []byte("newer"), ContentHash: clip.Hash([]byte("newer"))},
	}
	svc := New(store, Options{Now: clock()})

	res, err := svc.Capture(context.Background(), clip.TextPayload("old"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Duplicate || res.ID != 3 {
		t.Errorf("result = %+v, want a new row 3", res)
	}
}

func TestSkippedPayloadsNeverTouchStore(t *testing.T) {
	tests := []struct {
		name    string
		payload clip.Payload
		opts    Options
		paused  bool
	}{
		{name: "empty text", payload: clip.TextPayload("")},
		{name: "empty image", payload: clip.ImagePayload(nil)},
		{name: "empty files", payload: clip.FilesPayload()},
		{name: "oversized", payload: clip.TextPayload(strings.Repeat("x", 11)), opts: Options{MaxItemBytes: 10}},
		{name: "paused", payload: clip.TextPayload("hello"), paused: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(1)
			svc := New(store, tt.opts)
			svc.Pause(tt.paused)

			res, err := svc.Capture(context.Background(), tt.payload)
			if err != nil {
				t.Fatal(err)
			}
			if res.ID != clip.NoID || !res.Duplicate {
				t.Errorf("result = %+v, want duplicate sentinel", res)
			}
			if store.calls != 0 {
				t.Errorf("store calls = %d, want 0", store.calls)
			}
		})
	}
}

func TestCaptureStoreError(t *testing.T) {
	boom := errors.New("disk full")
	store := newMemStore(1)
	store.err = boom
	svc := New(store, Options{})

	if _, err := svc.Capture(context.Background(), clip.TextPayload("x")); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped store error", err)
	}
}

func TestRunDeliversResults(t *testing.T) {
	store := newMemStore(1)
	svc := New(store, Options{Now: clock()})

	changes := make(chan clip.Payload, 4)
	changes <- clip.TextPayload("a")
	changes <- clip.TextPayload("")
	changes <- clip.TextPayload("a")
	changes <- clip.TextPayload("b")
	close(changes)

	var results []Result
	svc.Run(context.Background(), changes, func(r Result) { results = append(results, r) })

	if len(results) != 3 {
		t.Fatalf("results = %d, want 3 (empty payload dropped)", len(results))
	}
	if results[0].Duplicate || !results[1].Duplicate || results[2].Duplicate {
		t.Errorf("duplicate flags = %v %v %v", results[0].Duplicate, results[1].Duplicate, results[2].Duplicate)
	}
	if results[1].ID != results[0].ID {
		t.Errorf("duplicate id = %d, want %d", results[1].ID, results[0].ID)
	}
}
