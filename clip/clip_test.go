package clip

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPayloadEmpty(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    bool
	}{
		{"empty text", TextPayload(""), true},
		{"text", TextPayload("hello"), false},
		{"empty image", ImagePayload(nil), true},
		{"image", ImagePayload([]byte{0x89, 'P', 'N', 'G'}), false},
		{"empty files", FilesPayload(), true},
		{"files", FilesPayload("/tmp/a.txt"), false},
		{"unknown kind", Payload{Kind: Kind(42)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.payload.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRecordHashesOnlyDedupKinds(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	text, err := NewRecord(TextPayload("hello"), now)
	if err != nil {
		t.Fatalf("NewRecord(text) error = %v", err)
	}
	if text.ContentHash != Hash([]byte("hello")) {
		t.Errorf("text hash = %q, want sha256 of content", text.ContentHash)
	}
	if text.ID != NoID {
		t.Errorf("ID = %d, want NoID", text.ID)
	}

	files, err := NewRecord(FilesPayload("/a", "/b"), now)
	if err != nil {
		t.Fatalf("NewRecord(files) error = %v", err)
	}
	if string(files.Content) != `["/a","/b"]` {
		t.Errorf("files content = %s", files.Content)
	}
	if files.ContentHash == "" {
		t.Error("files record should be hashed")
	}

	img, err := NewRecord(ImagePayload([]byte{1, 2, 3}), now)
	if err != nil {
		t.Fatalf("NewRecord(image) error = %v", err)
	}
	if img.ContentHash != "" {
		t.Errorf("image hash = %q, want empty", img.ContentHash)
	}
}

func TestRecordPayloadRestoresContent(t *testing.T) {
	rec, err := NewRecord(FilesPayload("/x/one.txt", "/y/two.txt"), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	p, err := rec.Payload()
	if err != nil {
		t.Fatalf("Payload() error = %v", err)
	}
	if p.Kind != FileList || len(p.Files) != 2 || p.Files[1] != "/y/two.txt" {
		t.Errorf("Payload() = %+v", p)
	}
}

func TestRecordPayloadUnsupportedKind(t *testing.T) {
	rec := &Record{Kind: Kind(9), Content: []byte("x")}
	if _, err := rec.Payload(); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("Payload() error = %v, want ErrUnsupportedKind", err)
	}
	if _, err := (Payload{Kind: Kind(9)}).Encode(); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("Encode() error = %v, want ErrUnsupportedKind", err)
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{Text, Image, FileList} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("rtf"); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("ParseKind(rtf) error = %v", err)
	}
}

func TestSummary(t *testing.T) {
	long := strings.Repeat("a", 200)
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"text collapses whitespace", Record{Kind: Text, Content: []byte("hello\n  world")}, "hello world"},
		{"text truncated", Record{Kind: Text, Content: []byte(long)}, strings.Repeat("a", 120) + "…"},
		{"image", Record{Kind: Image, Content: make([]byte, 2048)}, "Image (2 KB)"},
		{"one file", Record{Kind: FileList, Content: []byte(`["/tmp/a.txt"]`)}, "1 file: a.txt"},
		{"two files", Record{Kind: FileList, Content: []byte(`["/tmp/a.txt","/tmp/b.png"]`)}, "2 files: a.txt, b.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}
