package clip

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NoID marks a record that was not inserted (empty payload or duplicate)
const NoID int64 = -1

// ErrUnsupportedKind is returned when a content type has no handling at a switch site
var ErrUnsupportedKind = errors.New("unsupported content type")

// Kind is the content type of a clipboard payload or record
type Kind int

const (
	Text Kind = iota
	Image
	FileList
)

// String returns the storage tag for the kind
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Image:
		return "image"
	case FileList:
		return "files"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a storage tag
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case "text":
		return Text, nil
	case "image":
		return Image, nil
	case "files":
		return FileList, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKind, tag)
	}
}

// Hashed reports whether records of this kind take part in dedup.
// Images are always stored as new.
func (k Kind) Hashed() bool {
	return k == Text || k == FileList
}

// Payload is clipboard content in memory. Exactly one field matching Kind is populated.
type Payload struct {
	Kind  Kind
	Text  string
	Image []byte // PNG
	Files []string
}

// TextPayload creates a text payload
func TextPayload(s string) Payload {
	return Payload{Kind: Text, Text: s}
}

// ImagePayload creates an image payload from PNG bytes
func ImagePayload(png []byte) Payload {
	return Payload{Kind: Image, Image: png}
}

// FilesPayload creates a file list payload
func FilesPayload(paths ...string) Payload {
	return Payload{Kind: FileList, Files: paths}
}

// Empty reports whether the payload carries nothing worth recording
func (p Payload) Empty() bool {
	switch p.Kind {
	case Text:
		return p.Text == ""
	case Image:
		return len(p.Image) == 0
	case FileList:
		return len(p.Files) == 0
	default:
		return true
	}
}

// Encode converts the payload to the raw bytes stored in a record
func (p Payload) Encode() ([]byte, error) {
	switch p.Kind {
	case Text:
		return []byte(p.Text), nil
	case Image:
		return p.Image, nil
	case FileList:
		data, err := json.Marshal(p.Files)
		if err != nil {
			return nil, fmt.Errorf("failed to encode file list: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, p.Kind)
	}
}

// Hash returns the hex sha256 digest used for dedup
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Record is a stored clipboard history entry
type Record struct {
	ID        int64
	Kind      Kind
	Content   []byte
	CreatedAt time.Time
	Favorite  bool
	// ContentHash is empty for rows written before hashing existed
	ContentHash string
}

// NewRecord builds an unsaved record from a payload. Hashed kinds get their digest filled in.
func NewRecord(p Payload, now time.Time) (*Record, error) {
	content, err := p.Encode()
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ID:        NoID,
		Kind:      p.Kind,
		Content:   content,
		CreatedAt: now,
	}
	if p.Kind.Hashed() {
		rec.ContentHash = Hash(content)
	}
	return rec, nil
}

// Payload converts the stored content back into a payload for the system clipboard
func (r *Record) Payload() (Payload, error) {
	switch r.Kind {
	case Text:
		return TextPayload(string(r.Content)), nil
	case Image:
		return ImagePayload(r.Content), nil
	case FileList:
		var paths []string
		if err := json.Unmarshal(r.Content, &paths); err != nil {
			return Payload{}, fmt.Errorf("failed to decode file list: %w", err)
		}
		return FilesPayload(paths...), nil
	default:
		return Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, r.Kind)
	}
}

const summaryMaxRunes = 120

// Summary returns a one-line description used by listings and search
func (r *Record) Summary() string {
	switch r.Kind {
	case Text:
		s := strings.Join(strings.Fields(string(r.Content)), " ")
		if runes := []rune(s); len(runes) > summaryMaxRunes {
			s = string(runes[:summaryMaxRunes]) + "…"
		}
		return s
	case Image:
		return fmt.Sprintf("Image (%d KB)", (len(r.Content)+1023)/1024)
	case FileList:
		var paths []string
		if err := json.Unmarshal(r.Content, &paths); err != nil {
			return "Files (unreadable)"
		}
		names := make([]string, 0, len(paths))
		for _, p := range paths {
			names = append(names, filepath.Base(p))
		}
		if len(paths) == 1 {
			return "1 file: " + names[0]
		}
		return fmt.Sprintf("%d files: %s", len(paths), strings.Join(names, ", "))
	default:
		return r.Kind.String()
	}
}
