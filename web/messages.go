package web

import (
	"time"

	"markestedt/clipkeeper/clip"
)

// Message types sent over the websocket
const (
	MessageTypeCapture         = "capture"
	MessageTypeDeleted         = "deleted"
	MessageTypeFavorite        = "favorite"
	MessageTypeVisibility      = "visibility"
	MessageTypeFavoritesFilter = "favorites_filter"
	MessageTypeStatus          = "status"

	// Sent by a dashboard once it has hidden itself
	MessageTypeHidden = "hidden"
	// Sent by a dashboard when it has focus while shown
	MessageTypeShown = "shown"
)

// Message is the websocket envelope
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Item is a history record as the dashboard sees it
type Item struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
	Favorite  bool      `json:"favorite"`
	Text      string    `json:"text,omitempty"`
	Files     []string  `json:"files,omitempty"`
	Bytes     int       `json:"bytes"`
}

func newItem(r *clip.Record) Item {
	item := Item{
		ID:        r.ID,
		Kind:      r.Kind.String(),
		Summary:   r.Summary(),
		CreatedAt: r.CreatedAt,
		Favorite:  r.Favorite,
		Bytes:     len(r.Content),
	}
	// Images are served separately from /api/history/{id}/image
	if p, err := r.Payload(); err == nil {
		switch p.Kind {
		case clip.Text:
			item.Text = p.Text
		case clip.FileList:
			item.Files = p.Files
		}
	}
	return item
}

// CaptureMessage tells dashboards to insert a new row or bump an existing one
type CaptureMessage struct {
	Item      Item `json:"item"`
	Duplicate bool `json:"duplicate"`
}

type IDMessage struct {
	ID int64 `json:"id"`
}

type FavoriteMessage struct {
	ID       int64 `json:"id"`
	Favorite bool  `json:"favorite"`
}

type VisibilityMessage struct {
	Visible bool `json:"visible"`
}

type FavoritesFilterMessage struct {
	FavoritesOnly bool `json:"favoritesOnly"`
}

type StatusMessage struct {
	CapturePaused bool `json:"capturePaused"`
	Visible       bool `json:"visible"`
	FavoritesOnly bool `json:"favoritesOnly"`
	Clients       int  `json:"clients"`
}
