package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"markestedt/clipkeeper/clip"
	"markestedt/clipkeeper/paste"
	"markestedt/clipkeeper/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// handleGetHistory returns paginated clipboard history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50 // default
	offset := 0

	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	favoritesOnly, _ := strconv.ParseBool(q.Get("favorites"))

	records, err := s.store.List(r.Context(), storage.ListOptions{
		Limit:         limit,
		Offset:        offset,
		FavoritesOnly: favoritesOnly,
		Query:         q.Get("query"),
	})
	if err != nil {
		s.log.Error("Failed to list history", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	total, err := s.store.Count(r.Context())
	if err != nil {
		s.log.Error("Failed to count history", "error", err)
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}

	items := make([]Item, 0, len(records))
	for _, rec := range records {
		items = append(items, newItem(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetImage serves the PNG of an image item
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("Failed to load item", "error", err, "id", id)
		http.Error(w, "Failed to load item", http.StatusInternalServerError)
		return
	}
	if rec.Kind != clip.Image {
		http.Error(w, "Item is not an image", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(rec.Content)
}

// handleDeleteHistory deletes an item by ID
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := s.store.Delete(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("Failed to delete item", "error", err, "id", id)
		http.Error(w, "Failed to delete item", http.StatusInternalServerError)
		return
	}

	s.hub.BroadcastMessage(Message{Type: MessageTypeDeleted, Data: IDMessage{ID: id}})
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleFavorite sets or clears the favorite flag
func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Favorite *bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Favorite == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.store.SetFavorite(r.Context(), id, *req.Favorite)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("Failed to update favorite", "error", err, "id", id)
		http.Error(w, "Failed to update favorite", http.StatusInternalServerError)
		return
	}

	s.hub.BroadcastMessage(Message{Type: MessageTypeFavorite, Data: FavoriteMessage{ID: id, Favorite: *req.Favorite}})
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handlePaste pastes an item into the window that was active when the dashboard opened
func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("Failed to load item", "error", err, "id", id)
		http.Error(w, "Failed to load item", http.StatusInternalServerError)
		return
	}

	if err := s.paster.Paste(r.Context(), rec); err != nil {
		s.log.Error("Paste failed", "error", err, "id", id)
		status := http.StatusInternalServerError
		if errors.Is(err, clip.ErrUnsupportedKind) {
			status = http.StatusUnprocessableEntity
		}
		step := "paste"
		switch {
		case errors.Is(err, paste.ErrClipboardWrite):
			step = "clipboard"
		case errors.Is(err, paste.ErrKeystroke):
			step = "keystroke"
		}
		writeJSON(w, status, map[string]string{"status": "error", "step": step, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleStatus returns the current agent status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}
