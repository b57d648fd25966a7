package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"markestedt/clipkeeper/capture"
	"markestedt/clipkeeper/clip"
	"markestedt/clipkeeper/storage"
)

//go:embed static/*
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The server only listens on loopback
	},
}

// Store is the history the dashboard reads and edits
type Store interface {
	List(ctx context.Context, opts storage.ListOptions) ([]*clip.Record, error)
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, id int64) (*clip.Record, error)
	Delete(ctx context.Context, id int64) error
	SetFavorite(ctx context.Context, id int64, favorite bool) error
}

// Paster pastes a history item into the frozen target window
type Paster interface {
	Paste(ctx context.Context, rec *clip.Record) error
}

// Options configures a Server
type Options struct {
	Port int
	// OpenBrowser is used by Show when no dashboard is connected
	OpenBrowser func(url string) error
	// OnVisibility runs when the dashboard is shown or hidden
	OnVisibility func(visible bool)
	// OnShown runs when a shown dashboard reports it holds focus, so the
	// caller can treat the foreground window as the manager window
	OnShown func()
	// CapturePaused reports the capture state for /api/status
	CapturePaused func() bool
	Logger        *slog.Logger
}

// Server is the local history dashboard. It also acts as the manager UI:
// showing it freezes the paste target and pasting hides it again.
type Server struct {
	store  Store
	paster Paster
	opts   Options
	hub    *Hub
	log    *slog.Logger

	mu            sync.Mutex
	visible       bool
	favoritesOnly bool
	hideAck       chan struct{}
	httpServer    *http.Server
	addr          string
}

// NewServer creates a new web server
func NewServer(store Store, paster Paster, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		store:  store,
		paster: paster,
		opts:   opts,
		log:    opts.Logger.With("component", "web"),
	}
	s.hub = NewHub(s.log, s.onClientMessage)
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("GET /api/history", s.handleGetHistory)
	mux.HandleFunc("GET /api/history/{id}/image", s.handleGetImage)
	mux.HandleFunc("DELETE /api/history/{id}", s.handleDeleteHistory)
	mux.HandleFunc("POST /api/favorite/{id}", s.handleFavorite)
	mux.HandleFunc("POST /api/paste/{id}", s.handlePaste)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to load static files: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	return mux, nil
}

// Start listens on the loopback port and serves until ctx is done or Stop is called
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.opts.Port, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go s.hub.Run(ctx)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Web server stopped", "error", err)
		}
	}()

	s.log.Info("Starting web server", "url", s.URL())
	return nil
}

// Stop shuts the HTTP server down
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	return nil
}

// URL returns the dashboard address
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return "http://" + s.addr
	}
	return fmt.Sprintf("http://127.0.0.1:%d", s.opts.Port)
}

// Visible reports whether the dashboard is shown
func (s *Server) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Show brings the dashboard up, opening a browser when none is connected
func (s *Server) Show() {
	s.mu.Lock()
	if s.visible {
		s.mu.Unlock()
		return
	}
	s.visible = true
	s.mu.Unlock()

	if s.opts.OnVisibility != nil {
		s.opts.OnVisibility(true)
	}
	s.hub.BroadcastMessage(Message{Type: MessageTypeVisibility, Data: VisibilityMessage{Visible: true}})

	if s.hub.ClientCount() == 0 && s.opts.OpenBrowser != nil {
		if err := s.opts.OpenBrowser(s.URL()); err != nil {
			s.log.Error("Failed to open dashboard", "error", err)
		}
	}
}

// Hide asks connected dashboards to hide and waits for the first one to
// confirm. It returns immediately when no dashboard is connected.
func (s *Server) Hide(ctx context.Context) error {
	s.mu.Lock()
	wasVisible := s.visible
	s.visible = false
	ack := make(chan struct{}, 1)
	s.hideAck = ack
	s.mu.Unlock()

	if wasVisible && s.opts.OnVisibility != nil {
		s.opts.OnVisibility(false)
	}

	if s.hub.ClientCount() == 0 {
		return nil
	}
	s.hub.BroadcastMessage(Message{Type: MessageTypeVisibility, Data: VisibilityMessage{Visible: false}})

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dashboard did not confirm hide: %w", ctx.Err())
	}
}

// Toggle shows a hidden dashboard or hides a visible one
func (s *Server) Toggle(ctx context.Context) {
	if !s.Visible() {
		s.Show()
		return
	}
	if err := s.Hide(ctx); err != nil {
		s.log.Warn("Failed to hide dashboard", "error", err)
	}
}

// ToggleFavoritesFilter flips the dashboard between all items and favorites
func (s *Server) ToggleFavoritesFilter() bool {
	s.mu.Lock()
	s.favoritesOnly = !s.favoritesOnly
	on := s.favoritesOnly
	s.mu.Unlock()

	s.hub.BroadcastMessage(Message{Type: MessageTypeFavoritesFilter, Data: FavoritesFilterMessage{FavoritesOnly: on}})
	return on
}

// BroadcastCapture tells dashboards about a captured item
func (s *Server) BroadcastCapture(res capture.Result) {
	if res.Record == nil {
		return
	}
	s.hub.BroadcastMessage(Message{
		Type: MessageTypeCapture,
		Data: CaptureMessage{Item: newItem(res.Record), Duplicate: res.Duplicate},
	})
}

// BroadcastStatus pushes the current status to dashboards
func (s *Server) BroadcastStatus() {
	s.hub.BroadcastMessage(Message{Type: MessageTypeStatus, Data: s.status()})
}

func (s *Server) status() StatusMessage {
	s.mu.Lock()
	st := StatusMessage{
		Visible:       s.visible,
		FavoritesOnly: s.favoritesOnly,
	}
	s.mu.Unlock()

	st.Clients = s.hub.ClientCount()
	if s.opts.CapturePaused != nil {
		st.CapturePaused = s.opts.CapturePaused()
	}
	return st
}

func (s *Server) onClientMessage(msg Message) {
	switch msg.Type {
	case MessageTypeHidden:
		s.mu.Lock()
		ack := s.hideAck
		s.hideAck = nil
		s.mu.Unlock()
		if ack != nil {
			ack <- struct{}{}
		}
	case MessageTypeShown:
		if s.Visible() && s.opts.OnShown != nil {
			s.opts.OnShown()
		}
	default:
		s.log.Debug("Ignoring dashboard message", "type", msg.Type)
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	if !s.hub.add(conn) {
		conn.Close()
		return
	}
	s.BroadcastStatus()
}
