package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/logging"
	"github.com/nvandessel/livegraph/internal/loop"
	"github.com/nvandessel/livegraph/internal/ratelimit"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// maxSnapshotBytes bounds a snapshot request body.
const maxSnapshotBytes = 16 << 20

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Default: localhost:0 (OS-assigned port).
	Addr string

	// SurfaceWidth and SurfaceHeight size the page's drawing surface and
	// rendered SVGs. Default: 800x600.
	SurfaceWidth  int
	SurfaceHeight int

	// AllowedOrigins lists extra origins allowed to open the websocket.
	AllowedOrigins []string

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// Limits throttles inbound updates per client. Nil means unlimited.
	Limits ratelimit.Limits

	Logger *slog.Logger
}

// Server serves the live layout page, its websocket and the snapshot API.
// It owns no layout state; every pane lives in the loop.
type Server struct {
	loop     *loop.Loop
	opts     Options
	logger   *slog.Logger
	index    *template.Template
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a server over the given loop.
func NewServer(l *loop.Loop, opts Options) (*Server, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:0"
	}
	if opts.SurfaceWidth <= 0 || opts.SurfaceHeight <= 0 {
		opts.SurfaceWidth, opts.SurfaceHeight = 800, 600
	}

	tmpl, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	s := &Server{
		loop:   l,
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger),
		index:  tmpl,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the page URL, or empty string before the server starts.
func (s *Server) URL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr + "/"
	}
	return ""
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/frame", s.handleFrame)
	mux.HandleFunc("/api/frame.svg", s.handleFrame)
	mux.HandleFunc("/api/frame.dot", s.handleFrame)
	mux.HandleFunc("/api/panes", s.handlePanes)
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Cancelling also closes open websockets. Returns nil on clean
// shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Unlock()

	s.logger.Info("visualization server listening", "url", s.URL())

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type indexData struct {
	Pane   string
	Width  int
	Height int
}

// handleIndex serves the live layout page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var buf bytes.Buffer
	data := indexData{
		Pane:   paneParam(r),
		Width:  s.opts.SurfaceWidth,
		Height: s.opts.SurfaceHeight,
	}
	if err := s.index.Execute(&buf, data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

type snapshotResponse struct {
	Pane   string             `json:"pane"`
	Result layout.MergeResult `json:"result"`
}

// handleSnapshot merges a posted snapshot into a pane.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.opts.Limits.Check(ratelimit.ChannelSnapshot, clientKey(r)); err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	snap, err := snapshot.Parse(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pane := paneParam(r)
	result, err := s.loop.Update(r.Context(), pane, snap)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, snapshotResponse{Pane: pane, Result: result})
}

// handleReset discards a pane's layout.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.opts.Limits.Check(ratelimit.ChannelReset, clientKey(r)); err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	if err := s.loop.Reset(r.Context(), paneParam(r)); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFrame returns a pane's last published frame. The format comes from
// the path suffix or ?format=, defaulting to JSON.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	format := FormatJSON
	switch r.URL.Path {
	case "/api/frame.svg":
		format = FormatSVG
	case "/api/frame.dot":
		format = FormatDOT
	default:
		if q := r.URL.Query().Get("format"); q != "" {
			f, err := ParseFormat(q)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			format = f
		}
	}

	pane := paneParam(r)
	frame, ok := s.loop.Frame(pane)
	if !ok {
		http.Error(w, "no frame for pane: "+pane, http.StatusNotFound)
		return
	}
	data, err := Render(frame, format, s.opts.SurfaceWidth, s.opts.SurfaceHeight)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Write(data)
}

// handlePanes lists the panes that have published frames.
func (s *Server) handlePanes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string][]string{"panes": s.loop.Panes()})
}

// checkOrigin admits same-origin pages, localhost, and configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	s.logger.Warn("websocket origin rejected", "origin", origin)
	return false
}

func paneParam(r *http.Request) string {
	if p := r.URL.Query().Get("pane"); p != "" {
		return p
	}
	return loop.DefaultPane
}

// clientKey identifies an HTTP client for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusFor maps an update error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, snapshot.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, layout.ErrUnsupportedTransition):
		return http.StatusConflict
	case errors.Is(err, loop.ErrUnknownPane):
		return http.StatusNotFound
	case errors.Is(err, loop.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
