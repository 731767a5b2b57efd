package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/juno/internal/eventbus"
	"pkt.systems/juno/internal/logx"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// Shell is the part of the notebook shell the pages drive.
type Shell interface {
	OpenNotebook(ctx context.Context, raw string) error
	OpenDialog(ctx context.Context, parent schema.WindowID) error
	WindowCommand(id schema.WindowID) (string, error)
	Restart(ctx context.Context, id schema.WindowID, command string) error
	Windows() []schema.WindowInfo
}

// CondaFunc resolves a launch command for a conda environment.
type CondaFunc func(ctx context.Context, env string) (string, error)

// Server serves the embedded pages and their JSON/SSE endpoints.
type Server struct {
	cfg     Config
	shell   Shell
	hub     *Hub
	dialogs *DialogBroker
	events  *eventbus.Bus
	conda   CondaFunc
	baseCtx context.Context
}

// NewServer constructs the front-end server.
func NewServer(cfg Config, shell Shell, hub *Hub, dialogs *DialogBroker, events *eventbus.Bus) *Server {
	if dialogs == nil {
		dialogs = NewDialogBroker()
	}
	return &Server{
		cfg:     cfg,
		shell:   shell,
		hub:     hub,
		dialogs: dialogs,
		events:  events,
		baseCtx: context.Background(),
	}
}

// SetShell attaches the shell once it is constructed.
func (s *Server) SetShell(shell Shell) {
	s.shell = shell
}

// SetConda installs the conda command resolver.
func (s *Server) SetConda(fn CondaFunc) {
	s.conda = fn
}

// SetBaseContext sets the context shell actions run under. Actions outlive
// the request that triggered them.
func (s *Server) SetBaseContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	s.baseCtx = ctx
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	static := http.FileServer(http.FS(assetsFS))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/connect.html", http.StatusFound)
	})
	mux.HandleFunc("GET /connect.html", s.handlePage("connect.html"))
	mux.HandleFunc("GET /server.html", s.handlePage("server.html"))
	mux.HandleFunc("GET /dialog.html", s.handlePage("dialog.html"))
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", static))

	mux.HandleFunc("GET /api/surfaces/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /api/windows", s.handleWindows)
	mux.HandleFunc("GET /api/windows/{id}/command", s.handleGetCommand)
	mux.HandleFunc("POST /api/windows/{id}/command", s.handleRestart)
	mux.HandleFunc("POST /api/open", s.handleOpen)
	mux.HandleFunc("POST /api/open-dialog", s.handleOpenDialog)
	mux.HandleFunc("POST /api/conda", s.handleConda)
	mux.HandleFunc("POST /api/dialogs/{id}", s.handleDialogAnswer)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return withRequestLogging(mux)
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(assetsFS, name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource string `json:"resource"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	if s.shell == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("shell not ready"))
		return
	}
	if err := s.shell.OpenNotebook(s.actionContext(r), req.Resource); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleOpenDialog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Window schema.WindowID `json:"window"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	if s.shell == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("shell not ready"))
		return
	}
	if err := s.shell.OpenDialog(s.actionContext(r), req.Window); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if s.shell == nil {
		writeJSON(w, http.StatusOK, map[string]any{"windows": []schema.WindowInfo{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": s.shell.Windows()})
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	if s.shell == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("shell not ready"))
		return
	}
	id := schema.WindowID(r.PathValue("id"))
	cmd, err := s.shell.WindowCommand(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cmd": cmd})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cmd string `json:"cmd"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	if s.shell == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("shell not ready"))
		return
	}
	id := schema.WindowID(r.PathValue("id"))
	ctx := logx.ContextWithWindow(s.actionContext(r), id)
	if err := s.shell.Restart(ctx, id, req.Cmd); err != nil {
		pslog.Ctx(ctx).Warn("http restart failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleConda(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Env string `json:"env"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || strings.TrimSpace(req.Env) == "" {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	if s.conda == nil {
		writeError(w, http.StatusNotImplemented, errors.New("conda lookup unavailable"))
		return
	}
	cmd, err := s.conda(r.Context(), strings.TrimSpace(req.Env))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cmd": cmd})
}

func (s *Server) handleDialogAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Button int `json:"button"`
	}
	if err := decodeJSON(r.Body, &req); err != nil || req.Button < 0 {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	if err := s.dialogs.Answer(schema.SurfaceID(r.PathValue("id")), req.Button); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleStream pushes a surface's messages. With ?window= set, lifecycle
// events of that window are interleaved without sequence numbers.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	surface := schema.SurfaceID(r.PathValue("id"))
	if surface == "" {
		writeError(w, http.StatusBadRequest, schema.ErrInvalidRequest)
		return
	}
	window := schema.WindowID(r.URL.Query().Get("window"))
	log := pslog.Ctx(r.Context()).With("surface", surface)
	if window != "" {
		log = logx.WithWindow(log, window)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	var windowEvents <-chan schema.WindowEvent
	if window != "" && s.events != nil {
		events, cancel := s.events.Subscribe(window)
		defer cancel()
		windowEvents = events
	}

	ch, unsubscribe, replay := s.hub.Subscribe(surface, lastID)
	defer unsubscribe()
	for _, event := range replay {
		_ = writeSSEvent(w, event)
	}
	flusher.Flush()

	notify := r.Context().Done()
	log.Debug("http stream opened", "last_id", lastID, "replay", len(replay))
	for {
		select {
		case <-notify:
			log.Debug("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				log.Debug("http stream ended", "reason", "surface dropped")
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		case ev, ok := <-windowEvents:
			if !ok {
				windowEvents = nil
				continue
			}
			_ = writeSSEvent(w, StreamEvent{
				Message:   schema.Message{Type: schema.MessageWindow, Window: &ev},
				Timestamp: time.Now(),
			})
			flusher.Flush()
		}
	}
}

// handleEvents streams window lifecycle events, optionally filtered by
// ?window=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.events == nil {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	window := schema.WindowID(r.URL.Query().Get("window"))
	events, cancel := s.events.Subscribe(window)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = writeSSEvent(w, StreamEvent{
				Message:   schema.Message{Type: schema.MessageWindow, Window: &ev},
				Timestamp: time.Now(),
			})
			flusher.Flush()
		}
	}
}

func (s *Server) actionContext(r *http.Request) context.Context {
	return pslog.ContextWithLogger(s.baseCtx, pslog.Ctx(r.Context()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrResourceRequired), errors.Is(err, schema.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrResourceNotFound), errors.Is(err, schema.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrNotLocal), errors.Is(err, schema.ErrServerRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
