package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"vmanga/internal/api"
	"vmanga/internal/config"
	"vmanga/internal/jobs"
	"vmanga/internal/license"
	"vmanga/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type apiServer struct {
	bind     string
	token    string
	logger   *slog.Logger
	daemon   *Daemon
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server
}

// fileRequest is the body of the file and job POST endpoints.
type fileRequest struct {
	Path       string `json:"path"`
	JobID      string `json:"jobId"`
	ResultPath string `json:"resultPath"`
	File       string `json:"file"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		// A nil CheckOrigin keeps gorilla's same-origin check.
		upgrader: websocket.Upgrader{},
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlate)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware(s.token))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/files", s.handleFiles)
		r.Get("/files/snapshot", s.handleSnapshot)
		r.Post("/files/open", s.handleOpen)
		r.Post("/files/close", s.handleClose)
		r.Post("/files/activate", s.handleActivate)
		r.Post("/files/rescan", s.handleRescan)
		r.Post("/jobs/retry", s.handleRetry)
		r.Post("/jobs/reset-incomplete", s.handleResetIncomplete)
		r.Post("/jobs/delete-result", s.handleDeleteResult)
		r.Post("/jobs/link", s.handleLink)
		r.Post("/watchdog/sweep", s.handleSweep)
		r.Get("/stats", s.handleStats)
		r.Post("/stats/clear", s.handleStatsClear)
		r.Get("/ws", s.handleWS)
	})
	return r
}

// correlate copies chi's request id onto the context so handler and gateway
// logs carry it as correlation_id.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()).API())
}

func (s *apiServer) handleFiles(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Files())
}

func (s *apiServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Snapshot(r.URL.Query().Get("path"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleOpen(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	snap, err := s.daemon.OpenFile(r.Context(), req.Path)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleClose(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.writeResult(w, r, s.daemon.CloseFile(r.Context(), req.Path))
}

func (s *apiServer) handleActivate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.writeResult(w, r, s.daemon.Activate(r.Context(), req.Path))
}

func (s *apiServer) handleRescan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.writeResult(w, r, s.daemon.Rescan(r.Context(), req.Path))
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeJob(w, r)
	if !ok {
		return
	}
	s.writeResult(w, r, s.daemon.Retry(r.Context(), req.Path, req.JobID))
}

func (s *apiServer) handleResetIncomplete(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	n, err := s.daemon.ResetIncomplete(r.Context(), req.Path)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

func (s *apiServer) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeJob(w, r)
	if !ok {
		return
	}
	s.writeResult(w, r, s.daemon.DeleteResult(r.Context(), req.Path, req.JobID, req.ResultPath))
}

func (s *apiServer) handleLink(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeJob(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.File) == "" {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	s.writeResult(w, r, s.daemon.Link(r.Context(), req.Path, req.JobID, req.File))
}

func (s *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.requireJSON(w, r) {
		return
	}
	res, err := s.daemon.Sweep(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleStatsClear(w http.ResponseWriter, r *http.Request) {
	if !s.requireJSON(w, r) {
		return
	}
	var req struct {
		Day string `json:"day"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	removed, err := s.daemon.ClearStats(r.Context(), req.Day)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 7
	}
	stats, err := s.daemon.Stats(r.Context(), days)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleWS streams registry events. The first message is the current file list.
func (s *apiServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.daemon.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(payload any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(payload)
	}
	if err := write(map[string]any{"kind": "files", "files": s.daemon.Files()}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(api.FromEvent(ev)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// requireJSON rejects mutations not sent as application/json. Browsers send
// text/plain and form posts cross-origin without a preflight, so those never
// reach a handler.
func (s *apiServer) requireJSON(w http.ResponseWriter, r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		s.writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return false
	}
	return true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request) (fileRequest, bool) {
	var req fileRequest
	if !s.requireJSON(w, r) {
		return req, false
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return req, false
		}
	}
	return req, true
}

func (s *apiServer) decodeJob(w http.ResponseWriter, r *http.Request) (fileRequest, bool) {
	req, ok := s.decode(w, r)
	if !ok {
		return req, false
	}
	if strings.TrimSpace(req.JobID) == "" {
		s.writeError(w, http.StatusBadRequest, "jobId is required")
		return req, false
	}
	return req, true
}

func (s *apiServer) writeResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, license.ErrNotActivated):
		return http.StatusForbidden
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrStructure), errors.Is(err, jobs.ErrParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
