// Package web exposes sessions over a JSON HTTP API with a websocket feed
// of collection progress.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pintatina/internal/app"
	"pintatina/internal/session"
)

const defaultMaxUploadBytes = 25 << 20

type Options struct {
	Service        *app.Service
	Logger         *slog.Logger
	MaxUploadBytes int64
}

type Server struct {
	svc            *app.Service
	logger         *slog.Logger
	maxUploadBytes int64
	mux            *http.ServeMux

	// Walks outlive the request that started them.
	bgCtx context.Context
	wg    sync.WaitGroup
}

type apiError struct {
	Error string `json:"error"`
}

func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("web: service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		svc:            opts.Service,
		logger:         logger,
		maxUploadBytes: maxUpload,
		mux:            http.NewServeMux(),
		bgCtx:          context.Background(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/mentions/trigger", s.handleMentionTrigger)
	s.mux.HandleFunc("POST /api/mentions/insert", s.handleMentionInsert)

	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleGetSession))
	s.mux.HandleFunc("PATCH /api/sessions/{id}", s.withSession(s.handleUpdateSession))
	s.mux.HandleFunc("POST /api/sessions/{id}/photos", s.withSession(s.handleUploadPhotos))
	s.mux.HandleFunc("DELETE /api/sessions/{id}/photos/{slot}", s.withSession(s.handleRemovePhoto))
	s.mux.HandleFunc("POST /api/sessions/{id}/generate", s.withSession(s.handleGenerate))
	s.mux.HandleFunc("POST /api/sessions/{id}/retry", s.withSession(s.handleRetry))
	s.mux.HandleFunc("GET /api/sessions/{id}/collection", s.withSession(s.handleCollection))
	s.mux.HandleFunc("GET /api/sessions/{id}/items/{index}/image", s.withSession(s.handleItemImage))
	s.mux.HandleFunc("GET /api/sessions/{id}/document", s.withSession(s.handleDocument))
	s.mux.HandleFunc("POST /api/sessions/{id}/export", s.withSession(s.handleExport))
	s.mux.HandleFunc("POST /api/sessions/{id}/send", s.withSession(s.handleSend))
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.withSession(s.handleEvents))
}

func (s *Server) Handler() http.Handler {
	return withLogging(s.mux, s.logger)
}

// Wait blocks until every background walk has finished or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) background(name string, sess *session.Session, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.bgCtx); err != nil {
			s.logger.Warn("background run failed", "run", name, "session", sess.ID, "error", err)
		}
	}()
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.svc.Sessions().Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, apiError{Error: "session not found"})
			return
		}
		next(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
