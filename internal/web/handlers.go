package web

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"pintatina/internal/app"
	"pintatina/internal/batch"
	"pintatina/internal/document"
	"pintatina/internal/mention"
	"pintatina/internal/notify"
	"pintatina/internal/reference"
	"pintatina/internal/session"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"generated": s.svc.Generated()})
}

type mentionRequest struct {
	Text    string `json:"text"`
	Cursor  int    `json:"cursor"`
	Ordinal int    `json:"ordinal,omitempty"`
}

func (s *Server) handleMentionTrigger(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	tr, ok := mention.DetectTrigger(req.Text, req.Cursor)
	writeJSON(w, http.StatusOK, map[string]any{"open": ok, "at": tr.At, "query": tr.Query})
}

func (s *Server) handleMentionInsert(w http.ResponseWriter, r *http.Request) {
	var req mentionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	text, cursor := mention.InsertMention(req.Text, req.Cursor, req.Ordinal)
	writeJSON(w, http.StatusOK, map[string]any{"text": text, "cursor": cursor})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions().Create()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, s.sessionView(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

type updateRequest struct {
	Description *string `json:"description"`
	Email       *string `json:"email"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	if req.Description != nil {
		sess.SetDescription(*req.Description)
	}
	if req.Email != nil {
		sess.SetAddress(*req.Email)
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleUploadPhotos(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}
	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing photos"})
		return
	}

	// Only what fits is read; the rest is dropped.
	accepted := files
	if remaining := sess.Photos.Remaining(); len(accepted) > remaining {
		accepted = accepted[:remaining]
	}

	uploads := make([]reference.Upload, len(accepted))
	g, _ := errgroup.WithContext(r.Context())
	for i, fh := range accepted {
		g.Go(func() error {
			data, err := readPart(fh)
			if err != nil {
				return err
			}
			uploads[i] = reference.Upload{Data: data, MimeType: fh.Header.Get("Content-Type")}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read photo"})
		return
	}

	added := sess.Photos.Add(uploads...)
	sess.Touch()
	writeJSON(w, http.StatusOK, map[string]any{
		"added":   added,
		"dropped": len(files) - len(added),
		"session": s.sessionView(sess),
	})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !sess.Photos.Remove(r.PathValue("slot")) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "photo not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	if req.Description != nil {
		sess.SetDescription(*req.Description)
	}
	if req.Email != nil {
		sess.SetAddress(*req.Email)
	}

	if _, err := sess.Input(); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	if !notify.ValidEmail(sess.Address()) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "a valid email is required"})
		return
	}
	if sess.Batch.Running() {
		writeJSON(w, http.StatusConflict, apiError{Error: batch.ErrBatchRunning.Error()})
		return
	}

	s.background("generate", sess, func(ctx context.Context) error {
		_, err := s.svc.Generate(ctx, sess)
		return err
	})
	writeJSON(w, http.StatusAccepted, newCollectionView(sess.ID, sess.Batch.Snapshot(), true))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if sess.Batch.Running() {
		writeJSON(w, http.StatusConflict, apiError{Error: batch.ErrBatchRunning.Error()})
		return
	}
	snap := sess.Batch.Snapshot()
	if !snap.Retryable() {
		writeJSON(w, http.StatusOK, newCollectionView(sess.ID, snap, false))
		return
	}
	if _, ok := sess.Batch.Input(); !ok {
		writeJSON(w, http.StatusConflict, apiError{Error: batch.ErrNoInput.Error()})
		return
	}

	s.background("retry", sess, func(ctx context.Context) error {
		_, err := s.svc.Retry(ctx, sess)
		return err
	})
	writeJSON(w, http.StatusAccepted, newCollectionView(sess.ID, snap, true))
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, newCollectionView(sess.ID, sess.Batch.Snapshot(), sess.Batch.Running()))
}

func (s *Server) handleItemImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	index, err := strconv.Atoi(r.PathValue("index"))
	snap := sess.Batch.Snapshot()
	if err != nil || index < 0 || index >= len(snap.Items) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "item not found"})
		return
	}
	it := snap.Items[index]
	if it.Status != batch.StatusCompleted || it.Result == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "item not completed"})
		return
	}
	w.Header().Set("content-type", it.Result.MimeType)
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(it.Result.Data)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	doc, name, err := s.svc.Document(sess)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	w.Header().Set("content-type", "application/pdf")
	w.Header().Set("content-disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("content-length", strconv.Itoa(len(doc.Data)))
	_, _ = w.Write(doc.Data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	res, err := s.svc.Export(r.Context(), sess)
	if err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sendRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid json"})
		return
	}
	address := strings.TrimSpace(req.Email)
	if address == "" {
		address = sess.Address()
	}
	if !notify.ValidEmail(address) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "a valid email is required"})
		return
	}
	if err := s.svc.Notify(r.Context(), sess, address); err != nil {
		s.writeDocumentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sent_to": address})
}

func (s *Server) writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrEmptyDocument):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error()})
	case errors.Is(err, notify.ErrInvalidAddress):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, app.ErrExportDisabled), errors.Is(err, app.ErrDeliveryDisabled):
		writeJSON(w, http.StatusNotImplemented, apiError{Error: err.Error()})
	default:
		s.logger.Error("document request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
	}
}

func (s *Server) sessionView(sess *session.Session) sessionView {
	photos := sess.Photos.List()
	desc := sess.Description()
	return sessionView{
		ID:          sess.ID,
		Description: desc,
		Email:       sess.Address(),
		Photos:      photos,
		Remaining:   reference.MaxSlots - len(photos),
		Dangling:    mention.Dangling(desc, len(photos)),
		Collection:  newCollectionView(sess.ID, sess.Batch.Snapshot(), sess.Batch.Running()),
		UpdatedAt:   sess.LastActivity(),
	}
}
