package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"pintatina/internal/batch"
	"pintatina/internal/counter"
	"pintatina/internal/document"
	"pintatina/internal/export"
	"pintatina/internal/notify"
	"pintatina/internal/session"
)

var (
	// ErrExportDisabled is returned by Export when no sink is configured.
	ErrExportDisabled = errors.New("export is not configured")
	// ErrDeliveryDisabled is returned by Notify without a notifier.
	ErrDeliveryDisabled = errors.New("delivery is not configured")
)

type serviceOptions struct {
	Sessions  *session.Registry
	Assembler *document.Assembler
	Exporter  *export.Exporter
	Notifier  notify.Notifier
	Counter   *counter.Counter
	Logger    *slog.Logger
	// Now is used to name documents; defaults to time.Now.
	Now func() time.Time
}

// Service runs the session level flow shared by every front-end:
// generate, retry, build the document, export and deliver it.
type Service struct {
	sessions  *session.Registry
	assembler *document.Assembler
	exporter  *export.Exporter
	notifier  notify.Notifier
	counter   *counter.Counter
	logger    *slog.Logger
	now       func() time.Time
}

func newService(opts serviceOptions) (*Service, error) {
	if opts.Sessions == nil {
		return nil, errors.New("app: session registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	assembler := opts.Assembler
	if assembler == nil {
		assembler = document.NewAssembler(document.Options{Logger: logger})
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		sessions:  opts.Sessions,
		assembler: assembler,
		exporter:  opts.Exporter,
		notifier:  opts.Notifier,
		counter:   opts.Counter,
		logger:    logger,
		now:       now,
	}, nil
}

func (s *Service) Sessions() *session.Registry {
	return s.sessions
}

// Generated is the collections-generated tally.
func (s *Service) Generated() int64 {
	if s.counter == nil {
		return 0
	}
	return s.counter.Value()
}

// Generate validates the session, runs the whole collection and, when at
// least one page completed and the session has an address, delivers the
// document. Delivery problems are logged and never returned.
func (s *Service) Generate(ctx context.Context, sess *session.Session) (batch.Snapshot, error) {
	in, err := sess.Input()
	if err != nil {
		return batch.Snapshot{}, err
	}

	snap, err := sess.Batch.GenerateAll(ctx, in)
	if err != nil {
		return batch.Snapshot{}, err
	}

	if snap.Completed() > 0 && sess.Address() != "" && s.notifier != nil {
		if err := s.Notify(context.WithoutCancel(ctx), sess, sess.Address()); err != nil {
			s.logger.Warn("automatic delivery failed", "session", sess.ID, "error", err)
		}
	}
	return snap, nil
}

// Retry re-attempts pending and failed pages of the session's collection.
func (s *Service) Retry(ctx context.Context, sess *session.Session) (batch.Snapshot, error) {
	return sess.Batch.RetryFailed(ctx)
}

// Document renders the completed pages of the session as a PDF.
func (s *Service) Document(sess *session.Session) (document.Document, string, error) {
	doc, err := s.assembler.Build(sess.Batch.Snapshot().Items)
	if err != nil {
		return document.Document{}, "", err
	}
	return doc, document.Filename(s.now()), nil
}

func (s *Service) Export(ctx context.Context, sess *session.Session) (export.Result, error) {
	if s.exporter == nil {
		return export.Result{}, ErrExportDisabled
	}
	snap := sess.Batch.Snapshot()
	doc, err := s.assembler.Build(snap.Items)
	if err != nil {
		return export.Result{}, err
	}
	return s.exporter.Export(ctx, export.Bundle{
		Document:    doc,
		Snapshot:    snap,
		Description: sess.Description(),
		Photos:      sess.Photos.Len(),
		CreatedAt:   s.now(),
	})
}

// Notify delivers the current document to address.
func (s *Service) Notify(ctx context.Context, sess *session.Session, address string) error {
	if s.notifier == nil {
		return ErrDeliveryDisabled
	}
	doc, name, err := s.Document(sess)
	if err != nil {
		return err
	}
	if err := s.notifier.Deliver(ctx, notify.Delivery{Address: address, Name: name, Document: doc}); err != nil {
		return fmt.Errorf("deliver %s: %w", name, err)
	}
	s.logger.Info("document sent", "session", sess.ID, "pages", doc.Pages)
	return nil
}
