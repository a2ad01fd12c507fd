package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pintatina/internal/batch"
	"pintatina/internal/document"
)

// Manifest records what went into an exported document.
type Manifest struct {
	Document    string       `yaml:"document"`
	CreatedAt   time.Time    `yaml:"created_at"`
	Description string       `yaml:"description"`
	Photos      int          `yaml:"photos"`
	Pages       int          `yaml:"pages"`
	Items       []batch.Item `yaml:"items"`
}

// Bundle is everything needed to export one collection.
type Bundle struct {
	Document    document.Document
	Snapshot    batch.Snapshot
	Description string
	Photos      int
	CreatedAt   time.Time
}

// Result holds the locations returned by the sink.
type Result struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Manifest string `json:"manifest"`
}

type Options struct {
	Sink   Sink
	Logger *slog.Logger
}

type Exporter struct {
	sink   Sink
	logger *slog.Logger
}

func New(opts Options) (*Exporter, error) {
	if opts.Sink == nil {
		return nil, errors.New("export: sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{sink: opts.Sink, logger: logger}, nil
}

// Export saves the PDF and then its manifest, named after the document.
func (e *Exporter) Export(ctx context.Context, b Bundle) (Result, error) {
	if len(b.Document.Data) == 0 {
		return Result{}, document.ErrEmptyDocument
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	name := document.Filename(createdAt)

	docLoc, err := e.sink.Save(ctx, name, b.Document.Data, "application/pdf")
	if err != nil {
		return Result{}, fmt.Errorf("save document: %w", err)
	}

	manifest := Manifest{
		Document:    name,
		CreatedAt:   createdAt.UTC(),
		Description: b.Description,
		Photos:      b.Photos,
		Pages:       b.Document.Pages,
		Items:       b.Snapshot.Items,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return Result{}, fmt.Errorf("marshal manifest: %w", err)
	}

	manifestName := strings.TrimSuffix(name, ".pdf") + ".yaml"
	manifestLoc, err := e.sink.Save(ctx, manifestName, data, "application/yaml")
	if err != nil {
		return Result{}, fmt.Errorf("save manifest: %w", err)
	}

	e.logger.Info("collection exported", "document", docLoc, "pages", b.Document.Pages)
	return Result{Name: name, Document: docLoc, Manifest: manifestLoc}, nil
}
