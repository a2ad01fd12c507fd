package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pintatina/internal/app"
	"pintatina/internal/batch"
	"pintatina/internal/config"
	"pintatina/internal/counter"
	"pintatina/internal/document"
	"pintatina/internal/export"
	"pintatina/internal/progress"
	"pintatina/internal/reference"
	"pintatina/internal/session"
)

type generateOptions struct {
	Images         []string
	Description    string
	OutDir         string
	TUI            bool
	Retries        int
	JPEGQuality    int
	AttemptTimeout time.Duration
	CounterSeed    int64
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a coloring collection and save it as a PDF",
		Example: `  # One photo, plain progress lines
  coloring generate -i cat.jpg -d "@img1 as an astronaut"

  # Two photos, live view, retry failed pages twice
  coloring generate -i kid.png -i dog.png -d "@img1 walking @img2 in the park" --tui --retries 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if !cmd.Flags().Changed("jpeg-quality") {
				opts.JPEGQuality = cfg.DocumentJPEGQuality
			}
			opts.AttemptTimeout = cfg.AttemptTimeout
			opts.CounterSeed = cfg.CounterSeed

			provider, err := app.NewProvider(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("provider: %w", err)
			}

			res, snap, err := runGenerate(cmd.Context(), opts, provider, logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d pages → %s\n", snap.Completed(), len(snap.Items), res.Document)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Images, "image", "i", nil, "Reference photo, cited as @img1, @img2... in order (repeatable, up to 4)")
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "What the collection should show")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "exports", "Directory for the PDF and its manifest")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "Show a live view of the pages while they are generated")
	cmd.Flags().IntVar(&opts.Retries, "retries", 0, "Retry failed pages this many times")
	cmd.Flags().IntVar(&opts.JPEGQuality, "jpeg-quality", 0, "Re-encode pages as JPEG at this quality (0 keeps the originals)")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

// runGenerate runs one collection and its retries and exports the result.
// Cancelling ctx abandons the walk in flight.
func runGenerate(ctx context.Context, opts generateOptions, provider batch.Provider, logger *slog.Logger, progressOut io.Writer) (export.Result, batch.Snapshot, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if strings.TrimSpace(opts.Description) == "" {
		return export.Result{}, batch.Snapshot{}, session.ErrNoDescription
	}
	photos, err := loadPhotos(opts.Images, logger)
	if err != nil {
		return export.Result{}, batch.Snapshot{}, err
	}

	orch, err := batch.New(batch.Options{
		Provider:       provider,
		Logger:         logger,
		AttemptTimeout: opts.AttemptTimeout,
		Counter:        counter.New(opts.CounterSeed),
	})
	if err != nil {
		return export.Result{}, batch.Snapshot{}, err
	}

	events, unsubscribe := orch.Subscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		if opts.TUI {
			if _, err := progress.Run(ctx, "Pintatina", orch.Snapshot(), events, progressOut); err != nil {
				logger.Debug("progress view stopped", "err", err)
			}
			return
		}
		progress.Print(progressOut, events)
	}()

	type outcome struct {
		snap batch.Snapshot
		err  error
	}
	walked := make(chan outcome, 1)
	go func() {
		in := batch.Input{Description: opts.Description, Images: photos.Images()}
		snap, err := orch.GenerateAll(ctx, in)
		for i := 0; err == nil && i < opts.Retries && snap.Retryable(); i++ {
			logger.Info("retrying failed pages", "attempt", i+1, "completed", snap.Completed())
			snap, err = orch.RetryFailed(ctx)
		}
		walked <- outcome{snap: snap, err: err}
	}()

	var res outcome
	select {
	case res = <-walked:
	case <-ctx.Done():
		unsubscribe()
		return export.Result{}, batch.Snapshot{}, ctx.Err()
	}
	unsubscribe()
	<-rendered
	if res.err != nil {
		return export.Result{}, res.snap, res.err
	}

	doc, err := document.NewAssembler(document.Options{
		JPEGQuality: opts.JPEGQuality,
		Logger:      logger,
	}).Build(res.snap.Items)
	if err != nil {
		if errors.Is(err, document.ErrEmptyDocument) {
			return export.Result{}, res.snap, errors.New("no page could be generated")
		}
		return export.Result{}, res.snap, err
	}

	sink, err := export.NewDirSink(opts.OutDir)
	if err != nil {
		return export.Result{}, res.snap, err
	}
	exporter, err := export.New(export.Options{Sink: sink, Logger: logger})
	if err != nil {
		return export.Result{}, res.snap, err
	}
	out, err := exporter.Export(ctx, export.Bundle{
		Document:    doc,
		Snapshot:    res.snap,
		Description: opts.Description,
		Photos:      photos.Len(),
		CreatedAt:   time.Now(),
	})
	return out, res.snap, err
}

func loadPhotos(paths []string, logger *slog.Logger) (*reference.Set, error) {
	if len(paths) == 0 {
		return nil, session.ErrNoPhotos
	}
	uploads := make([]reference.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read photo: %w", err)
		}
		uploads = append(uploads, reference.Upload{Data: data})
	}

	set := reference.NewSet()
	added := set.Add(uploads...)
	if dropped := len(uploads) - len(added); dropped > 0 {
		logger.Warn("photos beyond capacity ignored", "dropped", dropped, "max", reference.MaxSlots)
	}
	if set.Len() == 0 {
		return nil, session.ErrNoPhotos
	}
	for _, slot := range set.List() {
		logger.Debug("photo loaded", "ordinal", slot.Ordinal, "mime", slot.MimeType, "bytes", slot.Size)
	}
	return set, nil
}
