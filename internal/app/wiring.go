// Package app builds the shared services from configuration for the
// web server, the Telegram bot and the command line tool.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"pintatina/internal/batch"
	"pintatina/internal/config"
	"pintatina/internal/counter"
	"pintatina/internal/document"
	"pintatina/internal/export"
	"pintatina/internal/gemini"
	"pintatina/internal/httpclient"
	"pintatina/internal/notify"
	"pintatina/internal/session"
)

// NewLogger returns a JSON logger writing to w at the given level name.
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// NewProvider builds the image provider selected by GEMINI_BACKEND.
func NewProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (batch.Provider, error) {
	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4:            cfg.PreferIPv4,
		Timeout:               cfg.HTTPTimeout,
		ResponseHeaderTimeout: cfg.AttemptTimeout,
	})
	opts := gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Logger:     logger,
	}
	if cfg.GeminiBackend == config.BackendSDK {
		return gemini.NewSDK(ctx, opts)
	}
	return gemini.NewREST(opts)
}

// NewSink returns an S3 sink when a bucket is configured, otherwise a local
// directory sink. An empty EXPORT_DIR without S3 disables exports.
func NewSink(cfg config.Config) (export.Sink, error) {
	if cfg.S3.Enabled() {
		return export.NewS3Sink(export.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    "collections",
		})
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		return nil, nil
	}
	return export.NewDirSink(cfg.ExportDir)
}

// NewService wires the registry, assembler, exporter and counter around
// provider. notifier may be nil.
func NewService(cfg config.Config, provider batch.Provider, notifier notify.Notifier, logger *slog.Logger) (*Service, error) {
	tally := counter.New(cfg.CounterSeed)

	registry, err := session.NewRegistry(session.Options{
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
		NewBatch: func() (*batch.Orchestrator, error) {
			return batch.New(batch.Options{
				Provider:       provider,
				Logger:         logger,
				AttemptTimeout: cfg.AttemptTimeout,
				Counter:        tally,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	var exporter *export.Exporter
	sink, err := NewSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("export sink: %w", err)
	}
	if sink != nil {
		exporter, err = export.New(export.Options{Sink: sink, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	return newService(serviceOptions{
		Sessions:  registry,
		Assembler: document.NewAssembler(document.Options{JPEGQuality: cfg.DocumentJPEGQuality, Logger: logger}),
		Exporter:  exporter,
		Notifier:  notifier,
		Counter:   tally,
		Logger:    logger,
	})
}

// Fatal logs err and exits, for use in main before anything is running.
func Fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
