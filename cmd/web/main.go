package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pintatina/internal/app"
	"pintatina/internal/config"
	"pintatina/internal/notify"
	"pintatina/internal/web"
)

const maxUploadBytes = 25 << 20

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)

	provider, err := app.NewProvider(context.Background(), cfg, logger)
	if err != nil {
		app.Fatal(logger, "provider init failed", err)
	}

	svc, err := app.NewService(cfg, provider, notify.Simulated{
		Delay:  cfg.NotifyDelay,
		Logger: logger,
	}, logger)
	if err != nil {
		app.Fatal(logger, "service init failed", err)
	}

	server, err := web.New(web.Options{
		Service:        svc,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
	})
	if err != nil {
		app.Fatal(logger, "web init failed", err)
	}

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web started", "addr", cfg.WebAddr, "backend", cfg.GeminiBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}

	// Walks started over HTTP keep running after their request returned.
	waitCtx, cancelWait := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	defer cancelWait()
	if err := server.Wait(waitCtx); err != nil {
		logger.Warn("background walks still running at exit", "err", err)
	}
}
