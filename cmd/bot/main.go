package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pintatina/internal/app"
	"pintatina/internal/config"
	"pintatina/internal/handlers"
	"pintatina/internal/httpclient"
	"pintatina/internal/mediagroup"
	"pintatina/internal/notify"
	"pintatina/internal/reference"
	"pintatina/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)

	if err := cfg.RequireTelegram(); err != nil {
		app.Fatal(logger, "telegram config invalid", err)
	}

	tg, err := telegram.New(telegram.Options{
		Token: cfg.TelegramToken,
		HTTPClient: httpclient.New(httpclient.Options{
			PreferIPv4: cfg.PreferIPv4,
			Timeout:    cfg.HTTPTimeout,
		}),
		Logger: logger,
		Debug:  cfg.Debug,
	})
	if err != nil {
		app.Fatal(logger, "telegram init failed", err)
	}

	provider, err := app.NewProvider(context.Background(), cfg, logger)
	if err != nil {
		app.Fatal(logger, "provider init failed", err)
	}

	svc, err := app.NewService(cfg, provider, notify.Telegram{
		Sender:  tg,
		Caption: "Tu colección para colorear 🖍️",
	}, logger)
	if err != nil {
		app.Fatal(logger, "service init failed", err)
	}

	handler, err := handlers.New(handlers.Options{
		Messenger: tg,
		Service:   svc,
		Logger:    logger,
	})
	if err != nil {
		app.Fatal(logger, "handler init failed", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var inflight sync.WaitGroup
	sem := make(chan struct{}, cfg.MaxConcurrent)
	acquire := func() bool {
		select {
		case sem <- struct{}{}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	onGroupFlush := func(group mediagroup.Group) {
		if !acquire() {
			return
		}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer func() { <-sem }()
			handler.HandleMediaGroup(ctx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		Limit:    reference.MaxSlots,
		OnFlush:  onGroupFlush,
	})
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "max_concurrent", cfg.MaxConcurrent)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})

	defer func() {
		tg.StopUpdates()
		aggregator.Stop()
		inflight.Wait()
		logger.Info("bot stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}
			if !acquire() {
				return
			}

			inflight.Add(1)
			go func(update telegram.Update) {
				defer inflight.Done()
				defer func() { <-sem }()

				if err := handler.HandleUpdate(ctx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}
