package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blockedby/carfeed/internal/app"
	"github.com/blockedby/carfeed/internal/config"
	"github.com/blockedby/carfeed/internal/ingest"
	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/metrics"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile, cfg.LogFormat); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	defer func() { _ = log.Close() }()
	log.Info().Msg("starting ingest service")

	metrics.Init()

	// 3. Setup context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Wire database, telegram, media and events
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			log.Fatal().Err(err).Msg("telegram credentials are not configured")
		}
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	// 5. Background imports
	imports := ingest.NewImportManager(a.Service, log)

	handlerDeps := ingest.HandlerDeps{
		Manager:        imports,
		Runs:           a.Runs,
		Checkpoints:    a.Checkpoints,
		Listings:       a.Listings,
		DefaultChannel: cfg.TGChannel,
		TelegramStatus: func() string { return string(a.Telegram.GetStatus()) },
		Ping:           a.DB.Ping,
	}
	if a.NATS != nil {
		handlerDeps.EventsConnected = a.NATS.IsConnected
	}
	if a.Stats != nil {
		handlerDeps.Stats = a.Stats
	}
	router := ingest.NewRouter(ingest.NewHandler(handlerDeps))

	if cfg.ImportInterval > 0 {
		go schedule(ctx, imports, cfg.TGChannel, cfg.ImportInterval)
	}

	// 6. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	// 7. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	if err := imports.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("imports did not finish before the deadline")
	}

	log.Info().Msg("shutdown complete")
}

// schedule starts an incremental import of the channel every interval.
// A tick that finds the channel busy is skipped.
func schedule(ctx context.Context, imports *ingest.ImportManager, channel string, interval time.Duration) {
	log := logger.Get()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := imports.Start(ctx, ingest.Options{Channel: channel})
			if err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("scheduled import skipped")
				continue
			}
			log.Info().Str("job_id", job.ID.String()).Str("channel", channel).Msg("scheduled import started")
		}
	}
}
