// Package app assembles the ingestion pipeline from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/blockedby/carfeed/internal/config"
	"github.com/blockedby/carfeed/internal/database"
	"github.com/blockedby/carfeed/internal/ingest"
	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/media"
	"github.com/blockedby/carfeed/internal/migrator"
	"github.com/blockedby/carfeed/internal/nats"
	"github.com/blockedby/carfeed/internal/parser"
	"github.com/blockedby/carfeed/internal/publisher"
	"github.com/blockedby/carfeed/internal/repository"
	"github.com/blockedby/carfeed/internal/storage"
	"github.com/blockedby/carfeed/internal/telegram"
)

// App holds the wired components. Stats is nil on sqlite, NATS when NATS_URL is empty
// or unreachable.
type App struct {
	Config *config.Config
	Log    *logger.Logger

	DB       *database.DB
	Telegram *telegram.Manager
	Client   *telegram.Client
	NATS     *nats.Client

	Runs        *repository.RunsRepository
	Checkpoints *repository.CheckpointsRepository
	Listings    *repository.ListingsRepository
	Stats       *repository.StatsRepository

	Service *ingest.Service

	closers []func()
}

// New connects storage, telegram and events and builds the import service.
// Credentials are validated before any connection is opened.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, log := a.Config, a.Log

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.DB = db
	a.onClose(db.Close)

	if database.IsSQLite(cfg.DatabaseURL) {
		err = database.AutoMigrate(db.GORM)
	} else {
		err = migrator.New().Up(ctx, cfg.DatabaseURL)
	}
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	store, closeStore, err := storage.Open(ctx, storage.Config{
		Backend: cfg.MediaBackend,
		Dir:     cfg.MediaDir,
		Bucket:  cfg.MediaGCSBucket,
	})
	if err != nil {
		return fmt.Errorf("open media store: %w", err)
	}
	a.onClose(func() { _ = closeStore() })

	a.Telegram = telegram.NewManager(cfg, db.GORM)
	if err := a.Telegram.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("telegram manager init failed")
	}
	a.Client = telegram.NewClient(a.Telegram)
	a.onClose(a.Client.Close)

	var pub ingest.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else if err := nc.EnsureListingsStream(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to ensure listings stream, publishing disabled")
			nc.Close()
		} else {
			a.NATS = nc
			a.onClose(nc.Close)
			pub = publisher.NewNATSPublisher(nc)
		}
	}

	a.Runs = repository.NewRunsRepository(db.GORM)
	a.Checkpoints = repository.NewCheckpointsRepository(db.GORM)
	a.Listings = repository.NewListingsRepository(db.GORM)

	var guard ingest.RunGuard = ingest.NewLocalGuard()
	if db.Pool != nil {
		a.Stats = repository.NewStatsRepository(db.Pool)
		guard = ingest.NewLockerGuard(repository.NewAdvisoryLocker(db.Pool))
	}

	a.Service = ingest.NewService(ingest.Deps{
		Source: a.Client,
		Media: media.NewDownloader(a.Client, store, log,
			media.WithMaxBytes(cfg.MediaMaxBytes),
			media.WithTimeout(cfg.MediaDownloadTimeout),
		),
		Ledger:      repository.NewLedgerRepository(db.GORM),
		Checkpoints: a.Checkpoints,
		Runs:        a.Runs,
		Publisher:   pub,
		Guard:       guard,
		Parser:      parser.New(parser.WithDefaultCity(cfg.DefaultCity)),
		Log:         log,
		PublicHost:  cfg.TGPublicHost,
		BatchSize:   cfg.BatchSize,
	})

	return nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
