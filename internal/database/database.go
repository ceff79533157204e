// package database provides connection management for postgresql and sqlite.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/blockedby/carfeed/internal/models"
)

const sqlitePrefix = "sqlite://"

// DB wraps a GORM instance and, on postgresql, the pgx connection pool.
// Pool is nil when running on sqlite.
type DB struct {
	Pool *pgxpool.Pool
	GORM *gorm.DB
	URL  string
}

// New opens the database named by databaseURL.
// postgres:// urls get a pgx pool plus GORM; sqlite://path opens a local file.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	if IsSQLite(databaseURL) {
		gormDB, err := OpenSQLite(strings.TrimPrefix(databaseURL, sqlitePrefix))
		if err != nil {
			return nil, err
		}
		return &DB{GORM: gormDB, URL: databaseURL}, nil
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &DB{
		Pool: pool,
		GORM: gormDB,
		URL:  databaseURL,
	}, nil
}

// IsSQLite reports whether the url selects the sqlite backend.
func IsSQLite(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, sqlitePrefix)
}

// OpenSQLite opens a GORM handle on a sqlite dsn.
// Memory databases are pinned to one connection so every query sees the same data.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return gormDB, nil
}

// AutoMigrate creates the ingestion schema through GORM.
// Used for sqlite; postgresql is migrated by the embedded SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Brand{},
		&models.CarModel{},
		&models.Listing{},
		&models.IngestedMessage{},
		&models.Media{},
		&models.ImportCheckpoint{},
		&models.ImportRun{},
	)
}

// Close releases the pool and the GORM connections.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if sqlDB, err := db.GORM.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	sqlDB, err := db.GORM.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
