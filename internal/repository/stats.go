package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// IngestStats contains aggregated ingestion counters.
type IngestStats struct {
	MessagesTotal   int64 `json:"messages_total"`
	ParsedOK        int64 `json:"parsed_ok"`
	ParsedPartial   int64 `json:"parsed_partial"`
	ParseFailed     int64 `json:"parse_failed"`
	Skipped         int64 `json:"skipped"`
	ListingsTotal   int64 `json:"listings_total"`
	ListingsReview  int64 `json:"listings_review"`
	PhotosTotal     int64 `json:"photos_total"`
	RunsLastDay     int64 `json:"runs_last_day"`
	FailedRunsToday int64 `json:"failed_runs_last_day"`
}

// rowQuerier is the part of pgxpool.Pool the stats queries need.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatsRepository provides aggregated statistics on postgresql.
type StatsRepository struct {
	pool rowQuerier
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(pool rowQuerier) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// GetStats retrieves aggregated ingestion statistics.
func (r *StatsRepository) GetStats(ctx context.Context) (*IngestStats, error) {
	stats := &IngestStats{}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN parse_status = 'parsed_ok' THEN 1 END) AS ok,
			COUNT(CASE WHEN parse_status = 'parsed_partial' THEN 1 END) AS partial,
			COUNT(CASE WHEN parse_status = 'parse_failed' THEN 1 END) AS failed,
			COUNT(CASE WHEN parse_status = 'skipped' THEN 1 END) AS skipped
		FROM ingested_messages
	`).Scan(&stats.MessagesTotal, &stats.ParsedOK, &stats.ParsedPartial, &stats.ParseFailed, &stats.Skipped)
	if err != nil {
		return nil, fmt.Errorf("get message stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN status = 'review' THEN 1 END) AS review,
			(SELECT COUNT(*) FROM media) AS photos
		FROM listings
	`).Scan(&stats.ListingsTotal, &stats.ListingsReview, &stats.PhotosTotal)
	if err != nil {
		return nil, fmt.Errorf("get listing stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS runs,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) AS failed
		FROM import_runs
		WHERE started_at >= NOW() - INTERVAL '24 hours'
	`).Scan(&stats.RunsLastDay, &stats.FailedRunsToday)
	if err != nil {
		return nil, fmt.Errorf("get run stats: %w", err)
	}

	return stats, nil
}
