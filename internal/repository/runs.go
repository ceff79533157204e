package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/blockedby/carfeed/internal/models"
)

// RunsRepository stores import run audit records.
type RunsRepository struct {
	db *gorm.DB
}

// NewRunsRepository creates a new RunsRepository.
func NewRunsRepository(db *gorm.DB) *RunsRepository {
	return &RunsRepository{db: db}
}

// Create inserts a run, normally in the running state.
func (r *RunsRepository) Create(ctx context.Context, run *models.ImportRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// Finish persists the terminal state of a run.
// A run that is no longer running in the database yields models.ErrRunFinalized.
func (r *RunsRepository) Finish(ctx context.Context, run *models.ImportRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("finish run %s: status %q is not terminal", run.ID, run.Status)
	}

	res := r.db.WithContext(ctx).
		Model(run).
		Where("status = ?", models.RunStatusRunning).
		Select("*").
		Omit("ID", "Channel", "StartedAt").
		Updates(run)
	if res.Error != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrRunFinalized
	}
	return nil
}

// Get returns a run by id, nil when absent.
func (r *RunsRepository) Get(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// Recent returns the latest runs, newest first. An empty channel matches all channels.
func (r *RunsRepository) Recent(ctx context.Context, channel string, limit int) ([]models.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}

	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}

	var runs []models.ImportRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
