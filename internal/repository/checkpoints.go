package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/blockedby/carfeed/internal/models"
)

// CheckpointsRepository stores the per-channel high-water mark.
type CheckpointsRepository struct {
	db *gorm.DB
}

// NewCheckpointsRepository creates a new CheckpointsRepository.
func NewCheckpointsRepository(db *gorm.DB) *CheckpointsRepository {
	return &CheckpointsRepository{db: db}
}

// Get returns the checkpoint of a channel. A channel never imported yields a zero checkpoint.
func (r *CheckpointsRepository) Get(ctx context.Context, channel string) (*models.ImportCheckpoint, error) {
	var cp models.ImportCheckpoint
	err := r.db.WithContext(ctx).Where("channel = ?", channel).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ImportCheckpoint{Channel: channel}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", channel, err)
	}
	return &cp, nil
}

// List returns all checkpoints ordered by channel.
func (r *CheckpointsRepository) List(ctx context.Context) ([]models.ImportCheckpoint, error) {
	var cps []models.ImportCheckpoint
	if err := r.db.WithContext(ctx).Order("channel").Find(&cps).Error; err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return cps, nil
}

// Advance records a finished run. The high-water mark never moves backwards.
func (r *CheckpointsRepository) Advance(ctx context.Context, channel string, lastMessageID, imported int64, at time.Time) (*models.ImportCheckpoint, error) {
	var cp models.ImportCheckpoint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("channel = ?", channel).First(&cp).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if !found {
			cp = models.ImportCheckpoint{Channel: channel}
		}

		cp.LastMessageID = max(cp.LastMessageID, lastMessageID)
		cp.TotalImported += imported
		cp.LastRunAt = &at

		if found {
			return tx.Save(&cp).Error
		}
		return tx.Create(&cp).Error
	})
	if err != nil {
		return nil, fmt.Errorf("advance checkpoint %s: %w", channel, err)
	}
	return &cp, nil
}
