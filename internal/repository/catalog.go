package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blockedby/carfeed/internal/models"
)

// ListingsRepository reads listings and the brand/model catalog.
type ListingsRepository struct {
	db *gorm.DB
}

// NewListingsRepository creates a new ListingsRepository.
func NewListingsRepository(db *gorm.DB) *ListingsRepository {
	return &ListingsRepository{db: db}
}

// Get returns a listing with its photos ordered by position, nil when absent.
func (r *ListingsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&listing, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &listing, nil
}

// Count returns the number of stored listings.
func (r *ListingsRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Listing{}).Count(&n).Error
	return n, err
}

// Brands lists the catalog brands by name.
func (r *ListingsRepository) Brands(ctx context.Context) ([]models.Brand, error) {
	var brands []models.Brand
	err := r.db.WithContext(ctx).Order("name").Find(&brands).Error
	return brands, err
}

// linkCatalog resolves the listing's raw brand and model to catalog rows, creating them on first sight.
func linkCatalog(tx *gorm.DB, listing *models.Listing) error {
	if strings.TrimSpace(listing.BrandRaw) == "" {
		return nil
	}

	brand := &models.Brand{Name: listing.BrandRaw, NameKey: nameKey(listing.BrandRaw)}
	if err := matchOrCreate(tx, brand, "name_key = ?", brand.NameKey); err != nil {
		return fmt.Errorf("match brand %q: %w", listing.BrandRaw, err)
	}
	listing.BrandID = &brand.ID

	if strings.TrimSpace(listing.ModelRaw) == "" {
		return nil
	}

	model := &models.CarModel{BrandID: brand.ID, Name: listing.ModelRaw, NameKey: nameKey(listing.ModelRaw)}
	if err := matchOrCreate(tx, model, "brand_id = ? AND name_key = ?", brand.ID, model.NameKey); err != nil {
		return fmt.Errorf("match model %q: %w", listing.ModelRaw, err)
	}
	listing.CarModelID = &model.ID
	return nil
}

// matchOrCreate inserts row unless a row matching the query exists, then loads the stored row into it.
func matchOrCreate[T any](tx *gorm.DB, row *T, query string, args ...any) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return err
	}
	var stored T
	if err := tx.Where(query, args...).First(&stored).Error; err != nil {
		return err
	}
	*row = stored
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
