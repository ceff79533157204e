package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Brand is a canonical vehicle make. NameKey is the lowercased name used for matching.
type Brand struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	NameKey   string    `json:"-" gorm:"size:100;not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the GORM table name.
func (Brand) TableName() string { return "brands" }

// BeforeCreate assigns an id when none was set.
func (b *Brand) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// CarModel is a model of a brand, matched by lowercased name within the brand.
type CarModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	BrandID   uuid.UUID `json:"brand_id" gorm:"type:uuid;not null;uniqueIndex:idx_car_models_brand_key"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	NameKey   string    `json:"-" gorm:"size:100;not null;uniqueIndex:idx_car_models_brand_key"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the GORM table name.
func (CarModel) TableName() string { return "car_models" }

// BeforeCreate assigns an id when none was set.
func (m *CarModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Listing is a vehicle-for-sale record derived from one message.
type Listing struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Title string    `json:"title" gorm:"size:255;not null"`

	BrandID    *uuid.UUID `json:"brand_id,omitempty" gorm:"type:uuid;index"`
	CarModelID *uuid.UUID `json:"car_model_id,omitempty" gorm:"type:uuid"`
	BrandRaw   string     `json:"brand_raw,omitempty" gorm:"size:100"`
	ModelRaw   string     `json:"model_raw,omitempty" gorm:"size:100"`

	Year          *int     `json:"year,omitempty"`
	Month         *int     `json:"month,omitempty"`
	EngineVolumeL *float64 `json:"engine_volume_l,omitempty" gorm:"column:engine_volume_l"`
	Turbo         *bool    `json:"turbo,omitempty"`
	Horsepower    *int     `json:"horsepower,omitempty"`
	MileageKm     *int     `json:"mileage_km,omitempty"`
	FuelType      string   `json:"fuel_type,omitempty" gorm:"size:32"`
	Transmission  string   `json:"transmission,omitempty" gorm:"size:32"`
	DriveType     string   `json:"drive_type,omitempty" gorm:"size:32"`
	BodyType      string   `json:"body_type,omitempty" gorm:"size:32"`
	Color         string   `json:"color,omitempty" gorm:"size:64"`

	PriceRub        *int64 `json:"price_rub,omitempty"`
	PriceNegotiable bool   `json:"price_negotiable"`
	ConditionText   string `json:"condition_text,omitempty"`
	City            string `json:"city" gorm:"size:100"`

	SourceType        string        `json:"source_type" gorm:"size:32;not null"`
	SourceURL         string        `json:"source_url" gorm:"size:500"`
	OriginalText      string        `json:"original_text"`
	CompletenessScore float64       `json:"completeness_score"`
	Status            ListingStatus `json:"status" gorm:"size:32;not null;index"`

	Photos []Media `json:"photos,omitempty" gorm:"foreignKey:ListingID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the GORM table name.
func (Listing) TableName() string { return "listings" }

// BeforeCreate assigns an id when none was set.
func (l *Listing) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
