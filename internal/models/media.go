package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaKindPhoto is the only media kind the pipeline stores.
const MediaKindPhoto = "photo"

// Media is a stored photo artifact. It always belongs to the message it was
// downloaded from and, once attached, to a listing at a position.
type Media struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	IngestedMessageID uuid.UUID  `json:"ingested_message_id" gorm:"type:uuid;not null;index"`
	ListingID         *uuid.UUID `json:"listing_id,omitempty" gorm:"type:uuid;index"`

	Kind        string `json:"kind" gorm:"size:16;not null"`
	FileID      int64  `json:"file_id"`
	Name        string `json:"name" gorm:"size:255;not null"`
	BlobKey     string `json:"blob_key" gorm:"size:500;not null"`
	BlobURI     string `json:"blob_uri" gorm:"size:1000"`
	Fingerprint string `json:"fingerprint" gorm:"size:64;not null;index"`
	SizeBytes   int64  `json:"size_bytes"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`

	Position  int  `json:"position"`
	IsPrimary bool `json:"is_primary"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the GORM table name.
func (Media) TableName() string { return "media" }

// BeforeCreate assigns an id when none was set.
func (m *Media) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
