package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceTypeTelegram marks records that came from a Telegram channel.
const SourceTypeTelegram = "telegram"

// MessageMeta holds raw engagement counters kept for diagnosis.
type MessageMeta struct {
	ChannelID int64 `json:"channel_id,omitempty"`
	Views     int   `json:"views"`
	Forwards  int   `json:"forwards"`
	Replies   int   `json:"replies"`
	HasVideo  bool  `json:"has_video,omitempty"`
}

// IngestedMessage is the ledger entry for one Telegram message.
// (Channel, MessageID) is unique: a message is recorded at most once.
type IngestedMessage struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Channel   string    `json:"channel" gorm:"size:255;not null;uniqueIndex:idx_ingested_channel_message"`
	MessageID int64     `json:"message_id" gorm:"not null;uniqueIndex:idx_ingested_channel_message"`
	GroupedID *int64    `json:"grouped_id,omitempty" gorm:"index"`

	PostedAt time.Time   `json:"posted_at"`
	Text     string      `json:"text"`
	Meta     MessageMeta `json:"meta" gorm:"serializer:json"`
	HasPhoto bool        `json:"has_photo"`
	HasVideo bool        `json:"has_video"`

	ParseStatus ParseStatus `json:"parse_status" gorm:"size:32;not null;default:new;index"`
	ParseErrors []string    `json:"parse_errors,omitempty" gorm:"serializer:json"`
	ListingID   *uuid.UUID  `json:"listing_id,omitempty" gorm:"type:uuid;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the GORM table name.
func (IngestedMessage) TableName() string { return "ingested_messages" }

// BeforeCreate assigns an id when none was set.
func (m *IngestedMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ParseStatus == "" {
		m.ParseStatus = ParseStatusNew
	}
	return nil
}
