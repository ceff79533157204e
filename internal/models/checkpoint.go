package models

import "time"

// ImportCheckpoint is the per-channel high-water mark of processed message ids.
type ImportCheckpoint struct {
	Channel       string     `json:"channel" yaml:"channel" gorm:"primaryKey;size:255"`
	LastMessageID int64      `json:"last_message_id" yaml:"last_message_id" gorm:"not null;default:0"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	TotalImported int64      `json:"total_imported" yaml:"total_imported" gorm:"not null;default:0"`
	UpdatedAt     time.Time  `json:"updated_at" yaml:"updated_at"`
}

// TableName overrides the GORM table name.
func (ImportCheckpoint) TableName() string { return "import_checkpoints" }
