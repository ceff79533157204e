package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrRunFinalized is returned when finalizing a run that already reached a terminal state.
var ErrRunFinalized = errors.New("import run already finalized")

// ImportRun is the audit record of one import invocation.
type ImportRun struct {
	ID      uuid.UUID `json:"id" yaml:"id" gorm:"type:uuid;primaryKey"`
	Channel string    `json:"channel" yaml:"channel" gorm:"size:255;not null;index"`
	Status  RunStatus `json:"status" yaml:"status" gorm:"size:32;not null;index"`

	Limit     int  `json:"limit,omitempty" yaml:"limit,omitempty" gorm:"column:fetch_limit"`
	SkipMedia bool `json:"skip_media" yaml:"skip_media"`

	MessagesFetched   int `json:"messages_fetched" yaml:"messages_fetched"`
	MessagesNew       int `json:"messages_new" yaml:"messages_new"`
	MessagesDuplicate int `json:"messages_duplicate" yaml:"messages_duplicate"`
	ParsedOK          int `json:"parsed_ok" yaml:"parsed_ok" gorm:"column:parsed_ok"`
	ParsedPartial     int `json:"parsed_partial" yaml:"parsed_partial"`
	MessagesFailed    int `json:"messages_failed" yaml:"messages_failed"`
	MessagesSkipped   int `json:"messages_skipped" yaml:"messages_skipped"`
	ListingsCreated   int `json:"listings_created" yaml:"listings_created"`
	PhotosDownloaded  int `json:"photos_downloaded" yaml:"photos_downloaded"`

	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`

	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// TableName overrides the GORM table name.
func (ImportRun) TableName() string { return "import_runs" }

// BeforeCreate assigns an id when none was set.
func (r *ImportRun) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// NewImportRun returns a run in the running state.
func NewImportRun(channel string, limit int, skipMedia bool, now time.Time) *ImportRun {
	return &ImportRun{
		ID:        uuid.New(),
		Channel:   channel,
		Status:    RunStatusRunning,
		Limit:     limit,
		SkipMedia: skipMedia,
		StartedAt: now,
	}
}

// Outcome derives the terminal status from the counters:
// no failures is success, failures without any parsed message is failed, anything else partial.
func (r *ImportRun) Outcome() RunStatus {
	switch {
	case r.MessagesFailed == 0:
		return RunStatusSuccess
	case r.ParsedOK+r.ParsedPartial == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// Finish moves the run to a terminal status exactly once.
func (r *ImportRun) Finish(status RunStatus, cause error, at time.Time) error {
	if r.Status.Terminal() {
		return ErrRunFinalized
	}
	if !status.Terminal() {
		return fmt.Errorf("finish run: %q is not a terminal status", status)
	}

	r.Status = status
	r.FinishedAt = &at
	if cause != nil {
		r.ErrorMessage = cause.Error()
	}
	return nil
}

// Duration is the wall time of a finished run, zero while running.
func (r *ImportRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
