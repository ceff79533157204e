package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/carfeed/internal/models"
)

// validation errors
var (
	ErrChannelRequired = errors.New("channel is required")
	ErrInvalidLimit    = errors.New("limit must be non-negative")
	ErrInvalidChannel  = errors.New("channel must be a public username")
)

// NormalizeChannel strips the @ prefix and a t.me link prefix from a channel name.
func NormalizeChannel(channel string) string {
	channel = strings.TrimSpace(channel)
	for _, prefix := range []string{"https://", "http://", "t.me/", "telegram.me/"} {
		channel = strings.TrimPrefix(channel, prefix)
	}
	return strings.TrimPrefix(channel, "@")
}

// ImportRequest represents a request to import a telegram channel
type ImportRequest struct {
	// Channel - username (with or without @).
	// empty means the configured default channel.
	Channel string `json:"channel,omitempty"`

	// Limit - maximum messages to import.
	// 0 means one default batch.
	Limit int `json:"limit,omitempty"`

	// SkipMedia - do not download photos.
	SkipMedia bool `json:"skip_media,omitempty"`
}

// Validate performs basic validation of the request
// does not check if channel exists (that requires network call)
func (r *ImportRequest) Validate(defaultChannel string) error {
	r.Channel = NormalizeChannel(r.Channel)
	if r.Channel == "" {
		r.Channel = defaultChannel
	}
	if r.Channel == "" {
		return ErrChannelRequired
	}
	if strings.ContainsAny(r.Channel, "/ ") {
		return ErrInvalidChannel
	}

	if r.Limit < 0 {
		return ErrInvalidLimit
	}

	return nil
}

// Options converts the request into run options.
func (r *ImportRequest) Options() Options {
	return Options{Channel: r.Channel, Limit: r.Limit, SkipMedia: r.SkipMedia}
}

// ImportResponse represents response to import request
type ImportResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"` // "running"
	Channel   string    `json:"channel"`
	StartedAt time.Time `json:"started_at"`
}

// JobStatus describes a background import for the status endpoint.
type JobStatus struct {
	JobID     uuid.UUID         `json:"job_id"`
	Channel   string            `json:"channel"`
	State     string            `json:"state"` // "running" | "finished"
	StartedAt time.Time         `json:"started_at"`
	Run       *models.ImportRun `json:"run,omitempty"`
	Error     string            `json:"error,omitempty"`
}
