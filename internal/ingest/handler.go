package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blockedby/carfeed/internal/models"
	"github.com/blockedby/carfeed/internal/repository"
)

// RunLister reads the run audit trail.
type RunLister interface {
	Recent(ctx context.Context, channel string, limit int) ([]models.ImportRun, error)
}

// CheckpointReader reads checkpoints.
type CheckpointReader interface {
	Get(ctx context.Context, channel string) (*models.ImportCheckpoint, error)
}

// StatsReader aggregates pipeline counts.
type StatsReader interface {
	GetStats(ctx context.Context) (*repository.IngestStats, error)
}

// ListingReader loads listings.
type ListingReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// HandlerDeps are the read models behind the API. Stats may be nil on sqlite.
type HandlerDeps struct {
	Manager        *ImportManager
	Runs           RunLister
	Checkpoints    CheckpointReader
	Stats          StatsReader
	Listings       ListingReader
	DefaultChannel string
	TelegramStatus func() string
	// Ping reports database reachability for /health.
	Ping func(ctx context.Context) error
	// EventsConnected is nil when listing events are disabled.
	EventsConnected func() bool
}

// Handler handles HTTP requests for the import service
type Handler struct {
	manager        *ImportManager
	runs           RunLister
	checkpoints    CheckpointReader
	stats          StatsReader
	listings       ListingReader
	defaultChannel string
	telegramStatus func() string
	ping           func(ctx context.Context) error
	eventsOK       func() bool
}

// NewHandler creates a new handler
func NewHandler(d HandlerDeps) *Handler {
	return &Handler{
		manager:        d.Manager,
		runs:           d.Runs,
		checkpoints:    d.Checkpoints,
		stats:          d.Stats,
		listings:       d.Listings,
		defaultChannel: d.DefaultChannel,
		telegramStatus: d.TelegramStatus,
		ping:           d.Ping,
		eventsOK:       d.EventsConnected,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if h.telegramStatus != nil {
		body["telegram_status"] = h.telegramStatus()
	}
	if h.eventsOK != nil {
		body["events"] = "connected"
		if !h.eventsOK() {
			body["events"] = "disconnected"
		}
	}

	code := http.StatusOK
	if h.ping != nil {
		body["database"] = "ok"
		if err := h.ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, body)
}

// StartImport handles POST /api/v1/imports
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if err := req.Validate(h.defaultChannel); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.manager.Start(r.Context(), req.Options())
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, ImportResponse{
		JobID:     job.ID,
		Status:    "running",
		Channel:   job.Options.Channel,
		StartedAt: job.StartedAt,
	})
}

// StopImport handles DELETE /api/v1/imports/{channel}
func (h *Handler) StopImport(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")
	if !h.manager.Stop(channel) {
		respondError(w, http.StatusNotFound, "no running import for "+channel)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "import stopping",
	})
}

// Status handles GET /api/v1/imports/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"jobs": h.manager.Jobs(),
	})
}

// ListRuns handles GET /api/v1/runs?channel=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	channel := NormalizeChannel(r.URL.Query().Get("channel"))
	runs, err := h.runs.Recent(r.Context(), channel, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetCheckpoint handles GET /api/v1/checkpoints/{channel}
func (h *Handler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	channel := NormalizeChannel(chi.URLParam(r, "channel"))
	cp, err := h.checkpoints.Get(r.Context(), channel)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cp)
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, http.StatusServiceUnavailable, "stats require postgresql")
		return
	}
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetListing handles GET /api/v1/listings/{id}
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := h.listings.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if listing == nil {
		respondError(w, http.StatusNotFound, "listing not found")
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

// helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
