package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/carfeed/internal/models"
	"github.com/blockedby/carfeed/internal/repository"
)

type stubRuns struct {
	channel string
	limit   int
	runs    []models.ImportRun
}

func (s *stubRuns) Recent(_ context.Context, channel string, limit int) ([]models.ImportRun, error) {
	s.channel, s.limit = channel, limit
	return s.runs, nil
}

type stubCheckpoints struct{}

func (stubCheckpoints) Get(_ context.Context, channel string) (*models.ImportCheckpoint, error) {
	return &models.ImportCheckpoint{Channel: channel, LastMessageID: 4512, TotalImported: 900}, nil
}

type stubStats struct{ err error }

func (s stubStats) GetStats(context.Context) (*repository.IngestStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &repository.IngestStats{MessagesTotal: 10, ListingsTotal: 4}, nil
}

type stubListings struct{ listing *models.Listing }

func (s stubListings) Get(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	if s.listing != nil && s.listing.ID == id {
		return s.listing, nil
	}
	return nil, nil
}

func newTestRouter(t *testing.T, d HandlerDeps) (http.Handler, *ImportManager) {
	t.Helper()
	if d.Manager == nil {
		d.Manager = NewImportManager(newMockRunner(), nil)
	}
	if d.Runs == nil {
		d.Runs = &stubRuns{}
	}
	if d.Checkpoints == nil {
		d.Checkpoints = stubCheckpoints{}
	}
	if d.Listings == nil {
		d.Listings = stubListings{}
	}
	t.Cleanup(func() { _ = d.Manager.Shutdown(context.Background()) })
	return NewRouter(NewHandler(d)), d.Manager
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// test health endpoint
func TestHandler_Health(t *testing.T) {
	router, _ := newTestRouter(t, HandlerDeps{TelegramStatus: func() string { return "READY" }})

	rec := serve(router, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "READY", body["telegram_status"])
}

func TestHandler_Health_Dependencies(t *testing.T) {
	t.Run("reports database and events", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{
			Ping:            func(context.Context) error { return nil },
			EventsConnected: func() bool { return false },
		})

		rec := serve(router, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["database"])
		assert.Equal(t, "disconnected", body["events"])
	})

	t.Run("returns 503 when database is unreachable", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{
			Ping: func(context.Context) error { return errors.New("connection refused") },
		})

		rec := serve(router, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "connection refused", body["database"])
	})
}

func TestHandler_StartImport(t *testing.T) {
	t.Run("returns 400 on invalid json", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{})
		rec := serve(router, http.MethodPost, "/api/v1/imports", "not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns 400 without any channel", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{})
		rec := serve(router, http.MethodPost, "/api/v1/imports", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns 400 on negative limit", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{})
		rec := serve(router, http.MethodPost, "/api/v1/imports", `{"channel": "@cars", "limit": -1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("starts the default channel", func(t *testing.T) {
		router, manager := newTestRouter(t, HandlerDeps{DefaultChannel: "akibaautovl"})

		rec := serve(router, http.MethodPost, "/api/v1/imports", `{"limit": 20}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp ImportResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "akibaautovl", resp.Channel)
		assert.Equal(t, "running", resp.Status)
		assert.NotEqual(t, uuid.Nil, resp.JobID)
		assert.True(t, manager.Running("akibaautovl"))
	})

	t.Run("returns 409 when the channel is busy", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{})

		first := serve(router, http.MethodPost, "/api/v1/imports", `{"channel": "cars"}`)
		require.Equal(t, http.StatusAccepted, first.Code)

		second := serve(router, http.MethodPost, "/api/v1/imports", `{"channel": "@cars"}`)
		assert.Equal(t, http.StatusConflict, second.Code)
	})
}

func TestHandler_StopImport(t *testing.T) {
	router, manager := newTestRouter(t, HandlerDeps{})

	rec := serve(router, http.MethodDelete, "/api/v1/imports/cars", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := manager.Start(context.Background(), Options{Channel: "cars"})
	require.NoError(t, err)

	rec = serve(router, http.MethodDelete, "/api/v1/imports/cars", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	waitIdle(t, manager, "cars")
}

func TestHandler_Status(t *testing.T) {
	router, manager := newTestRouter(t, HandlerDeps{})
	_, err := manager.Start(context.Background(), Options{Channel: "cars"})
	require.NoError(t, err)

	rec := serve(router, http.MethodGet, "/api/v1/imports/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs []JobStatus `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, "cars", body.Jobs[0].Channel)
	assert.Equal(t, "running", body.Jobs[0].State)
}

func TestHandler_ListRuns(t *testing.T) {
	runs := &stubRuns{runs: []models.ImportRun{{ID: uuid.New(), Channel: "cars", Status: models.RunStatusPartial}}}
	router, _ := newTestRouter(t, HandlerDeps{Runs: runs})

	rec := serve(router, http.MethodGet, "/api/v1/runs?channel=@cars&limit=5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cars", runs.channel)
	assert.Equal(t, 5, runs.limit)

	var got []models.ImportRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, models.RunStatusPartial, got[0].Status)

	rec = serve(router, http.MethodGet, "/api/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetCheckpoint(t *testing.T) {
	router, _ := newTestRouter(t, HandlerDeps{})

	rec := serve(router, http.MethodGet, "/api/v1/checkpoints/cars", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var cp models.ImportCheckpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cp))
	assert.Equal(t, "cars", cp.Channel)
	assert.Equal(t, int64(4512), cp.LastMessageID)
}

func TestHandler_Stats(t *testing.T) {
	t.Run("unavailable without postgres", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{})
		rec := serve(router, http.MethodGet, "/api/v1/stats", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("returns counts", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{Stats: stubStats{}})
		rec := serve(router, http.MethodGet, "/api/v1/stats", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var stats repository.IngestStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, int64(4), stats.ListingsTotal)
	})

	t.Run("query error", func(t *testing.T) {
		router, _ := newTestRouter(t, HandlerDeps{Stats: stubStats{err: errors.New("down")}})
		rec := serve(router, http.MethodGet, "/api/v1/stats", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandler_GetListing(t *testing.T) {
	listing := &models.Listing{ID: uuid.New(), Title: "Toyota Camry", Status: models.ListingStatusReview}
	router, _ := newTestRouter(t, HandlerDeps{Listings: stubListings{listing: listing}})

	rec := serve(router, http.MethodGet, "/api/v1/listings/"+listing.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Toyota Camry", got.Title)

	rec = serve(router, http.MethodGet, "/api/v1/listings/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/listings/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Metrics(t *testing.T) {
	router, _ := newTestRouter(t, HandlerDeps{})
	rec := serve(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
