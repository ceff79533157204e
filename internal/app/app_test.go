package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/carfeed/internal/config"
	"github.com/blockedby/carfeed/internal/ingest"
	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/models"
	"github.com/blockedby/carfeed/internal/telegram"
)

func testConfig() *config.Config {
	return &config.Config{
		DatabaseURL:  "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared",
		TGApiID:      12345,
		TGApiHash:    "0123456789abcdef",
		TGPublicHost: "t.me",
		BatchSize:    100,
		MediaBackend: "memory",
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.TGApiHash = ""

	_, err := New(context.Background(), cfg, logger.Nop())

	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestNew_UnknownMediaBackend(t *testing.T) {
	cfg := testConfig()
	cfg.MediaBackend = "ftp"

	_, err := New(context.Background(), cfg, logger.Nop())

	assert.ErrorContains(t, err, "unknown media backend")
}

func TestNew_UnauthorizedRunFails(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, telegram.StatusUnauthorized, a.Telegram.GetStatus())
	assert.Nil(t, a.Stats, "stats need postgresql")
	assert.Nil(t, a.NATS)

	run, err := a.Service.Run(context.Background(), ingest.Options{Channel: "cars"})

	assert.ErrorIs(t, err, telegram.ErrNotAuthorized)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)

	runs, err := a.Runs.Recent(context.Background(), "cars", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}
