package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/blockedby/carfeed/internal/ingest"
	"github.com/blockedby/carfeed/internal/models"
)

func finishedRun(t *testing.T) *models.ImportRun {
	t.Helper()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := models.NewImportRun("akibaautovl", 0, false, start)
	run.MessagesFetched = 3
	run.MessagesNew = 3
	run.ParsedOK = 2
	run.MessagesSkipped = 1
	run.ListingsCreated = 2
	run.PhotosDownloaded = 2
	require.NoError(t, run.Finish(models.RunStatusSuccess, nil, start.Add(1500*time.Millisecond)))
	return run
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitSuccess, exitCode(models.RunStatusSuccess))
	assert.Equal(t, exitPartial, exitCode(models.RunStatusPartial))
	assert.Equal(t, exitFailed, exitCode(models.RunStatusFailed))
	assert.Equal(t, exitFailed, exitCode(models.RunStatusRunning))
}

func TestRefusedExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "missing channel", err: ingest.ErrChannelRequired, want: exitConfig},
		{name: "negative limit", err: ingest.ErrInvalidLimit, want: exitConfig},
		{name: "channel busy", err: ingest.ErrAlreadyRunning, want: exitFailed},
		{name: "database down", err: fmt.Errorf("create run: %w", errors.New("connection refused")), want: exitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, refusedExitCode(tt.err))
		})
	}
}

func TestPrintSummary(t *testing.T) {
	run := finishedRun(t)
	defer func() { output = "text" }()

	t.Run("text", func(t *testing.T) {
		output = "text"
		var buf bytes.Buffer
		require.NoError(t, printSummary(&buf, run))
		assert.Contains(t, buf.String(), "Status:")
		assert.Contains(t, buf.String(), "success")
		assert.Contains(t, buf.String(), "1.5s")
	})

	t.Run("json", func(t *testing.T) {
		output = "json"
		var buf bytes.Buffer
		require.NoError(t, printSummary(&buf, run))

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "success", got["status"])
		assert.Equal(t, float64(2), got["listings_created"])
	})

	t.Run("yaml", func(t *testing.T) {
		output = "yaml"
		var buf bytes.Buffer
		require.NoError(t, printSummary(&buf, run))

		var got map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "akibaautovl", got["channel"])
		assert.Equal(t, 3, got["messages_fetched"])
	})
}
