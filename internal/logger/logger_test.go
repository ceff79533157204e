package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ingest.log")

	l, err := New("debug", path, "json")
	require.NoError(t, err)

	l.With("akibaautovl", "run-1").Info().Int("fetched", 3).Msg("import finished")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"channel":"akibaautovl"`))
	assert.True(t, strings.Contains(line, `"run_id":"run-1"`))
	assert.True(t, strings.Contains(line, `"fetched":3`))
	assert.True(t, strings.Contains(line, `"service":"carfeed"`))
	require.NoError(t, l.Close())
}

func TestLogger_Close(t *testing.T) {
	l, err := New("info", "", "json")
	require.NoError(t, err)
	assert.NoError(t, l.Close(), "no file to close")

	assert.NoError(t, Nop().Close())
	assert.NoError(t, l.With("cars", "").Close())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New("loud", "", "json")
	require.NoError(t, err)
	assert.Equal(t, "info", l.GetLevel().String())
}

func TestGet_NoopWhenUninitialized(t *testing.T) {
	prev := Global
	Global = nil
	defer func() { Global = prev }()

	l := Get()
	require.NotNil(t, l)
	l.Info().Msg("discarded")
}
