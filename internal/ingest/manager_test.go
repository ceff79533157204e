package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/carfeed/internal/models"
)

// MockRunner blocks until its context is cancelled or it is released.
type MockRunner struct {
	mu      sync.Mutex
	calls   []Options
	release chan struct{}
}

func newMockRunner() *MockRunner {
	return &MockRunner{release: make(chan struct{})}
}

func (m *MockRunner) Run(ctx context.Context, opts Options) (*models.ImportRun, error) {
	m.mu.Lock()
	m.calls = append(m.calls, opts)
	m.mu.Unlock()

	run := models.NewImportRun(opts.Channel, opts.Limit, opts.SkipMedia, time.Now())
	select {
	case <-m.release:
		_ = run.Finish(models.RunStatusSuccess, nil, time.Now())
		return run, nil
	case <-ctx.Done():
		_ = run.Finish(models.RunStatusFailed, ctx.Err(), time.Now())
		return run, ctx.Err()
	}
}

func (m *MockRunner) Calls() []Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Options(nil), m.calls...)
}

func waitIdle(t *testing.T, m *ImportManager, channel string) {
	t.Helper()
	require.Eventually(t, func() bool { return !m.Running(channel) }, time.Second, 5*time.Millisecond)
}

func TestImportManager_Start(t *testing.T) {
	t.Run("starts job successfully", func(t *testing.T) {
		runner := newMockRunner()
		manager := NewImportManager(runner, nil)

		job, err := manager.Start(context.Background(), Options{Channel: "@cars", Limit: 50})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, "cars", job.Options.Channel)
		assert.True(t, manager.Running("cars"))

		require.Eventually(t, func() bool { return len(runner.Calls()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, 50, runner.Calls()[0].Limit)

		close(runner.release)
		waitIdle(t, manager, "cars")

		last := manager.Last("cars")
		require.NotNil(t, last)
		assert.Equal(t, "finished", last.State)
		assert.Equal(t, models.RunStatusSuccess, last.Run.Status)
		assert.Empty(t, last.Error)
	})

	t.Run("returns error when channel already running", func(t *testing.T) {
		manager := NewImportManager(newMockRunner(), nil)
		defer func() { _ = manager.Shutdown(context.Background()) }()

		_, err := manager.Start(context.Background(), Options{Channel: "cars"})
		require.NoError(t, err)

		_, err = manager.Start(context.Background(), Options{Channel: "cars"})
		assert.ErrorIs(t, err, ErrAlreadyRunning)
	})

	t.Run("different channels run side by side", func(t *testing.T) {
		manager := NewImportManager(newMockRunner(), nil)
		defer func() { _ = manager.Shutdown(context.Background()) }()

		_, err := manager.Start(context.Background(), Options{Channel: "cars"})
		require.NoError(t, err)
		_, err = manager.Start(context.Background(), Options{Channel: "bikes"})
		require.NoError(t, err)

		jobs := manager.Jobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, "bikes", jobs[0].Channel)
		assert.Equal(t, "running", jobs[1].State)
	})

	t.Run("requires a channel", func(t *testing.T) {
		manager := NewImportManager(newMockRunner(), nil)
		_, err := manager.Start(context.Background(), Options{Channel: "@"})
		assert.ErrorIs(t, err, ErrChannelRequired)
	})
}

func TestImportManager_Stop(t *testing.T) {
	manager := NewImportManager(newMockRunner(), nil)

	assert.False(t, manager.Stop("cars"), "nothing to stop")

	_, err := manager.Start(context.Background(), Options{Channel: "cars"})
	require.NoError(t, err)

	assert.True(t, manager.Stop("@cars"))
	waitIdle(t, manager, "cars")

	last := manager.Last("cars")
	require.NotNil(t, last)
	assert.Equal(t, models.RunStatusFailed, last.Run.Status)
	assert.Contains(t, last.Error, "context canceled")

	// the channel can be imported again
	_, err = manager.Start(context.Background(), Options{Channel: "cars"})
	require.NoError(t, err)
	require.NoError(t, manager.Shutdown(context.Background()))
}

func TestImportManager_Shutdown(t *testing.T) {
	manager := NewImportManager(newMockRunner(), nil)

	for _, ch := range []string{"a", "b", "c"} {
		_, err := manager.Start(context.Background(), Options{Channel: ch})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(ctx))

	for _, ch := range []string{"a", "b", "c"} {
		assert.False(t, manager.Running(ch))
		assert.NotNil(t, manager.Last(ch))
	}
}
