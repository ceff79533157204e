package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/models"
)

// Runner executes one import.
type Runner interface {
	Run(ctx context.Context, opts Options) (*models.ImportRun, error)
}

// ImportJob is a background import started through the manager.
type ImportJob struct {
	ID         uuid.UUID
	Options    Options
	StartedAt  time.Time
	FinishedAt *time.Time
	Run        *models.ImportRun
	Err        error

	cancel context.CancelFunc
}

// Status snapshots the job for the API.
func (j *ImportJob) Status() JobStatus {
	st := JobStatus{
		JobID:     j.ID,
		Channel:   j.Options.Channel,
		State:     "running",
		StartedAt: j.StartedAt,
		Run:       j.Run,
	}
	if j.FinishedAt != nil {
		st.State = "finished"
	}
	if j.Err != nil {
		st.Error = j.Err.Error()
	}
	return st
}

// ImportManager runs imports in the background, at most one per channel.
// thread-safe
type ImportManager struct {
	mu      sync.Mutex
	runner  Runner
	log     *logger.Logger
	running map[string]*ImportJob
	last    map[string]*ImportJob
	wg      sync.WaitGroup
}

// NewImportManager creates a new import manager
func NewImportManager(runner Runner, log *logger.Logger) *ImportManager {
	if log == nil {
		log = logger.Get()
	}
	return &ImportManager{
		runner:  runner,
		log:     log,
		running: make(map[string]*ImportJob),
		last:    make(map[string]*ImportJob),
	}
}

// Start launches an import of opts.Channel.
// returns ErrAlreadyRunning if that channel is being imported
func (m *ImportManager) Start(_ context.Context, opts Options) (*ImportJob, error) {
	opts.Channel = NormalizeChannel(opts.Channel)
	if opts.Channel == "" {
		return nil, ErrChannelRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.running[opts.Channel]; busy {
		return nil, ErrAlreadyRunning
	}

	// detached from the request context: the job outlives the HTTP handler
	ctx, cancel := context.WithCancel(context.Background())

	job := &ImportJob{
		ID:        uuid.New(),
		Options:   opts,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	m.running[opts.Channel] = job

	m.wg.Add(1)
	go m.run(ctx, job)

	snapshot := *job
	return &snapshot, nil
}

// Stop cancels the running import of a channel.
// reports whether there was one
func (m *ImportManager) Stop(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.running[NormalizeChannel(channel)]
	if ok {
		job.cancel()
	}
	return ok
}

// Shutdown cancels every running import and waits until they are finalized
// or ctx expires.
func (m *ImportManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, job := range m.running {
		job.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns running jobs and the last finished job per channel, ordered by channel.
func (m *ImportManager) Jobs() []JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]JobStatus, 0, len(m.running)+len(m.last))
	for _, job := range m.running {
		out = append(out, job.Status())
	}
	for channel, job := range m.last {
		if _, busy := m.running[channel]; busy {
			continue
		}
		out = append(out, job.Status())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Running reports whether the channel is being imported.
func (m *ImportManager) Running(channel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[NormalizeChannel(channel)]
	return ok
}

// Last returns the last finished job of a channel, nil when none.
func (m *ImportManager) Last(channel string) *JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.last[NormalizeChannel(channel)]
	if !ok {
		return nil
	}
	st := job.Status()
	return &st
}

// run executes the job
// this is called in a goroutine
func (m *ImportManager) run(ctx context.Context, job *ImportJob) {
	defer m.wg.Done()

	run, err := m.runner.Run(ctx, job.Options)
	if err != nil {
		m.log.Warn().Err(err).Str("channel", job.Options.Channel).Msg("background import ended with error")
	}

	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	job.cancel()
	job.Run = run
	job.Err = err
	job.FinishedAt = &now
	delete(m.running, job.Options.Channel)
	m.last[job.Options.Channel] = job
}
