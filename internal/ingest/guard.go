package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blockedby/carfeed/internal/repository"
)

// ErrAlreadyRunning is returned when the channel is being imported already.
var ErrAlreadyRunning = errors.New("an import of this channel is already running")

// RunGuard admits at most one run per channel.
type RunGuard interface {
	Acquire(ctx context.Context, channel string) (release func(), err error)
}

// LocalGuard is an in-process RunGuard.
type LocalGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewLocalGuard creates a new LocalGuard.
func NewLocalGuard() *LocalGuard {
	return &LocalGuard{active: make(map[string]struct{})}
}

// Acquire claims the channel or returns ErrAlreadyRunning.
func (g *LocalGuard) Acquire(_ context.Context, channel string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[channel]; busy {
		return nil, ErrAlreadyRunning
	}
	g.active[channel] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, channel)
			g.mu.Unlock()
		})
	}, nil
}

// Locker takes a cross-process lock without waiting.
type Locker interface {
	TryLock(ctx context.Context, key string) (func(), error)
}

// LockerGuard combines the in-process guard with a shared lock so that
// separate processes on one database do not import the same channel.
type LockerGuard struct {
	local  *LocalGuard
	locker Locker
}

// NewLockerGuard creates a new LockerGuard.
func NewLockerGuard(locker Locker) *LockerGuard {
	return &LockerGuard{local: NewLocalGuard(), locker: locker}
}

// Acquire claims the channel locally, then the shared lock.
func (g *LockerGuard) Acquire(ctx context.Context, channel string) (func(), error) {
	releaseLocal, err := g.local.Acquire(ctx, channel)
	if err != nil {
		return nil, err
	}

	unlock, err := g.locker.TryLock(ctx, "carfeed:import:"+channel)
	if err != nil {
		releaseLocal()
		if errors.Is(err, repository.ErrLockHeld) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock channel %s: %w", channel, err)
	}

	return func() {
		unlock()
		releaseLocal()
	}, nil
}
