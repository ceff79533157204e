package telegram

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/celestix/gotgproto"
	"gorm.io/gorm"

	"github.com/blockedby/carfeed/internal/config"
	"github.com/blockedby/carfeed/internal/logger"
)

// Status represents the Telegram client status.
type Status string

// Status constants define the possible states of the Telegram client.
const (
	StatusInitializing Status = "INITIALIZING"
	StatusReady        Status = "READY"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusError        Status = "ERROR"
)

// ClientFactory is a function that creates a telegram client.
type ClientFactory func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error)

// QRClientFactory is a function that creates a raw telegram client for QR auth.
type QRClientFactory func(cfg *config.Config) (*QRClientBundle, error)

// Manager owns the protocol client and the session it was started from.
// A session rejected by the server drops the client until Init finds a new one.
type Manager struct {
	mu     sync.RWMutex
	client *gotgproto.Client
	status Status

	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger

	clientFactory   ClientFactory
	qrClientFactory QRClientFactory
	qrInProgress    atomic.Bool
}

// NewManager creates a new Telegram Manager. db holds the sessions table and
// may be nil when only TG_SESSION_STRING is used.
func NewManager(cfg *config.Config, db *gorm.DB) *Manager {
	return &Manager{
		db:              db,
		cfg:             cfg,
		log:             logger.Get(),
		status:          StatusInitializing,
		clientFactory:   NewPersistentClient,
		qrClientFactory: NewQRClient,
	}
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (m *Manager) SetClientFactory(f ClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientFactory = f
}

// SetQRClientFactory allows overriding the QR client creation logic (e.g. for testing).
func (m *Manager) SetQRClientFactory(f QRClientFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.qrClientFactory = f
}

// GetStatus returns the current Telegram client status.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetClient returns the underlying Telegram client, nil unless Ready.
func (m *Manager) GetClient() *gotgproto.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// Init restores the session from TG_SESSION_STRING or the sessions table.
// Without either the manager stays Unauthorized and Init returns nil.
func (m *Manager) Init(ctx context.Context) error {
	m.setStatus(StatusInitializing)

	if m.cfg.TGSessionStr == "" && !m.hasStoredSession() {
		m.log.Info().Msg("telegram: no session configured or stored, waiting for auth")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.RLock()
	factory := m.clientFactory
	m.mu.RUnlock()

	client, err := factory(ctx, m.cfg, m.db)
	if err != nil {
		m.log.Warn().Err(err).Msg("telegram: failed to initialize client, switching to unauthorized mode")
		m.setStatus(StatusUnauthorized)
		return nil
	}

	m.mu.Lock()
	m.client = client
	m.status = StatusReady
	m.mu.Unlock()

	m.log.Info().Msg("telegram: client is ready")
	return nil
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Revoke drops the client after the server rejected its session.
func (m *Manager) Revoke(cause error) {
	m.mu.Lock()
	client := m.client
	wasReady := m.status == StatusReady
	m.client = nil
	m.status = StatusUnauthorized
	m.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	if wasReady {
		m.log.Error().Err(cause).Msg("telegram: session rejected, run tg-auth to re-authorize")
	}
}

// ExportSession returns the current session as a gotgproto string session.
func (m *Manager) ExportSession() (string, error) {
	client := m.GetClient()
	if client == nil {
		return "", ErrNotAuthorized
	}
	return client.ExportStringSession()
}

// Stop stops the Telegram client.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Stop()
	}
}
