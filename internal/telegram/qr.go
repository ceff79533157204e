package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"

	"github.com/blockedby/carfeed/internal/config"
)

// ErrQRInProgress is returned when a second QR login is started concurrently.
var ErrQRInProgress = errors.New("QR login already in progress")

// QRClientBundle holds the raw gotd client used for QR login and the
// in-memory storage that receives the authorized session.
type QRClientBundle struct {
	Client     *telegram.Client
	Dispatcher tg.UpdateDispatcher
	Storage    *session.StorageMemory
}

// NewQRClient creates a raw td/telegram client suitable for QR authentication.
// Unlike gotgproto's NewClient it never prompts on the terminal.
func NewQRClient(cfg *config.Config) (*QRClientBundle, error) {
	if cfg == nil {
		return nil, errors.New("qr client: config is required")
	}
	if cfg.TGApiID == 0 || cfg.TGApiHash == "" {
		return nil, config.ErrMissingCredentials
	}

	storage := &session.StorageMemory{}
	// login token updates reach qrlogin.OnLoginToken through the dispatcher
	dispatcher := tg.NewUpdateDispatcher()

	client := telegram.NewClient(cfg.TGApiID, cfg.TGApiHash, telegram.Options{
		SessionStorage: storage,
		UpdateHandler:  &dispatcher,
	})

	return &QRClientBundle{Client: client, Dispatcher: dispatcher, Storage: storage}, nil
}

// IsQRInProgress reports whether StartQR is running.
func (m *Manager) IsQRInProgress() bool {
	return m.qrInProgress.Load()
}

// StartQR runs the QR login flow, calling onQRCode with every fresh login URL.
// It blocks until the code is scanned or ctx is canceled. The new session is
// saved to the sessions table and the manager re-initialized from it.
func (m *Manager) StartQR(ctx context.Context, onQRCode func(url string)) error {
	if m.GetStatus() == StatusReady {
		return errors.New("already logged in")
	}
	if !m.qrInProgress.CompareAndSwap(false, true) {
		return ErrQRInProgress
	}
	defer m.qrInProgress.Store(false)

	m.mu.RLock()
	factory := m.qrClientFactory
	m.mu.RUnlock()

	bundle, err := factory(m.cfg)
	if err != nil {
		return fmt.Errorf("create QR client: %w", err)
	}

	data, err := m.loginQR(ctx, bundle, onQRCode)
	if err != nil {
		return err
	}

	m.log.Info().Int("dc", data.DC).Msg("telegram: QR login accepted, saving session")
	if err := m.saveSession(data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return m.Init(ctx)
}

// loginQR drives qrlogin until the token is accepted and returns the session it produced.
func (m *Manager) loginQR(ctx context.Context, bundle *QRClientBundle, onQRCode func(url string)) (*session.Data, error) {
	var data *session.Data

	err := bundle.Client.Run(ctx, func(ctx context.Context) error {
		loggedIn := qrlogin.OnLoginToken(&bundle.Dispatcher)

		show := func(_ context.Context, token qrlogin.Token) error {
			m.log.Debug().Time("expires", token.Expires()).Msg("telegram: QR token generated")
			onQRCode(token.URL())
			return nil
		}
		if _, err := bundle.Client.QR().Auth(ctx, loggedIn, show); err != nil {
			return err
		}

		loaded, err := (&session.Loader{Storage: bundle.Storage}).Load(ctx)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		data = loaded
		return nil
	})
	switch {
	case errors.Is(err, context.Canceled):
		return nil, context.Canceled
	case err != nil:
		return nil, fmt.Errorf("QR auth flow failed: %w", err)
	case data == nil:
		return nil, errors.New("QR auth finished without a session")
	}
	return data, nil
}
