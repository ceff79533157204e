package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/celestix/gotgproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/blockedby/carfeed/internal/config"
)

func TestNewQRClient(t *testing.T) {
	cfg := &config.Config{TGApiID: 12345, TGApiHash: "test_hash"}

	bundle, err := NewQRClient(cfg)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.NotNil(t, bundle.Client)
	assert.NotNil(t, bundle.Storage)
}

func TestNewQRClient_IsolatedStorage(t *testing.T) {
	cfg := &config.Config{TGApiID: 12345, TGApiHash: "test_hash"}

	first, err := NewQRClient(cfg)
	require.NoError(t, err)
	second, err := NewQRClient(cfg)
	require.NoError(t, err)

	assert.True(t, first.Storage != second.Storage, "each bundle gets its own storage")
}

func TestNewQRClient_InvalidConfig(t *testing.T) {
	_, err := NewQRClient(nil)
	assert.Error(t, err)

	_, err = NewQRClient(&config.Config{TGApiID: 1})
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestManager_StartQR_UsesQRFactory(t *testing.T) {
	m := NewManager(&config.Config{TGApiID: 12345, TGApiHash: "test_hash"}, newManagerDB(t))

	mockErr := errors.New("mock factory called")
	qrCalled := false
	m.SetQRClientFactory(func(cfg *config.Config) (*QRClientBundle, error) {
		qrCalled = true
		return nil, mockErr
	})
	regularCalled := false
	m.SetClientFactory(func(ctx context.Context, cfg *config.Config, db *gorm.DB) (*gotgproto.Client, error) {
		regularCalled = true
		return nil, errors.New("regular factory called")
	})

	var receivedURL string
	err := m.StartQR(context.Background(), func(url string) { receivedURL = url })

	assert.True(t, qrCalled)
	assert.False(t, regularCalled)
	assert.ErrorIs(t, err, mockErr)
	assert.Empty(t, receivedURL)
	assert.False(t, m.IsQRInProgress(), "flow state is cleared on exit")
}

func TestManager_StartQR_AlreadyReady(t *testing.T) {
	cfg := &config.Config{TGApiID: 12345, TGApiHash: "test_hash", TGSessionStr: "1BvXYZ"}
	m := NewManager(cfg, newManagerDB(t))
	m.SetClientFactory(func(context.Context, *config.Config, *gorm.DB) (*gotgproto.Client, error) {
		return nil, nil
	})
	require.NoError(t, m.Init(context.Background()))

	qrCalled := false
	m.SetQRClientFactory(func(*config.Config) (*QRClientBundle, error) {
		qrCalled = true
		return nil, errors.New("unexpected")
	})

	err := m.StartQR(context.Background(), func(string) {})

	assert.Error(t, err)
	assert.False(t, qrCalled)
}

func TestManager_StartQR_Concurrent(t *testing.T) {
	m := NewManager(&config.Config{TGApiID: 12345, TGApiHash: "test_hash"}, newManagerDB(t))
	m.qrInProgress.Store(true)

	err := m.StartQR(context.Background(), func(string) {})

	assert.ErrorIs(t, err, ErrQRInProgress)
	assert.True(t, m.IsQRInProgress(), "the running flow keeps its flag")
}
