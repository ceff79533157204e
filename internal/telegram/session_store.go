package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

// sessionsTable is where gotgproto's SqlSession keeps the session row.
const sessionsTable = "sessions"

// sessionEnvelope is the versioned json layout gotd's session.Loader reads.
type sessionEnvelope struct {
	Version int
	Data    session.Data
}

// storedSession wraps gotd session data into the row gotgproto's SqlSession loads.
func storedSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, errors.New("session data is nil")
	}

	raw, err := json.Marshal(sessionEnvelope{Version: 1, Data: *data})
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    raw,
	}, nil
}

// hasStoredSession reports whether the sessions table holds a session.
func (m *Manager) hasStoredSession() bool {
	if m.db == nil || !m.db.Migrator().HasTable(sessionsTable) {
		return false
	}
	var count int64
	if err := m.db.Table(sessionsTable).Count(&count).Error; err != nil {
		m.log.Warn().Err(err).Msg("telegram: failed to check sessions table")
		return false
	}
	return count > 0
}

// saveSession replaces the stored session; Version is the primary key.
func (m *Manager) saveSession(data *session.Data) error {
	if m.db == nil {
		return errors.New("no database for session storage")
	}

	sess, err := storedSession(data)
	if err != nil {
		return err
	}
	if err := m.db.AutoMigrate(&storage.Session{}); err != nil {
		return fmt.Errorf("migrate sessions table: %w", err)
	}
	return m.db.Save(sess).Error
}
