// Package storage provides the session-scoped key/value store that backs
// client-side state such as draft records and the cached identity.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase  = errors.New("storage: database handle is required")
	errMissingSessionID = errors.New("storage: session id is required")
	errMissingKey       = errors.New("storage: key is required")
)

// Storage persists opaque values under namespaced keys.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Memory keeps values for the lifetime of the process.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return errMissingKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// SessionEntry is one persisted value belonging to a browsing session.
type SessionEntry struct {
	SessionID        string `gorm:"column:session_id;primaryKey;size:190;not null"`
	Key              string `gorm:"column:entry_key;primaryKey;size:190;not null"`
	Value            []byte `gorm:"column:entry_value;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SessionEntry) TableName() string {
	return "session_entries"
}

// SQLite stores session values in a gorm-managed table so they survive a
// process restart that reuses the same session id.
type SQLite struct {
	db        *gorm.DB
	sessionID string
	clock     func() time.Time
}

// NewSQLite binds the store to one session id and ensures the schema exists.
func NewSQLite(db *gorm.DB, sessionID string) (*SQLite, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errMissingSessionID
	}
	if err := db.AutoMigrate(&SessionEntry{}); err != nil {
		return nil, fmt.Errorf("storage: migrate session entries: %w", err)
	}
	return &SQLite{db: db, sessionID: sessionID, clock: time.Now}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry SessionEntry
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND entry_key = ?", s.sessionID, key).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return errMissingKey
	}
	entry := SessionEntry{
		SessionID:        s.sessionID,
		Key:              key,
		Value:            value,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_s"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND entry_key = ?", s.sessionID, key).
		Delete(&SessionEntry{}).Error
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// EndSession removes every value recorded for the session.
func (s *SQLite) EndSession(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ?", s.sessionID).
		Delete(&SessionEntry{}).Error
	if err != nil {
		return fmt.Errorf("storage: end session: %w", err)
	}
	return nil
}
