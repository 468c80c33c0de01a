// Package drafts keeps locally created records that the server has not
// accepted yet. Drafts persist in session storage across reloads.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
	"github.com/MarcoPoloResearchLab/roster/internal/storage"
)

// DefaultNamespace is the storage key used for user drafts.
const DefaultNamespace = "roster.drafts.users"

var errMissingStorage = errors.New("drafts: storage is required")

type document[T records.Keyed] struct {
	NewRecords []T `json:"newRecords"`
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger *zap.Logger
}

// WithLogger routes draft diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Store is an ordered, persisted list of drafts, newest first.
type Store[T records.Keyed] struct {
	mu          sync.RWMutex
	storage     storage.Storage
	namespace   string
	validate    func(T) (T, error)
	logger      *zap.Logger
	drafts      []T
	lastRemoved *T
}

// New loads the drafts stored under namespace. Unreadable contents start an
// empty list. validate runs before every mutation; nil accepts everything.
func New[T records.Keyed](ctx context.Context, store storage.Storage, namespace string, validate func(T) (T, error), opts ...Option) (*Store[T], error) {
	if store == nil {
		return nil, errMissingStorage
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if validate == nil {
		validate = func(value T) (T, error) { return value, nil }
	}
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store[T]{
		storage:   store,
		namespace: namespace,
		validate:  validate,
		logger:    cfg.logger,
	}
	payload, ok, err := store.Get(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("drafts: load %s: %w", namespace, err)
	}
	if ok {
		var doc document[T]
		if err := json.Unmarshal(payload, &doc); err != nil {
			s.logger.Warn("discarding unreadable drafts",
				zap.String("namespace", namespace),
				zap.Error(err))
		} else {
			s.drafts = doc.NewRecords
		}
	}
	return s, nil
}

// List returns a copy of the drafts, newest first.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.drafts...)
}

// Len returns the number of drafts.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// Add prepends record. A draft with the same key is replaced and moved first.
func (s *Store[T]) Add(ctx context.Context, record T) error {
	valid, err := s.validate(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]T, 0, len(s.drafts)+1)
	next = append(next, valid)
	for _, draft := range s.drafts {
		if draft.Key() != valid.Key() {
			next = append(next, draft)
		}
	}
	return s.commit(ctx, next)
}

// Update replaces the draft with the same key. An unknown key changes nothing.
func (s *Store[T]) Update(ctx context.Context, record T) error {
	valid, err := s.validate(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(valid.Key())
	if index < 0 {
		return nil
	}
	next := append([]T(nil), s.drafts...)
	next[index] = valid
	return s.commit(ctx, next)
}

// Remove deletes the draft with id and remembers it for LastRemoved. Removing
// an unknown id clears LastRemoved.
func (s *Store[T]) Remove(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(id)
	if index < 0 {
		s.lastRemoved = nil
		return nil
	}
	removed := s.drafts[index]
	next := make([]T, 0, len(s.drafts)-1)
	next = append(next, s.drafts[:index]...)
	next = append(next, s.drafts[index+1:]...)
	if err := s.commit(ctx, next); err != nil {
		return err
	}
	s.lastRemoved = &removed
	return nil
}

// Clear drops every draft.
func (s *Store[T]) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, nil)
}

// Reconcile drops drafts whose key now exists remotely and returns how many went.
func (s *Store[T]) Reconcile(ctx context.Context, remote []T) (int, error) {
	present := make(map[int]struct{}, len(remote))
	for _, row := range remote {
		present[row.Key()] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]T, 0, len(s.drafts))
	for _, draft := range s.drafts {
		if _, ok := present[draft.Key()]; !ok {
			next = append(next, draft)
		}
	}
	dropped := len(s.drafts) - len(next)
	if dropped == 0 {
		return 0, nil
	}
	if err := s.commit(ctx, next); err != nil {
		return 0, err
	}
	return dropped, nil
}

// LastRemoved reports the most recently removed draft. It is never persisted.
func (s *Store[T]) LastRemoved() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRemoved == nil {
		var zero T
		return zero, false
	}
	return *s.lastRemoved, true
}

// AcknowledgeRemoved clears LastRemoved.
func (s *Store[T]) AcknowledgeRemoved() {
	s.mu.Lock()
	s.lastRemoved = nil
	s.mu.Unlock()
}

func (s *Store[T]) indexOf(id int) int {
	for index, draft := range s.drafts {
		if draft.Key() == id {
			return index
		}
	}
	return -1
}

// commit persists next and only then makes it current. Callers hold s.mu.
func (s *Store[T]) commit(ctx context.Context, next []T) error {
	if next == nil {
		next = []T{}
	}
	payload, err := json.Marshal(document[T]{NewRecords: next})
	if err != nil {
		return fmt.Errorf("drafts: encode: %w", err)
	}
	if err := s.storage.Set(ctx, s.namespace, payload); err != nil {
		s.logger.Error("failed to persist drafts",
			zap.String("namespace", s.namespace),
			zap.Error(err))
		return fmt.Errorf("drafts: persist: %w", err)
	}
	s.drafts = next
	return nil
}
