// Package cache keeps client-side copies of remote collections and applies
// optimistic mutations to them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

// DefaultStaleTime is how long a fetched snapshot is considered fresh.
const DefaultStaleTime = 5 * time.Minute

const (
	opFetch   = "cache.fetch"
	opCreate  = "cache.create"
	opUpdate  = "cache.update"
	opDelete  = "cache.delete"
	opRefetch = "cache.refetch"
)

var (
	errMissingSource = errors.New("cache: source is required")
	errMissingKey    = errors.New("cache: collection key is required")
	noOpLogger       = zap.NewNop()
)

// Source is the remote side of a collection.
type Source[T records.Keyed] interface {
	FetchAll(ctx context.Context) ([]T, error)
	Create(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) (T, error)
	Delete(ctx context.Context, id int) error
}

// FetchError reports a failed collection fetch. The previous snapshot is kept.
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cache: fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Snapshot is an immutable view of a collection at one version.
type Snapshot[T records.Keyed] struct {
	Rows      []T
	Version   uint64
	FetchedAt time.Time
	Stale     bool
	Loaded    bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger            *zap.Logger
	clock             func() time.Time
	staleTime         time.Duration
	backgroundRefetch bool
}

// WithLogger routes cache diagnostics to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for staleness.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithStaleTime overrides DefaultStaleTime.
func WithStaleTime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleTime = d
		}
	}
}

// WithBackgroundRefetch toggles the re-fetch that follows a confirmed mutation.
func WithBackgroundRefetch(enabled bool) Option {
	return func(o *options) {
		o.backgroundRefetch = enabled
	}
}

// Cache holds the latest snapshot of one remote collection.
type Cache[T records.Keyed] struct {
	key     string
	source  Source[T]
	opts    options
	mu      sync.RWMutex
	current Snapshot[T]
	stream  *broadcaster[T]
	pending sync.WaitGroup
}

// New constructs a Cache for the collection identified by key.
func New[T records.Keyed](key string, source Source[T], opts ...Option) (*Cache[T], error) {
	if key == "" {
		return nil, errMissingKey
	}
	if source == nil {
		return nil, errMissingSource
	}
	resolved := options{
		logger:            noOpLogger,
		clock:             time.Now,
		staleTime:         DefaultStaleTime,
		backgroundRefetch: true,
	}
	for _, opt := range opts {
		opt(&resolved)
	}
	return &Cache[T]{
		key:    key,
		source: source,
		opts:   resolved,
		stream: newBroadcaster[T](),
	}, nil
}

// Key returns the collection key.
func (c *Cache[T]) Key() string {
	return c.key
}

// Fetch loads the full collection and replaces the snapshot. It blocks until
// the source answers.
func (c *Cache[T]) Fetch(ctx context.Context) ([]T, error) {
	rows, err := c.source.FetchAll(ctx)
	if err != nil {
		c.logError(opFetch, "source_failed", err)
		return nil, &FetchError{Key: c.key, Err: err}
	}
	fresh := append([]T(nil), rows...)
	c.install(func(snapshot *Snapshot[T]) {
		snapshot.Rows = fresh
		snapshot.FetchedAt = c.opts.clock()
		snapshot.Stale = false
		snapshot.Loaded = true
	})
	return append([]T(nil), fresh...), nil
}

// Snapshot returns the current snapshot. Rows is a copy.
func (c *Cache[T]) Snapshot() Snapshot[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := c.current
	snapshot.Rows = append([]T(nil), c.current.Rows...)
	return snapshot
}

// Rows is shorthand for Snapshot().Rows.
func (c *Cache[T]) Rows() []T {
	return c.Snapshot().Rows
}

// IsStale reports whether the snapshot should be re-fetched.
func (c *Cache[T]) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.current.Loaded || c.current.Stale {
		return true
	}
	return c.opts.clock().Sub(c.current.FetchedAt) > c.opts.staleTime
}

// Invalidate marks the snapshot stale without fetching.
func (c *Cache[T]) Invalidate() {
	c.install(func(snapshot *Snapshot[T]) {
		snapshot.Stale = true
	})
}

// Subscribe streams every new snapshot until ctx ends or the returned func is called.
func (c *Cache[T]) Subscribe(ctx context.Context) (<-chan Snapshot[T], func()) {
	return c.stream.subscribe(ctx)
}

// Create prepends record optimistically, then asks the source to persist it.
func (c *Cache[T]) Create(ctx context.Context, record T) (T, error) {
	var zero T
	key := record.Key()
	c.install(func(snapshot *Snapshot[T]) {
		snapshot.Rows = prepend(snapshot.Rows, record)
	})

	confirmed, err := c.source.Create(ctx, record)
	if err != nil {
		c.logError(opCreate, "source_failed", err, zap.Int("record_id", key))
		c.install(func(snapshot *Snapshot[T]) {
			snapshot.Rows = removeFirst(snapshot.Rows, key)
		})
		return zero, err
	}
	c.confirm(func(rows []T) []T {
		return replaceKey(rows, key, confirmed)
	})
	return confirmed, nil
}

// Update replaces the record with the same key optimistically, then asks the
// source to persist it.
func (c *Cache[T]) Update(ctx context.Context, record T) (T, error) {
	var zero T
	key := record.Key()
	var previous T
	var found bool
	c.install(func(snapshot *Snapshot[T]) {
		if index := indexOf(snapshot.Rows, key); index >= 0 {
			previous, found = snapshot.Rows[index], true
		}
		snapshot.Rows = replaceKey(snapshot.Rows, key, record)
	})

	confirmed, err := c.source.Update(ctx, record)
	if err != nil {
		c.logError(opUpdate, "source_failed", err, zap.Int("record_id", key))
		if found {
			c.install(func(snapshot *Snapshot[T]) {
				snapshot.Rows = replaceKey(snapshot.Rows, key, previous)
			})
		}
		return zero, err
	}
	c.confirm(func(rows []T) []T {
		return replaceKey(rows, key, confirmed)
	})
	return confirmed, nil
}

// Delete removes the record optimistically, then asks the source to delete it.
func (c *Cache[T]) Delete(ctx context.Context, id int) error {
	var previous T
	position := -1
	c.install(func(snapshot *Snapshot[T]) {
		position = indexOf(snapshot.Rows, id)
		if position >= 0 {
			previous = snapshot.Rows[position]
		}
		snapshot.Rows = removeKey(snapshot.Rows, id)
	})

	if err := c.source.Delete(ctx, id); err != nil {
		c.logError(opDelete, "source_failed", err, zap.Int("record_id", id))
		if position >= 0 {
			c.install(func(snapshot *Snapshot[T]) {
				if indexOf(snapshot.Rows, id) >= 0 {
					return
				}
				snapshot.Rows = insertAt(snapshot.Rows, position, previous)
			})
		}
		return err
	}
	c.confirm(func(rows []T) []T {
		return rows
	})
	return nil
}

// Wait blocks until background re-fetches started by mutations have finished.
func (c *Cache[T]) Wait() {
	c.pending.Wait()
}

func (c *Cache[T]) confirm(patch func([]T) []T) {
	c.install(func(snapshot *Snapshot[T]) {
		snapshot.Rows = patch(snapshot.Rows)
		snapshot.Stale = true
	})
	if !c.opts.backgroundRefetch {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		if _, err := c.Fetch(context.Background()); err != nil {
			c.logError(opRefetch, "fetch_failed", err)
		}
	}()
}

// install applies mutate to a copy of the current snapshot, bumps the version
// and publishes the result. Publishing under the lock keeps subscribers in
// version order.
func (c *Cache[T]) install(mutate func(*Snapshot[T])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.current
	mutate(&next)
	next.Version = c.current.Version + 1
	c.current = next
	c.stream.publish(next)
}

func (c *Cache[T]) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("collection", c.key),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.opts.logger.Warn("cache operation failed", attrs...)
}

func indexOf[T records.Keyed](rows []T, key int) int {
	for index, row := range rows {
		if row.Key() == key {
			return index
		}
	}
	return -1
}

func prepend[T records.Keyed](rows []T, record T) []T {
	next := make([]T, 0, len(rows)+1)
	next = append(next, record)
	return append(next, rows...)
}

func replaceKey[T records.Keyed](rows []T, key int, record T) []T {
	index := indexOf(rows, key)
	if index < 0 {
		return rows
	}
	next := append([]T(nil), rows...)
	next[index] = record
	return next
}

func removeKey[T records.Keyed](rows []T, key int) []T {
	next := make([]T, 0, len(rows))
	for _, row := range rows {
		if row.Key() != key {
			next = append(next, row)
		}
	}
	return next
}

// removeFirst drops only the earliest row with key, leaving a remote row that
// shares the key of a rejected optimistic create in place.
func removeFirst[T records.Keyed](rows []T, key int) []T {
	index := indexOf(rows, key)
	if index < 0 {
		return rows
	}
	next := make([]T, 0, len(rows)-1)
	next = append(next, rows[:index]...)
	return append(next, rows[index+1:]...)
}

func insertAt[T records.Keyed](rows []T, position int, record T) []T {
	if position > len(rows) {
		position = len(rows)
	}
	next := make([]T, 0, len(rows)+1)
	next = append(next, rows[:position]...)
	next = append(next, record)
	return append(next, rows[position:]...)
}
