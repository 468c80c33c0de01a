package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

// ErrDuplicateCollection is returned when a key is registered twice.
var ErrDuplicateCollection = errors.New("cache: collection already registered")

type collection interface {
	Key() string
	Invalidate()
	IsStale() bool
	Wait()
}

// Registry holds at most one Cache per collection key for the process.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]collection
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]collection)}
}

// Register adds c under its key.
func Register[T records.Keyed](registry *Registry, c *Cache[T]) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.caches[c.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCollection, c.Key())
	}
	registry.caches[c.Key()] = c
	return nil
}

// Lookup returns the Cache registered under key when its element type is T.
func Lookup[T records.Keyed](registry *Registry, key string) (*Cache[T], bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	c, ok := registry.caches[key].(*Cache[T])
	return c, ok
}

// Invalidate marks the named collections stale.
func (r *Registry) Invalidate(keys ...string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range keys {
		if c, ok := r.caches[key]; ok {
			c.Invalidate()
		}
	}
}

// Stale lists the keys whose collections should be re-fetched.
func (r *Registry) Stale() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.caches))
	for key, c := range r.caches {
		if c.IsStale() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Wait blocks until every registered cache has no background work left.
func (r *Registry) Wait() {
	r.mu.RLock()
	caches := make([]collection, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.RUnlock()
	for _, c := range caches {
		c.Wait()
	}
}
