package cache

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

const subscriberBufferSize = 16

// broadcaster fans snapshots out to subscribers. Slow subscribers miss
// intermediate snapshots rather than blocking the cache.
type broadcaster[T records.Keyed] struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Snapshot[T]
	nextID      int64
}

func newBroadcaster[T records.Keyed]() *broadcaster[T] {
	return &broadcaster[T]{subscribers: make(map[int64]chan Snapshot[T])}
}

// subscribe registers a stream until ctx ends or cleanup runs. The stream
// is closed on either.
func (b *broadcaster[T]) subscribe(ctx context.Context) (<-chan Snapshot[T], func()) {
	stream := make(chan Snapshot[T], subscriberBufferSize)
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = stream
	b.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(stop)
			b.mu.Lock()
			delete(b.subscribers, id)
			close(stream)
			b.mu.Unlock()
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				cleanup()
			case <-stop:
			}
		}()
	}
	return stream, cleanup
}

func (b *broadcaster[T]) publish(snapshot Snapshot[T]) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, stream := range b.subscribers {
		select {
		case stream <- snapshot:
		default:
		}
	}
}

func (b *broadcaster[T]) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
