package server

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	RealtimeEventRecordChanged = "record-change"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "roster-api"
	realtimeTopicUsers         = "users"
	realtimeHeartbeatInterval  = 25 * time.Second
)

// RealtimeMessage tells subscribers which records of a collection changed.
type RealtimeMessage struct {
	Topic     string
	EventType string
	Operation string
	RecordIDs []int
	Timestamp time.Time
}

// RealtimeDispatcher fans change messages out to per-topic subscribers.
// Slow subscribers miss messages rather than block writers.
type RealtimeDispatcher struct {
	mu         sync.RWMutex
	topics     map[string]map[uint64]chan RealtimeMessage
	sequence   uint64
	bufferSize int
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		topics:     make(map[string]map[uint64]chan RealtimeMessage),
		bufferSize: 16,
	}
}

// Subscribe registers a stream for topic until ctx ends or cleanup runs.
// An empty topic yields a closed stream.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topic string) (<-chan RealtimeMessage, func()) {
	stream := make(chan RealtimeMessage, d.bufferSize)
	if topic == "" {
		close(stream)
		return stream, func() {}
	}

	d.mu.Lock()
	d.sequence++
	id := d.sequence
	if d.topics[topic] == nil {
		d.topics[topic] = make(map[uint64]chan RealtimeMessage)
	}
	d.topics[topic][id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.drop(topic, id) })
	}
	stop := context.AfterFunc(ctx, cleanup)
	return stream, func() {
		stop()
		cleanup()
	}
}

// Publish delivers message to every current subscriber of its topic.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Topic == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.topics[message.Topic] {
		select {
		case stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams listen on topic.
func (d *RealtimeDispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[topic])
}

func (d *RealtimeDispatcher) drop(topic string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	streams := d.topics[topic]
	delete(streams, id)
	if len(streams) == 0 {
		delete(d.topics, topic)
	}
}

// collectRecordIDs returns the distinct positive ids in ascending order.
func collectRecordIDs(ids ...int) []int {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Ints(out)
	return out
}
