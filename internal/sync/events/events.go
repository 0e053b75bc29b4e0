// Package events provides the typed publish/subscribe channel carrying
// sync lifecycle events to status-indicator consumers.
package events

import (
	"sync"
	"time"

	"github.com/kimhsiao/promptdeck/internal/models"
)

// Kind identifies a sync lifecycle event.
type Kind string

const (
	KindSyncStart        Kind = "sync_start"
	KindSyncComplete     Kind = "sync_complete"
	KindSyncError        Kind = "sync_error"
	KindConflictDetected Kind = "conflict_detected"
)

// Event is one sync lifecycle notification. Only the fields relevant to
// the kind are populated.
type Event struct {
	Kind      Kind  `json:"kind"`
	Timestamp int64 `json:"timestamp"`

	// sync_complete
	RemainingItems int `json:"remainingItems,omitempty"`

	// sync_error
	EntityType models.EntityType `json:"entityType,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	Error      string            `json:"error,omitempty"`

	// conflict_detected
	ConflictCount int `json:"conflictCount,omitempty"`
}

// subscriber buffer; publishers never block, a full subscriber drops the event.
const subscriberBuffer = 64

// Bus is a typed event bus. Publishing never blocks: slow subscribers
// miss events rather than stalling the sync worker.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func unregisters it
// and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close unregisters all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
