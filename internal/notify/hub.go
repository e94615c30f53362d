// Package notify fans out engine events (status changes, conflicts, cache
// invalidations) to in-process subscribers such as the websocket stream.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

// Kind names a notification
type Kind string

const (
	KindEventStatus      Kind = "event_status"
	KindConflictDetected Kind = "conflict_detected"
	KindConflictResolved Kind = "conflict_resolved"
	KindInvalidate       Kind = "invalidate" // UI must refetch the entity
	KindEntityMerged     Kind = "entity_merged"
	KindConnectivity     Kind = "connectivity"
	KindSyncPass         Kind = "sync_pass"
)

// Message is one notification
type Message struct {
	Kind       Kind              `json:"kind"`
	Entity     model.Entity      `json:"entity,omitempty"`
	EntityID   string            `json:"entityId,omitempty"`
	EventID    string            `json:"eventId,omitempty"`
	ConflictID string            `json:"conflictId,omitempty"`
	Status     model.EventStatus `json:"status,omitempty"`
	Online     *bool             `json:"online,omitempty"`
	Detail     map[string]any    `json:"detail,omitempty"`
	At         time.Time         `json:"at"`
}

// Publisher is the write side of the hub
type Publisher interface {
	Publish(m Message)
}

// Hub is a non-blocking broadcaster. Slow subscribers drop messages rather
// than stall the sync pass.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Message
	nextID int
	buffer int
}

// NewHub creates a hub with per-subscriber buffers of size buffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[int]chan Message), buffer: buffer}
}

// Publish delivers m to every subscriber without blocking
func (h *Hub) Publish(m Message) {
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- m:
		default:
			log.Warn().Int("subscriber", id).Str("kind", string(m.Kind)).Msg("notify subscriber lagging, message dropped")
		}
	}
}

// Subscribe returns a message channel and a cancel func that closes it
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Message, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Discard is a Publisher that drops everything
type Discard struct{}

func (Discard) Publish(Message) {}
