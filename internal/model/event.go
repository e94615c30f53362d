package model

import (
	"fmt"
	"time"
)

// EventType is the kind of local mutation recorded in an OfflineEvent
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventMove   EventType = "MOVE"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventCreate, EventUpdate, EventDelete, EventMove:
		return true
	}
	return false
}

// EventStatus tracks an OfflineEvent through the sync state machine:
// pending → syncing → {synced | conflict | failed}
type EventStatus string

const (
	StatusPending  EventStatus = "pending"
	StatusSyncing  EventStatus = "syncing"
	StatusConflict EventStatus = "conflict"
	StatusSynced   EventStatus = "synced"
	StatusFailed   EventStatus = "failed"
)

// Valid reports whether s is a known status
func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusConflict, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// Metadata keys written on events
const (
	MetaReason             = "reason"
	MetaConflictIDs        = "conflictIds"
	MetaLastError          = "lastError"
	MetaSnapshotMissing    = "snapshotMissing"
	MetaSkipDuplicateCheck = "skipDuplicateCheck"
	MetaResolvesConflict   = "resolvesConflict"
	MetaResolution         = "resolution"
	MetaSupersedes         = "supersedes"
)

// OfflineEvent is a durable, ordered record of one local mutation that has
// not yet been confirmed by the remote store.
type OfflineEvent struct {
	ID           string         `json:"id"`
	Seq          int64          `json:"seq"` // store-assigned creation order
	Type         EventType      `json:"type"`
	Entity       Entity         `json:"entity"`
	EntityID     string         `json:"entityId"`
	Data         map[string]any `json:"data,omitempty"`
	OriginalData map[string]any `json:"originalData,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Status       EventStatus    `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Attempts     int            `json:"attempts"`
	LastError    string         `json:"lastError,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Key returns the (entity, entityId) ordering key
func (e *OfflineEvent) Key() EntityKey {
	return EntityKey{Entity: e.Entity, EntityID: e.EntityID}
}

// SnapshotMissing reports whether the local "before" snapshot is unavailable
func (e *OfflineEvent) SnapshotMissing() bool {
	if e.OriginalData == nil {
		return true
	}
	v, _ := e.Metadata[MetaSnapshotMissing].(bool)
	return v
}

// MetaBool reads a boolean metadata flag
func (e *OfflineEvent) MetaBool(key string) bool {
	v, _ := e.Metadata[key].(bool)
	return v
}

// Validate checks the shape rules for a freshly recorded event.
// originalData may be absent for UPDATE/DELETE/MOVE only when the caller
// flags the snapshot as missing; detection then degrades to timestamps.
func (e *OfflineEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if !e.Entity.Valid() {
		return fmt.Errorf("%w: unknown entity %q", ErrInvalidEvent, e.Entity)
	}
	if e.EntityID == "" {
		return fmt.Errorf("%w: entityId is required", ErrInvalidEvent)
	}

	switch e.Type {
	case EventCreate, EventUpdate, EventMove:
		if len(e.Data) == 0 {
			return fmt.Errorf("%w: data is required for %s", ErrInvalidEvent, e.Type)
		}
	case EventDelete:
		if len(e.Data) != 0 {
			return fmt.Errorf("%w: data must be empty for DELETE", ErrInvalidEvent)
		}
	}

	if e.Type != EventCreate && e.OriginalData == nil && !e.MetaBool(MetaSnapshotMissing) {
		return fmt.Errorf("%w: originalData is required for %s", ErrInvalidEvent, e.Type)
	}
	return nil
}

// EntityKey identifies one remote entity
type EntityKey struct {
	Entity   Entity
	EntityID string
}

func (k EntityKey) String() string {
	return string(k.Entity) + "/" + k.EntityID
}

// EntitySyncStatus is the per-entity read model used for optimistic UI
type EntitySyncStatus struct {
	Entity      Entity      `json:"entity"`
	EntityID    string      `json:"entityId"`
	Status      EventStatus `json:"status"` // synced when nothing is outstanding
	Pending     int         `json:"pending"`
	Failed      int         `json:"failed"`
	ConflictIDs []string    `json:"conflictIds,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
}
