// Package store defines the durable local queue of offline events and the
// conflict records and resolution decisions derived from it.
package store

import (
	"context"
	"time"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

// EventFilter narrows ListEvents. Zero values mean "any".
type EventFilter struct {
	Status   model.EventStatus
	Entity   model.Entity
	EntityID string
	AfterSeq int64 // exclusive lower bound, for cursor paging
	Limit    int
}

// ResolutionCommit is the unit of work that closes a conflict
type ResolutionCommit struct {
	ConflictID string
	Resolution model.Resolution
	Data       map[string]any
	By         string
	WriteBack  *model.OfflineEvent // nil when nothing is written back
}

// Store is the Persistent Event Store. Every write is durable before it
// returns; I/O failures are reported as *model.StorageError.
type Store interface {
	// Append records a new event with status pending. ID and Timestamp are
	// assigned when empty. Returns the stored event.
	Append(ctx context.Context, ev *model.OfflineEvent) (*model.OfflineEvent, error)
	// ImportEvents inserts events preserving their ids; ids already present
	// are skipped. Returns the number inserted.
	ImportEvents(ctx context.Context, evs []model.OfflineEvent) (int, error)
	Get(ctx context.Context, id string) (*model.OfflineEvent, error)
	// ListPending returns pending events in creation order
	ListPending(ctx context.Context) ([]model.OfflineEvent, error)
	ListEvents(ctx context.Context, f EventFilter) ([]model.OfflineEvent, error)

	// ClaimForSync moves a pending event to syncing. It returns false when the
	// event is no longer pending or another event for the same entity is
	// already syncing.
	ClaimForSync(ctx context.Context, id string) (bool, error)
	// UpdateStatus sets the status, merges metadata and records lastError.
	// Moving back to pending increments the attempt counter.
	UpdateStatus(ctx context.Context, id string, status model.EventStatus, metadata map[string]any, lastError string) error
	// MarkConflict persists the records and moves the event to conflict atomically
	MarkConflict(ctx context.Context, eventID, reason string, records []model.ConflictRecord) error
	DiscardEvent(ctx context.Context, id string) error
	// RecoverInterrupted returns events left in syncing by a crash to pending
	RecoverInterrupted(ctx context.Context) (int, error)

	PutConflict(ctx context.Context, c *model.ConflictRecord) error
	GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error)
	ListUnresolved(ctx context.Context) ([]model.ConflictRecord, error)
	FindConflictsByEntity(ctx context.Context, entity model.Entity, entityID string) ([]model.ConflictRecord, error)
	// MarkResolved closes a conflict once. A second call returns
	// *model.AlreadyResolvedError and leaves the record untouched.
	MarkResolved(ctx context.Context, id string, resolution model.Resolution, data map[string]any, by string) (*model.ConflictRecord, error)

	// ApplyResolution closes a conflict and its open siblings, removes the
	// owning event and appends the optional write-back event atomically.
	ApplyResolution(ctx context.Context, r ResolutionCommit) (*model.ConflictRecord, *model.OfflineEvent, error)

	PutDecision(ctx context.Context, d model.Decision) error
	// GetDecision returns nil, nil when no decision is cached
	GetDecision(ctx context.Context, entity model.Entity, entityID string) (*model.Decision, error)

	EntityStatus(ctx context.Context, entity model.Entity, entityID string) (*model.EntitySyncStatus, error)

	PurgeResolvedConflicts(ctx context.Context, before time.Time) (int, error)
	PurgeSyncedEvents(ctx context.Context, before time.Time) (int, error)

	Close() error
}
