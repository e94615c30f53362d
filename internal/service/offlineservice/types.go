package offlineservice

import (
	"time"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

// MutationRequest is one local change submitted by the UI
type MutationRequest struct {
	Type         model.EventType `json:"type"`
	Entity       model.Entity    `json:"entity"`
	EntityID     string          `json:"entityId,omitempty"` // generated for CREATE when empty
	Data         map[string]any  `json:"data,omitempty"`
	OriginalData map[string]any  `json:"originalData,omitempty"`
	Timestamp    time.Time       `json:"timestamp,omitempty"` // defaults to now

	// SnapshotMissing declares that no "before" state is available;
	// conflict detection then falls back to timestamps only.
	SnapshotMissing    bool `json:"snapshotMissing,omitempty"`
	SkipDuplicateCheck bool `json:"skipDuplicateCheck,omitempty"`
}

// ConflictView is a conflict plus the cached choice for its entity
type ConflictView struct {
	model.ConflictRecord
	Suggested model.Resolution `json:"suggested,omitempty"`
}

// ListOptions pages through the event queue
type ListOptions struct {
	Status   model.EventStatus
	Entity   model.Entity
	EntityID string
	Cursor   string
	Limit    int
}

// EventPage is one page of events
type EventPage struct {
	Events     []model.OfflineEvent `json:"events"`
	NextCursor *string              `json:"nextCursor,omitempty"`
}

// QueueExport is the payload of ExportQueue: every event not yet synced and
// every open conflict.
type QueueExport struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exportedAt"`
	Events     []model.OfflineEvent   `json:"events"`
	Conflicts  []model.ConflictRecord `json:"conflicts"`
}

// ImportReport counts what ImportQueue added
type ImportReport struct {
	Events    int `json:"events"`
	Conflicts int `json:"conflicts"`
}

const exportVersion = 1
