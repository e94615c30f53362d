package model

import "time"

// ConflictType classifies the divergence between local and remote state
type ConflictType string

const (
	ConflictUpdateUpdate ConflictType = "UPDATE_UPDATE"
	ConflictDeleteUpdate ConflictType = "DELETE_UPDATE"
	ConflictCreateCreate ConflictType = "CREATE_CREATE"
	ConflictMoveMove     ConflictType = "MOVE_MOVE"
)

// Resolution is the decision that closes a conflict
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveServer Resolution = "server"
	ResolveMerge  Resolution = "merge"
	ResolveManual Resolution = "manual"
)

// Valid reports whether r is a known resolution
func (r Resolution) Valid() bool {
	switch r {
	case ResolveLocal, ResolveServer, ResolveMerge, ResolveManual:
		return true
	}
	return false
}

// RequiresData reports whether the caller must supply resolvedData
func (r Resolution) RequiresData() bool {
	return r == ResolveMerge || r == ResolveManual
}

// WritesBack reports whether the resolution re-enqueues a remote write
func (r Resolution) WritesBack() bool {
	return r == ResolveLocal || r == ResolveMerge
}

// ConflictRecord is a detected divergence requiring resolution.
// Once Resolution is set the record is immutable apart from audit fields.
type ConflictRecord struct {
	ID              string         `json:"id"`
	EventID         string         `json:"eventId"`
	Type            ConflictType   `json:"type"`
	Entity          Entity         `json:"entity"`
	EntityID        string         `json:"entityId"`
	Fields          []string       `json:"fields,omitempty"`
	Reason          string         `json:"reason"`
	LocalData       map[string]any `json:"localData,omitempty"`
	ServerData      map[string]any `json:"serverData,omitempty"`
	LocalTimestamp  time.Time      `json:"localTimestamp"`
	ServerTimestamp time.Time      `json:"serverTimestamp"`
	DetectedAt      time.Time      `json:"detectedAt"`
	Resolution      Resolution     `json:"resolution,omitempty"`
	ResolvedData    map[string]any `json:"resolvedData,omitempty"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty"`
	ResolvedBy      string         `json:"resolvedBy,omitempty"`
}

// IsResolved reports whether a resolution has been recorded
func (c *ConflictRecord) IsResolved() bool {
	return c.Resolution != ""
}

// Decision is the cached last local/server choice for one entity.
// It keeps later syncs of the same entity deterministic without re-prompting.
type Decision struct {
	Entity     Entity     `json:"entity"`
	EntityID   string     `json:"entityId"`
	Choice     Resolution `json:"choice"` // local or server
	ConflictID string     `json:"conflictId"`
	DecidedAt  time.Time  `json:"decidedAt"`
}
