// Package conflict detects divergence between queued local mutations and
// the remote store, and applies the decisions that close those conflicts.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// ErrAlreadyApplied reports that a CREATE is already present remotely with
// the same content, typically after a crash between apply and commit.
var ErrAlreadyApplied = errors.New("mutation already applied on remote")

// Detector compares one OfflineEvent against the current remote state.
// Remote rows arrive canonical from the adapter and are not re-mapped here.
type Detector struct {
	remote  remote.Store
	finders []DuplicateFinder
	log     zerolog.Logger
	now     func() time.Time
}

// NewDetector creates a detector. With no finders, DefaultFinders is used.
func NewDetector(rs remote.Store, logger zerolog.Logger, finders ...DuplicateFinder) *Detector {
	if len(finders) == 0 {
		finders = DefaultFinders()
	}
	return &Detector{
		remote:  rs,
		finders: finders,
		log:     logger.With().Str("component", "conflict-detector").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DetectEventConflicts returns the conflicts ev would cause if applied now.
// An empty result means the event is safe to apply. Remote failures are
// returned unchanged so the caller can classify them.
func (d *Detector) DetectEventConflicts(ctx context.Context, ev *model.OfflineEvent) ([]model.ConflictRecord, error) {
	var (
		out []model.ConflictRecord
		err error
	)
	switch ev.Type {
	case model.EventUpdate, model.EventMove:
		out, err = d.detectUpdate(ctx, ev)
	case model.EventDelete:
		out, err = d.detectDelete(ctx, ev)
	case model.EventCreate:
		out, err = d.detectCreate(ctx, ev)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", model.ErrInvalidEvent, ev.Type)
	}
	if err != nil {
		return nil, err
	}

	if len(out) > 0 {
		d.log.Info().
			Str("event_id", ev.ID).
			Str("entity", string(ev.Entity)).
			Str("entity_id", ev.EntityID).
			Str("type", string(out[0].Type)).
			Int("conflicts", len(out)).
			Msg("conflict detected")
	}
	return out, nil
}

func (d *Detector) record(ev *model.OfflineEvent, typ model.ConflictType, fields []string, reason string, local map[string]any, rec *remote.Record) model.ConflictRecord {
	c := model.ConflictRecord{
		ID:             uuid.NewString(),
		EventID:        ev.ID,
		Type:           typ,
		Entity:         ev.Entity,
		EntityID:       ev.EntityID,
		Fields:         fields,
		Reason:         reason,
		LocalData:      local,
		LocalTimestamp: ev.Timestamp,
		DetectedAt:     d.now(),
	}
	if rec != nil {
		if !rec.Deleted {
			c.ServerData = rec.Data
		}
		c.ServerTimestamp = rec.UpdatedAt
	}
	return c
}

// remoteChangedSince reports whether rec was modified after t. An unknown
// modification time counts as changed; field comparison then decides.
func remoteChangedSince(rec *remote.Record, t time.Time) bool {
	if !rec.HasUpdatedAt() {
		return true
	}
	return rec.UpdatedAt.After(t)
}

func (d *Detector) detectUpdate(ctx context.Context, ev *model.OfflineEvent) ([]model.ConflictRecord, error) {
	rec, err := d.remote.FetchByID(ctx, ev.Entity, ev.EntityID)
	if err != nil {
		return nil, err
	}

	local := syncx.Canonicalize(ev.Data)
	original := syncx.Canonicalize(ev.OriginalData)

	if rec == nil || rec.Deleted {
		// the UI still holds the entity; keep its full view for a re-create
		full := overlay(original, local)
		full["id"] = ev.EntityID
		reason := fmt.Sprintf("%s %s was deleted remotely while local %s was pending", ev.Entity, ev.EntityID, strings.ToLower(string(ev.Type)))
		return []model.ConflictRecord{d.record(ev, model.ConflictDeleteUpdate, sortedKeys(local), reason, full, rec)}, nil
	}

	if !remoteChangedSince(rec, ev.Timestamp) {
		return nil, nil
	}

	typ := model.ConflictUpdateUpdate
	if ev.Type == model.EventMove {
		typ = model.ConflictMoveMove
	}

	if ev.SnapshotMissing() {
		// no local "before" state: any remote change after the event conflicts
		fields := divergentFields(local, rec.Data)
		reason := fmt.Sprintf("%s %s changed remotely after the local edit and no local snapshot is available", ev.Entity, ev.EntityID)
		return []model.ConflictRecord{d.record(ev, typ, fields, reason, local, rec)}, nil
	}

	fields := conflictingFields(original, local, rec.Data)
	if len(fields) == 0 {
		return nil, nil
	}
	return []model.ConflictRecord{d.record(ev, typ, fields, describeFields(fields, original, local, rec.Data), local, rec)}, nil
}

func (d *Detector) detectDelete(ctx context.Context, ev *model.OfflineEvent) ([]model.ConflictRecord, error) {
	rec, err := d.remote.FetchByID(ctx, ev.Entity, ev.EntityID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Deleted {
		return nil, nil
	}

	if rec.HasUpdatedAt() && !rec.UpdatedAt.After(ev.Timestamp) {
		return nil, nil
	}

	// with a snapshot only a content change counts, so a remote bump made by
	// our own earlier event for the entity is not a conflict
	var fields []string
	if !ev.SnapshotMissing() {
		fields = divergentFields(syncx.Canonicalize(ev.OriginalData), rec.Data)
		if len(fields) == 0 {
			return nil, nil
		}
	}

	reason := fmt.Sprintf("%s %s was modified remotely after it was deleted locally", ev.Entity, ev.EntityID)
	return []model.ConflictRecord{d.record(ev, model.ConflictDeleteUpdate, fields, reason, nil, rec)}, nil
}

func (d *Detector) detectCreate(ctx context.Context, ev *model.OfflineEvent) ([]model.ConflictRecord, error) {
	local := syncx.Canonicalize(ev.Data)

	var out []model.ConflictRecord
	seen := make(map[string]bool)

	// same id already present: either a replay of this create or a collision
	rec, err := d.remote.FetchByID(ctx, ev.Entity, ev.EntityID)
	if err != nil {
		return nil, err
	}
	if rec != nil && !rec.Deleted {
		diff := divergentFields(local, rec.Data)
		if len(diff) == 0 {
			return nil, ErrAlreadyApplied
		}
		reason := fmt.Sprintf("remote %s %s already exists with different values for %s", ev.Entity, ev.EntityID, strings.Join(diff, ", "))
		out = append(out, d.record(ev, model.ConflictCreateCreate, diff, reason, local, rec))
		seen[rec.ID] = true
	}

	if ev.MetaBool(model.MetaSkipDuplicateCheck) {
		return out, nil
	}

	matches, err := findDuplicates(ctx, d.remote, d.finders, ev.Entity, ev.EntityID, local)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if seen[m.rec.ID] {
			continue
		}
		rec := m.rec
		parts := make([]string, 0, len(m.fields))
		for _, f := range m.fields {
			parts = append(parts, fmt.Sprintf("%s %q", f, fmt.Sprint(local[f])))
		}
		reason := fmt.Sprintf("remote %s %s has the same %s", ev.Entity, rec.ID, strings.Join(parts, " and "))
		out = append(out, d.record(ev, model.ConflictCreateCreate, m.fields, reason, local, &rec))
	}
	return out, nil
}

// describeFields renders "price: 10 → 12 locally, 10 → 15 remotely"
func describeFields(fields []string, original, local, remote map[string]any) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %v → %v locally, %v → %v remotely", f, original[f], local[f], original[f], remote[f]))
	}
	return "changed on both sides: " + strings.Join(parts, "; ")
}
