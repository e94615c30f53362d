package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// DecisionRecorder persists the last local/server choice for an entity.
// The sync manager owns the decision cache and implements it.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d model.Decision) error
}

// Outcome reports what a resolution did
type Outcome struct {
	Conflict  *model.ConflictRecord
	WriteBack *model.OfflineEvent // nil when nothing is written back
}

// Resolver applies user decisions to conflict records
type Resolver struct {
	store     store.Store
	decisions DecisionRecorder
	pub       notify.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewResolver creates a resolver. decisions and pub may be nil.
func NewResolver(st store.Store, decisions DecisionRecorder, pub notify.Publisher, logger zerolog.Logger) *Resolver {
	if pub == nil {
		pub = notify.Discard{}
	}
	return &Resolver{
		store:     st,
		decisions: decisions,
		pub:       pub,
		log:       logger.With().Str("component", "conflict-resolver").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Resolve closes conflictID with resolution. local and server take their
// data from the conflict itself; merge and manual require data. local and
// merge enqueue a write-back event; server discards the local change and
// asks the UI to refetch; manual closes the conflict without a remote write.
func (r *Resolver) Resolve(ctx context.Context, conflictID string, resolution model.Resolution, data map[string]any, by string) (*Outcome, error) {
	if !resolution.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidResolution, resolution)
	}
	if resolution.RequiresData() && len(data) == 0 {
		return nil, model.ErrResolutionDataRequired
	}

	c, err := r.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if c.IsResolved() {
		return nil, &model.AlreadyResolvedError{ConflictID: c.ID, Resolution: c.Resolution}
	}

	resolved := data
	switch resolution {
	case model.ResolveLocal:
		resolved = c.LocalData
	case model.ResolveServer:
		resolved = c.ServerData
	}
	resolved = syncx.Canonicalize(resolved)

	var wb *model.OfflineEvent
	if resolution.WritesBack() {
		wb = r.writeBack(c, resolution, resolved)
	}

	closed, written, err := r.store.ApplyResolution(ctx, store.ResolutionCommit{
		ConflictID: c.ID,
		Resolution: resolution,
		Data:       resolved,
		By:         by,
		WriteBack:  wb,
	})
	if err != nil {
		return nil, err
	}

	logEv := r.log.Info().
		Str("conflict_id", closed.ID).
		Str("entity", string(closed.Entity)).
		Str("entity_id", closed.EntityID).
		Str("resolution", string(resolution))
	if written != nil {
		logEv = logEv.Str("writeback_event_id", written.ID).Str("writeback_type", string(written.Type))
	}
	logEv.Msg("conflict resolved")

	if r.decisions != nil && (resolution == model.ResolveLocal || resolution == model.ResolveServer) {
		err := r.decisions.RecordDecision(ctx, model.Decision{
			Entity:     closed.Entity,
			EntityID:   closed.EntityID,
			Choice:     resolution,
			ConflictID: closed.ID,
			DecidedAt:  r.now(),
		})
		if err != nil {
			// the resolution itself is committed; the cache is only a hint
			r.log.Warn().Err(err).Str("conflict_id", closed.ID).Msg("record decision failed")
		}
	}

	r.publish(closed, written)
	return &Outcome{Conflict: closed, WriteBack: written}, nil
}

func (r *Resolver) publish(c *model.ConflictRecord, written *model.OfflineEvent) {
	r.pub.Publish(notify.Message{
		Kind:       notify.KindConflictResolved,
		Entity:     c.Entity,
		EntityID:   c.EntityID,
		EventID:    c.EventID,
		ConflictID: c.ID,
		Detail:     map[string]any{"resolution": string(c.Resolution)},
	})

	switch {
	case c.Resolution == model.ResolveServer:
		r.pub.Publish(notify.Message{Kind: notify.KindInvalidate, Entity: c.Entity, EntityID: c.EntityID, ConflictID: c.ID})
	case written != nil && written.EntityID != c.EntityID:
		// the local entity was folded into an existing remote one
		r.pub.Publish(notify.Message{
			Kind:       notify.KindEntityMerged,
			Entity:     c.Entity,
			EntityID:   c.EntityID,
			ConflictID: c.ID,
			Detail:     map[string]any{"into": written.EntityID},
		})
	}
}

// writeBack builds the event that carries a local or merge decision to the
// remote store. originalData is the server state the user decided against,
// so the next detection only flags changes made after the decision.
func (r *Resolver) writeBack(c *model.ConflictRecord, resolution model.Resolution, data map[string]any) *model.OfflineEvent {
	ev := &model.OfflineEvent{
		Entity:       c.Entity,
		EntityID:     c.EntityID,
		Data:         data,
		OriginalData: c.ServerData,
		Timestamp:    r.now(),
		Metadata: map[string]any{
			model.MetaResolvesConflict: c.ID,
			model.MetaResolution:       string(resolution),
			model.MetaSupersedes:       c.EventID,
		},
	}

	switch c.Type {
	case model.ConflictMoveMove:
		ev.Type = model.EventMove

	case model.ConflictDeleteUpdate:
		switch {
		case c.LocalData == nil && resolution == model.ResolveLocal:
			// local delete wins
			ev.Type = model.EventDelete
			ev.Data = nil
		case c.ServerData == nil:
			// remote delete loses: recreate the entity
			ev.Type = model.EventCreate
			ev.OriginalData = nil
			ev.Data = withID(data, c.EntityID)
			ev.Metadata[model.MetaSkipDuplicateCheck] = true
		default:
			ev.Type = model.EventUpdate
		}

	case model.ConflictCreateCreate:
		serverID := syncx.IDString(c.ServerData["id"])
		switch {
		case serverID == c.EntityID:
			// id collision: the row exists, so local values become an update
			ev.Type = model.EventUpdate
		case resolution == model.ResolveMerge && serverID != "":
			ev.Type = model.EventUpdate
			ev.EntityID = serverID
			ev.Data = withID(data, serverID)
		default:
			ev.Type = model.EventCreate
			ev.OriginalData = nil
			ev.Data = withID(data, c.EntityID)
			ev.Metadata[model.MetaSkipDuplicateCheck] = true
		}

	default:
		ev.Type = model.EventUpdate
	}

	if ev.OriginalData == nil && ev.Type != model.EventCreate {
		ev.Metadata[model.MetaSnapshotMissing] = true
	}
	return ev
}

func withID(data map[string]any, id string) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["id"] = id
	return out
}

// Suggest returns the cached choice for the conflict's entity, if any
func (r *Resolver) Suggest(ctx context.Context, c *model.ConflictRecord) (model.Resolution, bool, error) {
	d, err := r.store.GetDecision(ctx, c.Entity, c.EntityID)
	if err != nil || d == nil {
		return "", false, err
	}
	return d.Choice, true, nil
}

// ApplyCachedDecisions resolves every open conflict whose entity has a
// cached local/server decision. It returns the number resolved.
func (r *Resolver) ApplyCachedDecisions(ctx context.Context) (int, error) {
	open, err := r.store.ListUnresolved(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range open {
		c := &open[i]
		choice, ok, err := r.Suggest(ctx, c)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if _, err := r.Resolve(ctx, c.ID, choice, nil, "decision-cache"); err != nil {
			if model.IsAlreadyResolved(err) {
				// closed as a sibling earlier in this loop
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}
