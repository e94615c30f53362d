// Package offlineservice is the UI-facing facade of the offline engine:
// record mutations, inspect the queue, and resolve conflicts.
package offlineservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/codec"
	"github.com/jackchouchani/inventoryApp-sub001/internal/conflict"
	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncmgr"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// Online reports remote reachability
type Online interface {
	IsOnline() bool
}

// Service encapsulates the engine operations exposed to the UI
type Service struct {
	Store    store.Store
	Resolver *conflict.Resolver
	Sync     *syncmgr.Manager
	Net      Online // nil means always online
	Pub      notify.Publisher
}

// NewService creates a Service
func NewService(st store.Store, res *conflict.Resolver, mgr *syncmgr.Manager, net Online, pub notify.Publisher) *Service {
	if pub == nil {
		pub = notify.Discard{}
	}
	return &Service{Store: st, Resolver: res, Sync: mgr, Net: net, Pub: pub}
}

func (s *Service) online() bool {
	return s.Net == nil || s.Net.IsOnline()
}

// EnqueueMutation validates and durably records a local change. When the
// remote is reachable a sync is requested without waiting for it.
func (s *Service) EnqueueMutation(ctx context.Context, req MutationRequest) (*model.OfflineEvent, error) {
	ev := &model.OfflineEvent{
		Type:         req.Type,
		Entity:       req.Entity,
		EntityID:     req.EntityID,
		Data:         syncx.Canonicalize(req.Data),
		OriginalData: syncx.Canonicalize(req.OriginalData),
		Timestamp:    req.Timestamp,
	}
	if ev.Type == model.EventCreate && ev.EntityID == "" {
		ev.EntityID = uuid.NewString()
	}
	if ev.Type == model.EventCreate && ev.Data != nil {
		if id := syncx.IDString(ev.Data["id"]); id != "" && id != ev.EntityID {
			return nil, fmt.Errorf("%w: data.id %q does not match entityId %q", model.ErrInvalidEvent, id, ev.EntityID)
		}
	}

	meta := map[string]any{}
	if req.SnapshotMissing {
		meta[model.MetaSnapshotMissing] = true
	}
	if req.SkipDuplicateCheck {
		meta[model.MetaSkipDuplicateCheck] = true
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}

	stored, err := s.Store.Append(ctx, ev)
	if err != nil {
		log.Error().Err(err).
			Str("entity", string(ev.Entity)).
			Str("entity_id", ev.EntityID).
			Str("type", string(ev.Type)).
			Msg("failed to record offline mutation")
		return nil, err
	}

	log.Debug().
		Str("event_id", stored.ID).
		Int64("seq", stored.Seq).
		Str("entity", string(stored.Entity)).
		Str("entity_id", stored.EntityID).
		Str("type", string(stored.Type)).
		Msg("mutation queued")

	s.Pub.Publish(notify.Message{Kind: notify.KindEventStatus, Entity: stored.Entity, EntityID: stored.EntityID, EventID: stored.ID, Status: stored.Status})
	if s.online() && s.Sync != nil {
		s.Sync.Trigger()
	}
	return stored, nil
}

// GetUnresolvedConflicts lists open conflicts, oldest first, with the
// cached choice for each entity when one exists.
func (s *Service) GetUnresolvedConflicts(ctx context.Context) ([]ConflictView, error) {
	cs, err := s.Store.ListUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ConflictView, 0, len(cs))
	for i := range cs {
		v := ConflictView{ConflictRecord: cs[i]}
		if s.Resolver != nil {
			if choice, ok, err := s.Resolver.Suggest(ctx, &cs[i]); err != nil {
				log.Warn().Err(err).Str("conflict_id", cs[i].ID).Msg("decision cache unreadable")
			} else if ok {
				v.Suggested = choice
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// GetConflict returns one conflict record
func (s *Service) GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error) {
	return s.Store.GetConflict(ctx, id)
}

// ResolveConflict applies a user decision and requests a sync when
// something was written back.
func (s *Service) ResolveConflict(ctx context.Context, id string, resolution model.Resolution, data map[string]any, by string) (*conflict.Outcome, error) {
	out, err := s.Resolver.Resolve(ctx, id, resolution, data, by)
	if err != nil {
		return nil, err
	}
	if out.WriteBack != nil && s.online() && s.Sync != nil {
		s.Sync.Trigger()
	}
	return out, nil
}

// EntityStatus returns the per-entity sync read model
func (s *Service) EntityStatus(ctx context.Context, entity model.Entity, id string) (*model.EntitySyncStatus, error) {
	if !entity.Valid() {
		return nil, fmt.Errorf("%w: unknown entity %q", model.ErrInvalidEvent, entity)
	}
	return s.Store.EntityStatus(ctx, entity, id)
}

// ListEvents pages through the queue in creation order
func (s *Service) ListEvents(ctx context.Context, opts ListOptions) (*EventPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	f := store.EventFilter{Status: opts.Status, Entity: opts.Entity, EntityID: opts.EntityID, Limit: limit + 1}
	if opts.Cursor != "" {
		c, ok := syncx.DecodeCursor(opts.Cursor)
		if !ok {
			return nil, fmt.Errorf("%w: malformed cursor", model.ErrInvalidEvent)
		}
		f.AfterSeq = c.Seq
	}

	evs, err := s.Store.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}

	page := &EventPage{Events: evs}
	if len(evs) > limit {
		page.Events = evs[:limit]
		last := page.Events[limit-1]
		uid, _ := uuid.Parse(last.ID)
		next := syncx.EncodeCursor(syncx.Cursor{Seq: last.Seq, UID: uid})
		page.NextCursor = &next
	}
	if page.Events == nil {
		page.Events = []model.OfflineEvent{}
	}
	return page, nil
}

// RetryFailed requeues one failed event, or all of them when id is empty
func (s *Service) RetryFailed(ctx context.Context, id string) (int, error) {
	return s.Sync.RetryFailed(ctx, id)
}

// SyncNow runs a pass synchronously
func (s *Service) SyncNow(ctx context.Context) (*syncmgr.Result, error) {
	return s.Sync.SyncPendingChanges(ctx)
}

// ExportQueue snapshots unsynced events and open conflicts into a
// compressed blob, for backup or moving the queue to another device.
func (s *Service) ExportQueue(ctx context.Context) ([]byte, error) {
	all, err := s.Store.ListEvents(ctx, store.EventFilter{})
	if err != nil {
		return nil, err
	}
	exp := QueueExport{Version: exportVersion, ExportedAt: time.Now().UTC(), Events: []model.OfflineEvent{}}
	for _, ev := range all {
		if ev.Status != model.StatusSynced {
			exp.Events = append(exp.Events, ev)
		}
	}
	if exp.Conflicts, err = s.Store.ListUnresolved(ctx); err != nil {
		return nil, err
	}

	blob, err := codec.Compress(exp)
	if err != nil {
		return nil, err
	}
	log.Info().Int("events", len(exp.Events)).Int("conflicts", len(exp.Conflicts)).Int("bytes", len(blob)).Msg("queue exported")
	return blob, nil
}

// ImportQueue loads a blob produced by ExportQueue. Events and conflicts
// already present are skipped.
func (s *Service) ImportQueue(ctx context.Context, blob []byte) (*ImportReport, error) {
	var exp QueueExport
	if err := codec.Decompress(blob, &exp); err != nil {
		return nil, err
	}
	if exp.Version != exportVersion {
		return nil, &model.CorruptedStateError{What: "queue export", Err: fmt.Errorf("unsupported version %d", exp.Version)}
	}

	n, err := s.Store.ImportEvents(ctx, exp.Events)
	if err != nil {
		return nil, err
	}
	rep := &ImportReport{Events: n}

	for i := range exp.Conflicts {
		c := exp.Conflicts[i]
		_, err := s.Store.GetConflict(ctx, c.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return rep, err
		}
		if err := s.Store.PutConflict(ctx, &c); err != nil {
			return rep, err
		}
		rep.Conflicts++
	}

	log.Info().Int("events", rep.Events).Int("conflicts", rep.Conflicts).Msg("queue imported")
	if rep.Events > 0 && s.online() && s.Sync != nil {
		s.Sync.Trigger()
	}
	return rep, nil
}
