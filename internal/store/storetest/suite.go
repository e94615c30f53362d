// Package storetest is a compliance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store"
)

// Run exercises the store contract. makeStore must return a clean, isolated store.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("AppendAssignsIdentity", func(t *testing.T) { testAppend(t, makeStore(t)) })
	t.Run("PendingOrder", func(t *testing.T) { testPendingOrder(t, makeStore(t)) })
	t.Run("ClaimPerEntity", func(t *testing.T) { testClaim(t, makeStore(t)) })
	t.Run("UpdateStatusMergesMetadata", func(t *testing.T) { testUpdateStatus(t, makeStore(t)) })
	t.Run("MarkConflictAtomic", func(t *testing.T) { testMarkConflict(t, makeStore(t)) })
	t.Run("ResolveOnce", func(t *testing.T) { testResolveOnce(t, makeStore(t)) })
	t.Run("ApplyResolutionAtomic", func(t *testing.T) { testApplyResolution(t, makeStore(t)) })
	t.Run("RecoverInterrupted", func(t *testing.T) { testRecover(t, makeStore(t)) })
	t.Run("ImportIdempotent", func(t *testing.T) { testImport(t, makeStore(t)) })
	t.Run("DecisionCache", func(t *testing.T) { testDecisions(t, makeStore(t)) })
	t.Run("EntityStatus", func(t *testing.T) { testEntityStatus(t, makeStore(t)) })
	t.Run("Retention", func(t *testing.T) { testRetention(t, makeStore(t)) })
	t.Run("ListEventsFilter", func(t *testing.T) { testListEvents(t, makeStore(t)) })
}

func update(entityID string, orig, data map[string]any) *model.OfflineEvent {
	return &model.OfflineEvent{
		Type:         model.EventUpdate,
		Entity:       model.EntityItem,
		EntityID:     entityID,
		Data:         data,
		OriginalData: orig,
	}
}

func testAppend(t *testing.T, s store.Store) {
	ctx := context.Background()

	ev, err := s.Append(ctx, update("42", map[string]any{"price": 10}, map[string]any{"price": 12}))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Positive(t, ev.Seq)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, model.StatusPending, ev.Status)

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Seq, got.Seq)
	assert.Equal(t, model.EventUpdate, got.Type)
	assert.EqualValues(t, 12, got.Data["price"])
	assert.EqualValues(t, 10, got.OriginalData["price"])
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func testPendingOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	// timestamps deliberately out of order: creation sequence wins
	base := time.Now().UTC()
	var ids []string
	for i, off := range []time.Duration{time.Hour, 0, -time.Hour} {
		ev := update("order", map[string]any{"n": i}, map[string]any{"n": i + 1})
		ev.Timestamp = base.Add(off)
		out, err := s.Append(ctx, ev)
		require.NoError(t, err)
		ids = append(ids, out.ID)
	}

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, ev := range pending {
		assert.Equal(t, ids[i], ev.ID)
	}
}

func testClaim(t *testing.T, s store.Store) {
	ctx := context.Background()

	a, err := s.Append(ctx, update("7", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)
	b, err := s.Append(ctx, update("7", map[string]any{"n": 2}, map[string]any{"n": 3}))
	require.NoError(t, err)
	other, err := s.Append(ctx, update("8", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)

	ok, err := s.ClaimForSync(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimForSync(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second event for the same entity must not sync concurrently")

	ok, err = s.ClaimForSync(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, ok, "other entities are independent")

	ok, err = s.ClaimForSync(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok, "already syncing")

	require.NoError(t, s.UpdateStatus(ctx, a.ID, model.StatusSynced, nil, ""))
	ok, err = s.ClaimForSync(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testUpdateStatus(t *testing.T, s store.Store) {
	ctx := context.Background()

	ev, err := s.Append(ctx, update("9", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)

	ok, err := s.ClaimForSync(ctx, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.UpdateStatus(ctx, ev.ID, model.StatusPending, map[string]any{"a": "1"}, "timeout"))
	require.NoError(t, s.UpdateStatus(ctx, ev.ID, model.StatusPending, map[string]any{"b": "2"}, "timeout"))

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts, "only the syncing->pending transition counts as an attempt")
	assert.Equal(t, "timeout", got.LastError)
	assert.Equal(t, "1", got.Metadata["a"])
	assert.Equal(t, "2", got.Metadata["b"])

	err = s.UpdateStatus(ctx, "missing", model.StatusSynced, nil, "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func testMarkConflict(t *testing.T, s store.Store) {
	ctx := context.Background()

	ev, err := s.Append(ctx, update("42", map[string]any{"price": 10}, map[string]any{"price": 12}))
	require.NoError(t, err)

	recs := []model.ConflictRecord{{
		Type:       model.ConflictUpdateUpdate,
		Entity:     model.EntityItem,
		EntityID:   "42",
		Fields:     []string{"price"},
		Reason:     "price changed on both sides",
		LocalData:  map[string]any{"price": 12},
		ServerData: map[string]any{"price": 15},
	}}
	require.NoError(t, s.MarkConflict(ctx, ev.ID, "price changed on both sides", recs))
	require.NotEmpty(t, recs[0].ID, "ids are assigned in place")

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConflict, got.Status)
	assert.Equal(t, "price changed on both sides", got.Metadata[model.MetaReason])

	open, err := s.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, ev.ID, open[0].EventID)
	assert.Equal(t, []string{"price"}, open[0].Fields)
	assert.EqualValues(t, 15, open[0].ServerData["price"])

	// unknown event: nothing persisted
	err = s.MarkConflict(ctx, "missing", "x", []model.ConflictRecord{{Type: model.ConflictUpdateUpdate, Entity: model.EntityItem, EntityID: "1"}})
	require.Error(t, err)
	open, err = s.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func testResolveOnce(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := &model.ConflictRecord{Type: model.ConflictUpdateUpdate, Entity: model.EntityItem, EntityID: "42", EventID: "e1"}
	require.NoError(t, s.PutConflict(ctx, c))

	first, err := s.MarkResolved(ctx, c.ID, model.ResolveLocal, map[string]any{"price": 12}, "alice")
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedAt)

	_, err = s.MarkResolved(ctx, c.ID, model.ResolveServer, map[string]any{"price": 15}, "bob")
	require.Error(t, err)
	assert.True(t, model.IsAlreadyResolved(err))

	got, err := s.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolveLocal, got.Resolution)
	assert.Equal(t, "alice", got.ResolvedBy)
	assert.EqualValues(t, 12, got.ResolvedData["price"])
	assert.True(t, first.ResolvedAt.Equal(*got.ResolvedAt))

	_, err = s.MarkResolved(ctx, "missing", model.ResolveLocal, nil, "")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	byEntity, err := s.FindConflictsByEntity(ctx, model.EntityItem, "42")
	require.NoError(t, err)
	assert.Len(t, byEntity, 1)

	open, err := s.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func testRecover(t *testing.T, s store.Store) {
	ctx := context.Background()

	ev, err := s.Append(ctx, update("5", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)
	ok, err := s.ClaimForSync(ctx, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ev.ID, pending[0].ID)
}

func testImport(t *testing.T, s store.Store) {
	ctx := context.Background()

	evs := []model.OfflineEvent{
		{ID: "imp-1", Type: model.EventCreate, Entity: model.EntityCategory, EntityID: "c1", Data: map[string]any{"name": "Tools"}, Status: model.StatusSyncing},
		{ID: "imp-2", Type: model.EventDelete, Entity: model.EntityLocation, EntityID: "l1", OriginalData: map[string]any{"name": "Garage"}},
	}
	n, err := s.ImportEvents(ctx, evs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ImportEvents(ctx, evs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.Get(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func testDecisions(t *testing.T, s store.Store) {
	ctx := context.Background()

	d, err := s.GetDecision(ctx, model.EntityContainer, "3")
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, s.PutDecision(ctx, model.Decision{Entity: model.EntityContainer, EntityID: "3", Choice: model.ResolveServer, ConflictID: "c1"}))
	require.NoError(t, s.PutDecision(ctx, model.Decision{Entity: model.EntityContainer, EntityID: "3", Choice: model.ResolveLocal, ConflictID: "c2"}))

	d, err = s.GetDecision(ctx, model.EntityContainer, "3")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.ResolveLocal, d.Choice)
	assert.Equal(t, "c2", d.ConflictID)
	assert.False(t, d.DecidedAt.IsZero())
}

func testEntityStatus(t *testing.T, s store.Store) {
	ctx := context.Background()

	st, err := s.EntityStatus(ctx, model.EntityItem, "none")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSynced, st.Status)

	ev, err := s.Append(ctx, update("11", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)
	st, err = s.EntityStatus(ctx, model.EntityItem, "11")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, st.Status)
	assert.Equal(t, 1, st.Pending)

	ok, err := s.ClaimForSync(ctx, ev.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.UpdateStatus(ctx, ev.ID, model.StatusFailed, nil, "422 bad price"))

	st, err = s.EntityStatus(ctx, model.EntityItem, "11")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, st.Status)
	assert.Equal(t, "422 bad price", st.LastError)
}

func testRetention(t *testing.T, s store.Store) {
	ctx := context.Background()

	synced, err := s.Append(ctx, update("r1", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, synced.ID, model.StatusSynced, nil, ""))
	failed, err := s.Append(ctx, update("r2", map[string]any{"n": 1}, map[string]any{"n": 2}))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, failed.ID, model.StatusFailed, nil, "rejected"))

	open := &model.ConflictRecord{Type: model.ConflictUpdateUpdate, Entity: model.EntityItem, EntityID: "r3", EventID: "x"}
	closed := &model.ConflictRecord{Type: model.ConflictUpdateUpdate, Entity: model.EntityItem, EntityID: "r4", EventID: "y"}
	require.NoError(t, s.PutConflict(ctx, open))
	require.NoError(t, s.PutConflict(ctx, closed))
	_, err = s.MarkResolved(ctx, closed.ID, model.ResolveServer, nil, "")
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	n, err := s.PurgeSyncedEvents(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.PurgeResolvedConflicts(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, failed.ID)
	assert.NoError(t, err, "failed events are never purged")
	_, err = s.GetConflict(ctx, open.ID)
	assert.NoError(t, err, "unresolved conflicts are never purged")
}

func testListEvents(t *testing.T, s store.Store) {
	ctx := context.Background()

	var last *model.OfflineEvent
	for i := 0; i < 5; i++ {
		ev, err := s.Append(ctx, update("page", map[string]any{"n": i}, map[string]any{"n": i + 1}))
		require.NoError(t, err)
		last = ev
	}
	_, err := s.Append(ctx, &model.OfflineEvent{Type: model.EventCreate, Entity: model.EntityLocation, EntityID: "l9", Data: map[string]any{"name": "Attic"}})
	require.NoError(t, err)

	page, err := s.ListEvents(ctx, store.EventFilter{Entity: model.EntityItem, EntityID: "page", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := s.ListEvents(ctx, store.EventFilter{Entity: model.EntityItem, AfterSeq: page[1].Seq})
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, last.ID, rest[2].ID)

	locs, err := s.ListEvents(ctx, store.EventFilter{Entity: model.EntityLocation, Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, locs, 1)

	require.NoError(t, s.DiscardEvent(ctx, last.ID))
	assert.True(t, errors.Is(s.DiscardEvent(ctx, last.ID), model.ErrNotFound))
}

func testApplyResolution(t *testing.T, s store.Store) {
	ctx := context.Background()

	ev, err := s.Append(ctx, &model.OfflineEvent{
		Type: model.EventCreate, Entity: model.EntityItem, EntityID: "new-1",
		Data: map[string]any{"name": "Lamp", "qrCode": "ART-1"},
	})
	require.NoError(t, err)

	records := []model.ConflictRecord{
		{Type: model.ConflictCreateCreate, Entity: model.EntityItem, EntityID: "new-1", ServerData: map[string]any{"id": "7"}},
		{Type: model.ConflictCreateCreate, Entity: model.EntityItem, EntityID: "new-1", ServerData: map[string]any{"id": "9"}},
	}
	require.NoError(t, s.MarkConflict(ctx, ev.ID, "duplicates", records))

	wb := &model.OfflineEvent{
		Type: model.EventUpdate, Entity: model.EntityItem, EntityID: "7",
		Data:         map[string]any{"name": "Lamp (merged)"},
		OriginalData: map[string]any{"id": "7"},
	}
	c, written, err := s.ApplyResolution(ctx, store.ResolutionCommit{
		ConflictID: records[0].ID, Resolution: model.ResolveMerge,
		Data: wb.Data, By: "alice", WriteBack: wb,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResolveMerge, c.Resolution)
	require.NotNil(t, written)
	assert.Equal(t, model.StatusPending, written.Status)
	assert.Greater(t, written.Seq, ev.Seq)

	_, err = s.Get(ctx, ev.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "owning event is discarded")

	sibling, err := s.GetConflict(ctx, records[1].ID)
	require.NoError(t, err)
	assert.True(t, sibling.IsResolved(), "sibling conflict closes with the event")
	assert.Equal(t, model.ResolveMerge, sibling.Resolution)
	assert.Equal(t, "alice", sibling.ResolvedBy)
	assert.Equal(t, "Lamp (merged)", sibling.ResolvedData["name"], "sibling records what was applied")

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, written.ID, pending[0].ID)

	// a second commit changes nothing
	_, _, err = s.ApplyResolution(ctx, store.ResolutionCommit{
		ConflictID: records[0].ID, Resolution: model.ResolveLocal, By: "bob",
		WriteBack: &model.OfflineEvent{Type: model.EventCreate, Entity: model.EntityItem, EntityID: "new-1", Data: map[string]any{"name": "x"}},
	})
	assert.True(t, model.IsAlreadyResolved(err))
	pending, err = s.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, _, err = s.ApplyResolution(ctx, store.ResolutionCommit{ConflictID: "missing", Resolution: model.ResolveServer})
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
