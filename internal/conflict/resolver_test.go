package conflict

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote/remotetest"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store/sqlite"
)

type decisionLog struct {
	mu  sync.Mutex
	got []model.Decision
}

func (d *decisionLog) RecordDecision(_ context.Context, dec model.Decision) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, dec)
	return nil
}

type publishLog struct {
	mu  sync.Mutex
	got []notify.Message
}

func (p *publishLog) Publish(m notify.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, m)
}

func (p *publishLog) kinds() []notify.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notify.Kind
	for _, m := range p.got {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	store     *sqlite.Store
	remote    *remotetest.Store
	detector  *Detector
	resolver  *Resolver
	decisions *decisionLog
	pub       *publishLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rs := remotetest.New()
	f := &fixture{store: st, remote: rs, decisions: &decisionLog{}, pub: &publishLog{}}
	f.detector = NewDetector(rs, zerolog.Nop())
	f.resolver = NewResolver(st, f.decisions, f.pub, zerolog.Nop())
	return f
}

// conflictFor appends ev, detects and records its conflicts
func (f *fixture) conflictFor(t *testing.T, ev *model.OfflineEvent) (*model.OfflineEvent, []model.ConflictRecord) {
	t.Helper()
	ctx := context.Background()

	stored, err := f.store.Append(ctx, ev)
	require.NoError(t, err)
	cs, err := f.detector.DetectEventConflicts(ctx, stored)
	require.NoError(t, err)
	require.NotEmpty(t, cs)
	require.NoError(t, f.store.MarkConflict(ctx, stored.ID, cs[0].Reason, cs))
	return stored, cs
}

func (f *fixture) priceConflict(t *testing.T) (*model.OfflineEvent, model.ConflictRecord) {
	f.remote.Seed(model.EntityItem, map[string]any{"id": "42", "name": "Lamp", "price": 15, "updatedAt": t1.Format(time.RFC3339)})
	ev, cs := f.conflictFor(t, updateEvent("42", map[string]any{"price": 10}, map[string]any{"price": 12}))
	return ev, cs[0]
}

func TestResolveLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev, c := f.priceConflict(t)

	out, err := f.resolver.Resolve(ctx, c.ID, model.ResolveLocal, nil, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ResolveLocal, out.Conflict.Resolution)
	assert.EqualValues(t, 12, out.Conflict.ResolvedData["price"])

	wb := out.WriteBack
	require.NotNil(t, wb)
	assert.Equal(t, model.EventUpdate, wb.Type)
	assert.Equal(t, "42", wb.EntityID)
	assert.EqualValues(t, 12, wb.Data["price"])
	assert.EqualValues(t, 15, wb.OriginalData["price"], "write-back is based on the server state")
	assert.Equal(t, c.ID, wb.Metadata[model.MetaResolvesConflict])
	assert.Equal(t, ev.ID, wb.Metadata[model.MetaSupersedes])

	_, err = f.store.Get(ctx, ev.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "original event is replaced")

	// the write-back applies cleanly against the unchanged remote
	again, err := f.detector.DetectEventConflicts(ctx, wb)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.Len(t, f.decisions.got, 1)
	assert.Equal(t, model.ResolveLocal, f.decisions.got[0].Choice)
	assert.Equal(t, []notify.Kind{notify.KindConflictResolved}, f.pub.kinds())
}

func TestResolveServer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev, c := f.priceConflict(t)

	out, err := f.resolver.Resolve(ctx, c.ID, model.ResolveServer, nil, "alice")
	require.NoError(t, err)
	assert.Nil(t, out.WriteBack)
	assert.EqualValues(t, 15, out.Conflict.ResolvedData["price"])

	_, err = f.store.Get(ctx, ev.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	pending, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Equal(t, []notify.Kind{notify.KindConflictResolved, notify.KindInvalidate}, f.pub.kinds())
	require.Len(t, f.decisions.got, 1)
	assert.Equal(t, model.ResolveServer, f.decisions.got[0].Choice)
	assert.Empty(t, f.remote.CallsFor("update"), "server resolution never writes")
}

func TestResolveMergeAndManual(t *testing.T) {
	ctx := context.Background()

	t.Run("merge requires data", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.priceConflict(t)

		_, err := f.resolver.Resolve(ctx, c.ID, model.ResolveMerge, nil, "alice")
		assert.True(t, errors.Is(err, model.ErrResolutionDataRequired))

		out, err := f.resolver.Resolve(ctx, c.ID, model.ResolveMerge, map[string]any{"price": 13}, "alice")
		require.NoError(t, err)
		require.NotNil(t, out.WriteBack)
		assert.EqualValues(t, 13, out.WriteBack.Data["price"])
		assert.Empty(t, f.decisions.got, "only local/server choices are cached")
	})

	t.Run("manual closes without write-back", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.priceConflict(t)

		out, err := f.resolver.Resolve(ctx, c.ID, model.ResolveManual, map[string]any{"price": 14}, "alice")
		require.NoError(t, err)
		assert.Nil(t, out.WriteBack)
		assert.EqualValues(t, 14, out.Conflict.ResolvedData["price"])
	})

	t.Run("invalid resolution", func(t *testing.T) {
		f := newFixture(t)
		_, c := f.priceConflict(t)
		_, err := f.resolver.Resolve(ctx, c.ID, model.Resolution("both"), nil, "alice")
		assert.True(t, errors.Is(err, model.ErrInvalidResolution))
	})
}

func TestResolveTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, c := f.priceConflict(t)

	_, err := f.resolver.Resolve(ctx, c.ID, model.ResolveLocal, nil, "alice")
	require.NoError(t, err)

	_, err = f.resolver.Resolve(ctx, c.ID, model.ResolveServer, nil, "bob")
	require.Error(t, err)
	assert.True(t, model.IsAlreadyResolved(err))

	pending, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "exactly one write-back")

	_, err = f.resolver.Resolve(ctx, "missing", model.ResolveLocal, nil, "alice")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestResolveDeleteUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("local edit recreates a remotely deleted row", func(t *testing.T) {
		f := newFixture(t)
		_, cs := f.conflictFor(t, updateEvent("42", map[string]any{"name": "Lamp", "price": 10}, map[string]any{"price": 12}))

		out, err := f.resolver.Resolve(ctx, cs[0].ID, model.ResolveLocal, nil, "alice")
		require.NoError(t, err)
		wb := out.WriteBack
		require.NotNil(t, wb)
		assert.Equal(t, model.EventCreate, wb.Type)
		assert.Equal(t, "42", wb.Data["id"])
		assert.Equal(t, "Lamp", wb.Data["name"])
		assert.Equal(t, true, wb.Metadata[model.MetaSkipDuplicateCheck])
	})

	t.Run("local delete wins over remote edit", func(t *testing.T) {
		f := newFixture(t)
		f.remote.Seed(model.EntityItem, map[string]any{"id": "42", "name": "Lamp v2", "updatedAt": t1.Format(time.RFC3339)})
		_, cs := f.conflictFor(t, &model.OfflineEvent{
			Type: model.EventDelete, Entity: model.EntityItem, EntityID: "42",
			OriginalData: map[string]any{"id": "42", "name": "Lamp"}, Timestamp: t0,
		})

		out, err := f.resolver.Resolve(ctx, cs[0].ID, model.ResolveLocal, nil, "alice")
		require.NoError(t, err)
		require.NotNil(t, out.WriteBack)
		assert.Equal(t, model.EventDelete, out.WriteBack.Type)
		assert.Empty(t, out.WriteBack.Data)
		assert.NoError(t, out.WriteBack.Validate())
	})
}

func TestResolveCreateCreate(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, []model.ConflictRecord) {
		f := newFixture(t)
		f.remote.Seed(model.EntityItem, map[string]any{"id": "7", "name": "Lamp", "qrCode": "ART-1"})
		f.remote.Seed(model.EntityItem, map[string]any{"id": "9", "name": "lamp"})
		_, cs := f.conflictFor(t, createEvent(model.EntityItem, "new-1", map[string]any{"name": "Lamp", "qrCode": "ART-1"}))
		require.Len(t, cs, 2)
		return f, cs
	}

	t.Run("merge updates the matched remote row", func(t *testing.T) {
		f, cs := setup(t)

		out, err := f.resolver.Resolve(ctx, cs[0].ID, model.ResolveMerge, map[string]any{"name": "Lamp", "qrCode": "ART-1", "price": 20}, "alice")
		require.NoError(t, err)
		wb := out.WriteBack
		require.NotNil(t, wb)
		assert.Equal(t, model.EventUpdate, wb.Type)
		assert.Equal(t, "7", wb.EntityID)
		assert.Contains(t, f.pub.kinds(), notify.KindEntityMerged)

		sibling, err := f.store.GetConflict(ctx, cs[1].ID)
		require.NoError(t, err)
		assert.True(t, sibling.IsResolved())
		open, err := f.store.ListUnresolved(ctx)
		require.NoError(t, err)
		assert.Empty(t, open)
	})

	t.Run("local creates anyway", func(t *testing.T) {
		f, cs := setup(t)

		out, err := f.resolver.Resolve(ctx, cs[1].ID, model.ResolveLocal, nil, "alice")
		require.NoError(t, err)
		wb := out.WriteBack
		require.NotNil(t, wb)
		assert.Equal(t, model.EventCreate, wb.Type)
		assert.Equal(t, "new-1", wb.EntityID)
		assert.True(t, wb.MetaBool(model.MetaSkipDuplicateCheck))

		got, err := f.detector.DetectEventConflicts(ctx, wb)
		require.NoError(t, err)
		assert.Empty(t, got, "duplicate search is skipped for the write-back")
	})
}

func TestApplyCachedDecisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, c := f.priceConflict(t)

	n, err := f.resolver.ApplyCachedDecisions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, f.store.PutDecision(ctx, model.Decision{
		Entity: model.EntityItem, EntityID: "42", Choice: model.ResolveServer, ConflictID: "earlier",
	}))

	choice, ok, err := f.resolver.Suggest(ctx, &c)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.ResolveServer, choice)

	n, err = f.resolver.ApplyCachedDecisions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResolveServer, got.Resolution)
	assert.Equal(t, "decision-cache", got.ResolvedBy)
}
