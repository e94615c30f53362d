// Package syncmgr drains the offline event queue against the remote store:
// per-entity ordering, conflict detection before every apply, retry of
// transient failures and the resolution decision cache.
package syncmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jackchouchani/inventoryApp-sub001/internal/conflict"
	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// Connectivity reports whether the remote store is reachable and signals
// reconnection edges.
type Connectivity interface {
	IsOnline() bool
	Online() <-chan struct{}
}

// Options tunes the manager
type Options struct {
	Concurrency int           // entity groups synced in parallel
	Interval    time.Duration // periodic pass in Run; 0 disables the ticker
	Retry       RetryPolicy
	// AfterPass runs after every completed pass in Run
	AfterPass func(ctx context.Context, res *Result)
}

// Result summarises one pass
type Result struct {
	Skipped   bool          `json:"skipped"`
	Reason    string        `json:"reason,omitempty"`
	Processed int           `json:"processed"`
	Synced    int           `json:"synced"`
	Conflicts int           `json:"conflicts"`
	Failed    int           `json:"failed"`
	Requeued  int           `json:"requeued"`
	Blocked   int           `json:"blocked"`
	Duration  time.Duration `json:"duration"`
}

func (r *Result) add(o outcome) {
	r.Processed++
	switch o {
	case outcomeSynced:
		r.Synced++
	case outcomeConflict:
		r.Conflicts++
	case outcomeFailed:
		r.Failed++
	case outcomeRequeued:
		r.Requeued++
	}
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeConflict
	outcomeFailed
	outcomeRequeued
	outcomeNotClaimed
)

func (o outcome) String() string {
	switch o {
	case outcomeSynced:
		return "synced"
	case outcomeConflict:
		return "conflict"
	case outcomeFailed:
		return "failed"
	case outcomeRequeued:
		return "requeued"
	default:
		return "not_claimed"
	}
}

// Manager is the Sync Manager
type Manager struct {
	store    store.Store
	remote   remote.Store
	detector *conflict.Detector
	net      Connectivity
	pub      notify.Publisher
	opts     Options
	log      zerolog.Logger

	running atomic.Bool
	trigger chan struct{}
}

// New creates a manager. net and pub may be nil; without net the remote is
// assumed reachable.
func New(st store.Store, rs remote.Store, det *conflict.Detector, net Connectivity, pub notify.Publisher, opts Options, logger zerolog.Logger) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if pub == nil {
		pub = notify.Discard{}
	}
	return &Manager{
		store:    st,
		remote:   rs,
		detector: det,
		net:      net,
		pub:      pub,
		opts:     opts,
		log:      logger.With().Str("component", "syncmgr").Logger(),
		trigger:  make(chan struct{}, 1),
	}
}

// RecordDecision writes the decision cache. It is the only writer.
func (m *Manager) RecordDecision(ctx context.Context, d model.Decision) error {
	if d.Choice != model.ResolveLocal && d.Choice != model.ResolveServer {
		return fmt.Errorf("%w: only local and server choices are cached, got %q", model.ErrInvalidResolution, d.Choice)
	}
	if err := m.store.PutDecision(ctx, d); err != nil {
		return err
	}
	decisionsTotal.WithLabelValues(string(d.Choice)).Inc()
	return nil
}

// RetryFailed moves failed events back to pending. An empty id retries
// every failed event. It returns the number moved.
func (m *Manager) RetryFailed(ctx context.Context, id string) (int, error) {
	var evs []model.OfflineEvent
	if id != "" {
		ev, err := m.store.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if ev.Status != model.StatusFailed {
			return 0, fmt.Errorf("%w: event %s is %s, not failed", model.ErrInvalidEvent, id, ev.Status)
		}
		evs = []model.OfflineEvent{*ev}
	} else {
		var err error
		if evs, err = m.store.ListEvents(ctx, store.EventFilter{Status: model.StatusFailed}); err != nil {
			return 0, err
		}
	}

	for _, ev := range evs {
		if err := m.store.UpdateStatus(ctx, ev.ID, model.StatusPending, map[string]any{"retriedAt": time.Now().UTC().Format(time.RFC3339)}, ev.LastError); err != nil {
			return 0, err
		}
	}
	if len(evs) > 0 {
		m.log.Info().Int("events", len(evs)).Msg("failed events requeued")
		m.Trigger()
	}
	return len(evs), nil
}

// Trigger requests a pass from Run without blocking
func (m *Manager) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether a pass is in progress
func (m *Manager) Running() bool { return m.running.Load() }

// Run recovers interrupted events, then syncs on every reconnection edge,
// trigger and tick until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	n, err := m.store.RecoverInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.log.Warn().Int("events", n).Msg("recovered events interrupted mid-sync")
	}

	var online <-chan struct{}
	if m.net != nil {
		online = m.net.Online()
	}
	var tick <-chan time.Time
	if m.opts.Interval > 0 {
		t := time.NewTicker(m.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	m.Trigger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-online:
			m.log.Info().Msg("connectivity restored, syncing")
		case <-m.trigger:
		case <-tick:
		}

		res, err := m.SyncPendingChanges(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// storage failures stop the loop; the process must not keep
			// acknowledging remote writes it cannot record
			m.log.Error().Err(err).Msg("sync pass aborted")
			return err
		}
		if !res.Skipped && m.opts.AfterPass != nil {
			m.opts.AfterPass(ctx, res)
		}
	}
}

// SyncPendingChanges runs one pass over the pending queue. Concurrent calls
// and calls while offline return a skipped result. Only storage failures
// are returned as errors.
func (m *Manager) SyncPendingChanges(ctx context.Context) (*Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return &Result{Skipped: true, Reason: "sync already in progress"}, nil
	}
	defer m.running.Store(false)

	if m.net != nil && !m.net.IsOnline() {
		return &Result{Skipped: true, Reason: "offline"}, nil
	}

	start := time.Now()
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	queueDepth.Set(float64(len(pending)))

	res := &Result{}
	if len(pending) == 0 {
		return res, nil
	}

	blockers, err := m.blockers(ctx)
	if err != nil {
		return nil, err
	}
	groups := groupByEntity(pending)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			return m.syncGroup(gctx, grp, blockers[grp[0].Key()], func(o outcome, blocked int) {
				mu.Lock()
				defer mu.Unlock()
				if o != outcomeNotClaimed {
					res.add(o)
				}
				res.Blocked += blocked
			})
		})
	}
	err = g.Wait()

	res.Duration = time.Since(start)
	passDuration.Observe(res.Duration.Seconds())
	if err != nil {
		return res, err
	}

	m.log.Info().
		Int("processed", res.Processed).
		Int("synced", res.Synced).
		Int("conflicts", res.Conflicts).
		Int("failed", res.Failed).
		Int("requeued", res.Requeued).
		Int("blocked", res.Blocked).
		Dur("duration", res.Duration).
		Msg("sync pass completed")
	m.pub.Publish(notify.Message{Kind: notify.KindSyncPass, Detail: map[string]any{
		"processed": res.Processed, "synced": res.Synced, "conflicts": res.Conflicts,
		"failed": res.Failed, "requeued": res.Requeued, "blocked": res.Blocked,
	}})
	return res, nil
}

// blockers returns, per entity, the lowest seq of an event awaiting user
// action (conflict or failed). Later events for that entity must wait.
func (m *Manager) blockers(ctx context.Context) (map[model.EntityKey]int64, error) {
	out := make(map[model.EntityKey]int64)
	for _, st := range []model.EventStatus{model.StatusConflict, model.StatusFailed} {
		evs, err := m.store.ListEvents(ctx, store.EventFilter{Status: st})
		if err != nil {
			return nil, err
		}
		for _, ev := range evs {
			k := ev.Key()
			if cur, ok := out[k]; !ok || ev.Seq < cur {
				out[k] = ev.Seq
			}
		}
	}
	return out, nil
}

// groupByEntity splits events (already in seq order) into per-entity runs,
// ordered by each run's first event.
func groupByEntity(evs []model.OfflineEvent) [][]model.OfflineEvent {
	index := make(map[model.EntityKey]int)
	var groups [][]model.OfflineEvent
	for _, ev := range evs {
		k := ev.Key()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ev)
	}
	for _, grp := range groups {
		sort.SliceStable(grp, func(a, b int) bool { return grp[a].Seq < grp[b].Seq })
	}
	return groups
}

// syncGroup applies one entity's events strictly in order, stopping at the
// first event that does not reach synced.
func (m *Manager) syncGroup(ctx context.Context, grp []model.OfflineEvent, blockSeq int64, report func(outcome, int)) error {
	for i := range grp {
		ev := &grp[i]
		if blockSeq > 0 && blockSeq < ev.Seq {
			m.log.Debug().Str("entity", ev.Key().String()).Int("waiting", len(grp)-i).Msg("entity blocked by unresolved event")
			report(outcomeNotClaimed, len(grp)-i)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		o, err := m.processEvent(ctx, ev)
		if err != nil {
			return err
		}
		report(o, 0)
		if o != outcomeSynced {
			return nil
		}
	}
	return nil
}

// processEvent claims, checks and applies one event
func (m *Manager) processEvent(ctx context.Context, ev *model.OfflineEvent) (outcome, error) {
	claimed, err := m.store.ClaimForSync(ctx, ev.ID)
	if err != nil {
		return 0, err
	}
	if !claimed {
		return outcomeNotClaimed, nil
	}

	logger := m.log.With().
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("entity", string(ev.Entity)).
		Str("entity_id", ev.EntityID).
		Logger()

	var conflicts []model.ConflictRecord
	applyErr := m.opts.Retry.Do(ctx, func() error {
		cs, err := m.detector.DetectEventConflicts(ctx, ev)
		if errors.Is(err, conflict.ErrAlreadyApplied) {
			logger.Info().Msg("create already present remotely, marking synced")
			return nil
		}
		if err != nil {
			return err
		}
		if len(cs) > 0 {
			conflicts = cs
			return nil
		}
		return m.apply(ctx, ev)
	})

	// status writes must land even when the pass is being cancelled
	wctx := context.WithoutCancel(ctx)

	var o outcome
	switch {
	case applyErr == nil && len(conflicts) > 0:
		o = outcomeConflict
		if err := m.store.MarkConflict(wctx, ev.ID, conflicts[0].Reason, conflicts); err != nil {
			return 0, err
		}
		for _, c := range conflicts {
			conflictsTotal.WithLabelValues(string(c.Type)).Inc()
			m.pub.Publish(notify.Message{Kind: notify.KindConflictDetected, Entity: c.Entity, EntityID: c.EntityID, EventID: ev.ID, ConflictID: c.ID})
		}
		logger.Info().Int("conflicts", len(conflicts)).Str("reason", conflicts[0].Reason).Msg("event held for resolution")

	case applyErr == nil:
		o = outcomeSynced
		if err := m.store.UpdateStatus(wctx, ev.ID, model.StatusSynced, nil, ""); err != nil {
			return 0, err
		}
		logger.Debug().Msg("event synced")

	case model.IsTransient(applyErr) || errors.Is(applyErr, context.Canceled) || errors.Is(applyErr, context.DeadlineExceeded):
		o = outcomeRequeued
		if err := m.store.UpdateStatus(wctx, ev.ID, model.StatusPending, map[string]any{model.MetaLastError: applyErr.Error()}, applyErr.Error()); err != nil {
			return 0, err
		}
		logger.Warn().Err(applyErr).Msg("transient failure, event requeued")

	default:
		var se *model.StorageError
		if errors.As(applyErr, &se) {
			return 0, applyErr
		}
		o = outcomeFailed
		if err := m.store.UpdateStatus(wctx, ev.ID, model.StatusFailed, map[string]any{model.MetaLastError: applyErr.Error()}, applyErr.Error()); err != nil {
			return 0, err
		}
		logger.Error().Err(applyErr).Msg("event rejected by remote")
	}

	eventsTotal.WithLabelValues(o.String()).Inc()
	status := map[outcome]model.EventStatus{
		outcomeSynced: model.StatusSynced, outcomeConflict: model.StatusConflict,
		outcomeFailed: model.StatusFailed, outcomeRequeued: model.StatusPending,
	}[o]
	m.pub.Publish(notify.Message{Kind: notify.KindEventStatus, Entity: ev.Entity, EntityID: ev.EntityID, EventID: ev.ID, Status: status})
	return o, nil
}

// apply performs the remote write for ev
func (m *Manager) apply(ctx context.Context, ev *model.OfflineEvent) error {
	data := syncx.Canonicalize(ev.Data)
	switch ev.Type {
	case model.EventCreate:
		payload := make(map[string]any, len(data)+1)
		for k, v := range data {
			if syncx.IsBookkeeping(k) {
				continue
			}
			payload[k] = v
		}
		payload["id"] = ev.EntityID
		_, err := m.remote.Insert(ctx, ev.Entity, payload)
		return err
	case model.EventUpdate, model.EventMove:
		payload := make(map[string]any, len(data))
		for k, v := range data {
			if syncx.IsBookkeeping(k) {
				continue
			}
			payload[k] = v
		}
		_, err := m.remote.Update(ctx, ev.Entity, ev.EntityID, payload)
		return err
	case model.EventDelete:
		return m.remote.Delete(ctx, ev.Entity, ev.EntityID)
	default:
		return fmt.Errorf("%w: unknown type %q", model.ErrInvalidEvent, ev.Type)
	}
}
