// Package retention purges closed history from the local event store.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackchouchani/inventoryApp-sub001/internal/store"
)

// Janitor deletes resolved conflicts and synced events older than MaxAge.
// Unresolved conflicts and failed events are never touched.
type Janitor struct {
	store    store.Store
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// Report counts what one sweep removed
type Report struct {
	Conflicts int
	Events    int
}

// New creates a janitor. A non-positive maxAge disables purging.
func New(st store.Store, maxAge, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		store:    st,
		maxAge:   maxAge,
		interval: interval,
		log:      logger.With().Str("component", "retention").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one purge
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	if j.maxAge <= 0 {
		return Report{}, nil
	}
	cutoff := j.now().Add(-j.maxAge)

	var r Report
	var err error
	if r.Conflicts, err = j.store.PurgeResolvedConflicts(ctx, cutoff); err != nil {
		return r, err
	}
	if r.Events, err = j.store.PurgeSyncedEvents(ctx, cutoff); err != nil {
		return r, err
	}

	if r.Conflicts > 0 || r.Events > 0 {
		j.log.Info().
			Int("conflicts", r.Conflicts).
			Int("events", r.Events).
			Time("cutoff", cutoff).
			Msg("retention sweep purged history")
	}
	return r, nil
}

// Run sweeps once immediately, then on every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (j *Janitor) Run(ctx context.Context) {
	if j.maxAge <= 0 {
		j.log.Info().Msg("retention disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.log.Error().Err(err).Msg("retention sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
