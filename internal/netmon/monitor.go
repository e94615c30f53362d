// Package netmon tracks remote reachability and signals reconnection.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stocksync",
	Subsystem: "netmon",
	Name:      "online",
	Help:      "1 when the remote store is reachable.",
})

// Prober checks reachability of the remote store
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor is edge-triggered: Online() fires once per offline->online
// transition. It starts offline so the first successful probe (or report)
// drains whatever was queued before the process started.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	online    bool
	listeners []func(online bool)

	edge chan struct{}
}

// New creates a monitor polling p every interval. p may be nil when the
// platform pushes connectivity changes through Report.
func New(p Prober, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Monitor{
		prober:   p,
		interval: interval,
		timeout:  timeout,
		log:      log.With().Str("component", "netmon").Logger(),
		edge:     make(chan struct{}, 1),
	}
}

// Online delivers one value per offline->online edge. Edges coalesce while
// nobody is receiving; senders never block.
func (m *Monitor) Online() <-chan struct{} { return m.edge }

// IsOnline returns the last known state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers fn for every state transition (both directions)
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Report records a connectivity observation from the platform or a probe
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	prev := m.online
	m.online = online
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	if prev == online {
		return
	}

	if online {
		onlineGauge.Set(1)
		m.log.Info().Msg("remote reachable")
		select {
		case m.edge <- struct{}{}:
		default:
		}
	} else {
		onlineGauge.Set(0)
		m.log.Warn().Msg("remote unreachable")
	}

	for _, fn := range listeners {
		fn(online)
	}
}

// Probe pings the remote once and reports the result
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Ping(pctx)
	if err != nil && ctx.Err() != nil {
		// shutting down; not an observation
		return m.IsOnline()
	}
	if err != nil {
		m.log.Debug().Err(err).Msg("probe failed")
	}
	m.Report(err == nil)
	return err == nil
}

// Run polls until ctx is cancelled. Without a prober it only waits.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
