package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (f *fakeProber) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProber) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func drained(ch <-chan struct{}) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

func TestReportIsEdgeTriggered(t *testing.T) {
	m := New(nil, time.Second, zerolog.Nop())

	if m.IsOnline() {
		t.Fatal("monitor must start offline")
	}

	m.Report(true)
	m.Report(true)
	if got := drained(m.Online()); got != 1 {
		t.Errorf("edges after two online reports = %d, want 1", got)
	}

	m.Report(false)
	if got := drained(m.Online()); got != 0 {
		t.Errorf("online->offline must not emit, got %d", got)
	}

	m.Report(true)
	if got := drained(m.Online()); got != 1 {
		t.Errorf("reconnect should emit once, got %d", got)
	}
}

func TestEdgesCoalesce(t *testing.T) {
	m := New(nil, time.Second, zerolog.Nop())

	for i := 0; i < 5; i++ {
		m.Report(true)
		m.Report(false)
	}
	if got := drained(m.Online()); got != 1 {
		t.Errorf("unreceived edges should coalesce to 1, got %d", got)
	}
}

func TestOnChange(t *testing.T) {
	m := New(nil, time.Second, zerolog.Nop())

	var seen []bool
	m.OnChange(func(online bool) { seen = append(seen, online) })

	m.Report(true)
	m.Report(true)
	m.Report(false)

	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("transitions = %v, want [true false]", seen)
	}
}

func TestProbe(t *testing.T) {
	p := &fakeProber{err: errors.New("down")}
	m := New(p, 10*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	if m.Probe(ctx) {
		t.Error("probe should fail")
	}
	p.set(nil)
	if !m.Probe(ctx) {
		t.Error("probe should succeed")
	}
	if got := drained(m.Online()); got != 1 {
		t.Errorf("edges = %d, want 1", got)
	}
}

func TestRunDetectsReconnect(t *testing.T) {
	p := &fakeProber{err: errors.New("down")}
	m := New(p, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	p.set(nil)
	select {
	case <-m.Online():
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect edge observed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
