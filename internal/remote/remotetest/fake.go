// Package remotetest provides an in-memory remote.Store for engine tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// ErrOffline is the cause wrapped by every call while the fake is offline
var ErrOffline = errors.New("remotetest: network unreachable")

// Call records one adapter invocation
type Call struct {
	Op       string
	Entity   model.Entity
	EntityID string
}

// Store is a thread-safe in-memory remote. Rows are kept in canonical form
// with updatedAt stamped by Now on every write.
type Store struct {
	mu      sync.Mutex
	rows    map[model.Entity]map[string]map[string]any
	calls   []Call
	fail    map[string][]error
	offline bool

	// Now stamps writes; defaults to time.Now
	Now func() time.Time
}

var _ remote.Store = (*Store)(nil)

// New returns an empty online store
func New() *Store {
	return &Store{
		rows: make(map[model.Entity]map[string]map[string]any),
		fail: make(map[string][]error),
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) record(row map[string]any) remote.Record {
	return remote.NewRecord(clone(row))
}

// Seed writes a row directly, as another device would. updatedAt defaults
// to Now when the row does not carry one.
func (s *Store) Seed(entity model.Entity, row map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row = syncx.Canonicalize(row)
	if _, ok := row["updatedAt"]; !ok {
		row["updatedAt"] = s.Now().Format(time.RFC3339Nano)
	}
	id := syncx.IDString(row["id"])
	if s.rows[entity] == nil {
		s.rows[entity] = make(map[string]map[string]any)
	}
	s.rows[entity][id] = row
}

// Row returns a copy of the stored row or nil
func (s *Store) Row(entity model.Entity, id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.rows[entity][id])
}

// Remove hard-deletes a row behind the engine's back
func (s *Store) Remove(entity model.Entity, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[entity], id)
}

// SetOffline makes every call fail with a transient network error
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// FailNext queues err for the next call of op (fetch, insert, update,
// delete, find, ping)
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = append(s.fail[op], err)
}

// Calls returns the recorded invocations
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsFor returns the recorded invocations of one op
func (s *Store) CallsFor(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// enter logs the call and returns an injected failure; callers hold mu
func (s *Store) enter(ctx context.Context, op string, entity model.Entity, id string) error {
	s.calls = append(s.calls, Call{Op: op, Entity: entity, EntityID: id})
	if err := ctx.Err(); err != nil {
		return &model.TransientRemoteError{Op: op, Err: err}
	}
	if s.offline {
		return &model.TransientRemoteError{Op: op, Err: ErrOffline}
	}
	if q := s.fail[op]; len(q) > 0 {
		s.fail[op] = q[1:]
		return q[0]
	}
	if !entity.Valid() && op != "ping" {
		return &model.PermanentRemoteError{Op: op, StatusCode: 404, Message: fmt.Sprintf("unknown table for %q", entity)}
	}
	return nil
}

func (s *Store) FetchByID(ctx context.Context, entity model.Entity, id string) (*remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "fetch", entity, id); err != nil {
		return nil, err
	}
	row, ok := s.rows[entity][id]
	if !ok {
		return nil, nil
	}
	rec := s.record(row)
	return &rec, nil
}

func (s *Store) Insert(ctx context.Context, entity model.Entity, data map[string]any) (*remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := syncx.IDString(data["id"])
	if err := s.enter(ctx, "insert", entity, id); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := s.rows[entity][id]; exists {
		return nil, &model.PermanentRemoteError{Op: "insert", StatusCode: 409, Message: "duplicate key value violates unique constraint"}
	}

	row := clone(data)
	row["id"] = id
	now := s.Now().Format(time.RFC3339Nano)
	row["createdAt"] = now
	row["updatedAt"] = now
	if s.rows[entity] == nil {
		s.rows[entity] = make(map[string]map[string]any)
	}
	s.rows[entity][id] = row
	rec := s.record(row)
	return &rec, nil
}

func (s *Store) Update(ctx context.Context, entity model.Entity, id string, data map[string]any) (*remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "update", entity, id); err != nil {
		return nil, err
	}
	row, ok := s.rows[entity][id]
	if !ok {
		return nil, &model.PermanentRemoteError{Op: "update", StatusCode: 404, Message: fmt.Sprintf("%s %s not found", entity, id)}
	}
	for k, v := range data {
		if k == "id" {
			continue
		}
		row[k] = v
	}
	row["updatedAt"] = s.Now().Format(time.RFC3339Nano)
	rec := s.record(row)
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, entity model.Entity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "delete", entity, id); err != nil {
		return err
	}
	delete(s.rows[entity], id)
	return nil
}

func (s *Store) FindByUniqueKey(ctx context.Context, entity model.Entity, field string, value any) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "find", entity, ""); err != nil {
		return nil, err
	}
	var out []remote.Record
	for _, row := range s.rows[entity] {
		if v, ok := row[field]; ok && syncx.Equal(v, value) {
			out = append(out, s.record(row))
		}
	}
	return out, nil
}

func (s *Store) FindByName(ctx context.Context, entity model.Entity, name string) ([]remote.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "find", entity, ""); err != nil {
		return nil, err
	}
	sc, _ := model.Schema(entity)
	var out []remote.Record
	for _, row := range s.rows[entity] {
		if v, ok := row[sc.NameField].(string); ok && strings.EqualFold(v, name) {
			out = append(out, s.record(row))
		}
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter(ctx, "ping", "", "")
}
