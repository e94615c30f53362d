// Package sqlite implements store.Store on an embedded SQLite database
// (modernc.org/sqlite, pure Go).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jackchouchani/inventoryApp-sub001/internal/codec"
	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// Store is the SQLite-backed event store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens the database at path and applies migrations
func New(ctx context.Context, path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, &model.StorageError{Op: "open", Err: err}
	}
	return NewWithDB(ctx, db)
}

// NewWithDB wires an existing connection (tests, shared handles)
func NewWithDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, &model.StorageError{Op: "migrate", Err: err}
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB exposes the underlying connection
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *model.StorageError
	var ce *model.CorruptedStateError
	if errors.As(err, &se) || errors.As(err, &ce) || errors.Is(err, model.ErrNotFound) || model.IsAlreadyResolved(err) {
		return err
	}
	return &model.StorageError{Op: op, Err: err}
}

// --- JSON columns ---

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMap(col sql.NullString, what string) (map[string]any, error) {
	if !col.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, &model.CorruptedStateError{What: what, Err: err}
	}
	return m, nil
}

// --- Events ---

const eventColumns = `seq, id, type, entity, entity_id, data, original_data, timestamp_ms, status, metadata, attempts, last_error, updated_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*model.OfflineEvent, error) {
	var (
		ev                  model.OfflineEvent
		typ, entity, status string
		data, orig, meta    sql.NullString
		tsMs, updMs         int64
	)
	if err := r.Scan(&ev.Seq, &ev.ID, &typ, &entity, &ev.EntityID, &data, &orig, &tsMs, &status, &meta, &ev.Attempts, &ev.LastError, &updMs); err != nil {
		return nil, err
	}
	ev.Type = model.EventType(typ)
	ev.Entity = model.Entity(entity)
	ev.Status = model.EventStatus(status)
	ev.Timestamp = syncx.FromMs(tsMs)
	ev.UpdatedAt = syncx.FromMs(updMs)

	var err error
	if ev.Data, err = decodeMap(data, "event "+ev.ID+" data"); err != nil {
		return nil, err
	}
	if ev.OriginalData, err = decodeMap(orig, "event "+ev.ID+" originalData"); err != nil {
		return nil, err
	}
	if ev.Metadata, err = decodeMap(meta, "event "+ev.ID+" metadata"); err != nil {
		return nil, err
	}
	return &ev, nil
}

func queryEvents(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, query string, args ...any) ([]model.OfflineEvent, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OfflineEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *model.OfflineEvent) (sql.Result, error) {
	data, err := encodeJSON(ev.Data)
	if err != nil {
		return nil, err
	}
	orig, err := encodeJSON(ev.OriginalData)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSON(ev.Metadata)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, `INSERT INTO offline_events
		(id, type, entity, entity_id, data, original_data, timestamp_ms, status, metadata, attempts, last_error, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, string(ev.Type), string(ev.Entity), ev.EntityID, data, orig,
		syncx.Ms(ev.Timestamp), string(ev.Status), meta, ev.Attempts, ev.LastError, syncx.Ms(ev.UpdatedAt))
}

// Append records a new pending event
func (s *Store) Append(ctx context.Context, ev *model.OfflineEvent) (*model.OfflineEvent, error) {
	out := *ev
	now := s.now()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = now
	}
	out.Timestamp = syncx.FromMs(syncx.Ms(out.Timestamp))
	out.Status = model.StatusPending
	out.UpdatedAt = syncx.FromMs(syncx.Ms(now))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("append", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := insertEvent(ctx, tx, &out)
	if err != nil {
		return nil, storageErr("append", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storageErr("append", fmt.Errorf("event %s already exists", out.ID))
	}
	if out.Seq, err = res.LastInsertId(); err != nil {
		return nil, storageErr("append", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("append", err)
	}
	return &out, nil
}

// ImportEvents inserts events preserving ids; existing ids are skipped
func (s *Store) ImportEvents(ctx context.Context, evs []model.OfflineEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("import", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	inserted := 0
	for i := range evs {
		ev := evs[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		// in-flight state does not survive a move between devices
		if ev.Status == "" || ev.Status == model.StatusSyncing {
			ev.Status = model.StatusPending
		}
		ev.UpdatedAt = now

		res, err := insertEvent(ctx, tx, &ev)
		if err != nil {
			return 0, storageErr("import", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("import", err)
	}
	return inserted, nil
}

// Get returns one event by id
func (s *Store) Get(ctx context.Context, id string) (*model.OfflineEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM offline_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get event", err)
	}
	return ev, nil
}

// ListPending returns pending events in creation order
func (s *Store) ListPending(ctx context.Context) ([]model.OfflineEvent, error) {
	evs, err := queryEvents(ctx, s.db, `SELECT `+eventColumns+` FROM offline_events WHERE status = ? ORDER BY seq`, string(model.StatusPending))
	return evs, storageErr("list pending", err)
}

// ListEvents returns events matching f in creation order
func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]model.OfflineEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Entity != "" {
		where = append(where, "entity = ?")
		args = append(args, string(f.Entity))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, f.AfterSeq)
	}

	q := `SELECT ` + eventColumns + ` FROM offline_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	evs, err := queryEvents(ctx, s.db, q, args...)
	return evs, storageErr("list events", err)
}

// ClaimForSync moves a pending event to syncing unless its entity already
// has an event in flight.
func (s *Store) ClaimForSync(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE offline_events SET status = ?, updated_at_ms = ?
		WHERE id = ? AND status = ?
		AND NOT EXISTS (
			SELECT 1 FROM offline_events o
			WHERE o.entity = offline_events.entity
			AND o.entity_id = offline_events.entity_id
			AND o.status = ?
		)`,
		string(model.StatusSyncing), syncx.Ms(s.now()), id, string(model.StatusPending), string(model.StatusSyncing))
	if err != nil {
		return false, storageErr("claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("claim", err)
	}
	return n == 1, nil
}

func mergeMeta(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *Store) updateStatusTx(ctx context.Context, tx *sql.Tx, id string, status model.EventStatus, metadata map[string]any, lastError string) error {
	var (
		cur  string
		meta sql.NullString
	)
	err := tx.QueryRowContext(ctx, `SELECT status, metadata FROM offline_events WHERE id = ?`, id).Scan(&cur, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return err
	}

	existing, err := decodeMap(meta, "event "+id+" metadata")
	if err != nil {
		return err
	}
	merged, err := encodeJSON(mergeMeta(existing, metadata))
	if err != nil {
		return err
	}

	// an apply attempt happened when leaving syncing for pending or failed
	bump := 0
	if model.EventStatus(cur) == model.StatusSyncing && (status == model.StatusPending || status == model.StatusFailed) {
		bump = 1
	}

	_, err = tx.ExecContext(ctx, `UPDATE offline_events
		SET status = ?, metadata = ?, last_error = ?, attempts = attempts + ?, updated_at_ms = ?
		WHERE id = ?`,
		string(status), merged, lastError, bump, syncx.Ms(s.now()), id)
	return err
}

// UpdateStatus sets status, merges metadata and records lastError
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.EventStatus, metadata map[string]any, lastError string) error {
	if !status.Valid() {
		return fmt.Errorf("update status: unknown status %q", status)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("update status", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.updateStatusTx(ctx, tx, id, status, metadata, lastError); err != nil {
		return storageErr("update status", err)
	}
	return storageErr("update status", tx.Commit())
}

// MarkConflict stores the records and flags the event in one transaction
func (s *Store) MarkConflict(ctx context.Context, eventID, reason string, records []model.ConflictRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("mark conflict", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]any, 0, len(records))
	for i := range records {
		c := &records[i]
		if c.EventID == "" {
			c.EventID = eventID
		}
		if err := s.putConflictTx(ctx, tx, c); err != nil {
			return storageErr("mark conflict", err)
		}
		ids = append(ids, c.ID)
	}

	meta := map[string]any{model.MetaReason: reason, model.MetaConflictIDs: ids}
	if err := s.updateStatusTx(ctx, tx, eventID, model.StatusConflict, meta, ""); err != nil {
		return storageErr("mark conflict", err)
	}
	return storageErr("mark conflict", tx.Commit())
}

// DiscardEvent removes an event from the queue
func (s *Store) DiscardEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offline_events WHERE id = ?`, id)
	if err != nil {
		return storageErr("discard", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// RecoverInterrupted returns syncing events to pending after a restart
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE offline_events SET status = ?, updated_at_ms = ? WHERE status = ?`,
		string(model.StatusPending), syncx.Ms(s.now()), string(model.StatusSyncing))
	if err != nil {
		return 0, storageErr("recover", err)
	}
	n, err := res.RowsAffected()
	return int(n), storageErr("recover", err)
}

// --- Conflicts ---

const conflictColumns = `id, event_id, type, entity, entity_id, fields, reason, local_data, server_data,
	local_ts_ms, server_ts_ms, detected_at_ms, resolution, resolved_data, resolved_at_ms, resolved_by`

func scanConflict(r rowScanner) (*model.ConflictRecord, error) {
	var (
		c                             model.ConflictRecord
		typ, entity                   string
		fields, local, server, rdata  sql.NullString
		resolution                    sql.NullString
		localMs, serverMs, detectedMs int64
		resolvedMs                    sql.NullInt64
	)
	if err := r.Scan(&c.ID, &c.EventID, &typ, &entity, &c.EntityID, &fields, &c.Reason, &local, &server,
		&localMs, &serverMs, &detectedMs, &resolution, &rdata, &resolvedMs, &c.ResolvedBy); err != nil {
		return nil, err
	}
	c.Type = model.ConflictType(typ)
	c.Entity = model.Entity(entity)
	c.LocalTimestamp = syncx.FromMs(localMs)
	c.ServerTimestamp = syncx.FromMs(serverMs)
	c.DetectedAt = syncx.FromMs(detectedMs)
	c.Resolution = model.Resolution(resolution.String)
	if resolvedMs.Valid {
		t := syncx.FromMs(resolvedMs.Int64)
		c.ResolvedAt = &t
	}

	if fields.Valid {
		if err := json.Unmarshal([]byte(fields.String), &c.Fields); err != nil {
			return nil, &model.CorruptedStateError{What: "conflict " + c.ID + " fields", Err: err}
		}
	}
	var err error
	if c.LocalData, err = decodeMap(local, "conflict "+c.ID+" localData"); err != nil {
		return nil, err
	}
	if c.ServerData, err = decodeMap(server, "conflict "+c.ID+" serverData"); err != nil {
		return nil, err
	}
	if c.ResolvedData, err = decodeMap(rdata, "conflict "+c.ID+" resolvedData"); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) queryConflicts(ctx context.Context, query string, args ...any) ([]model.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) putConflictTx(ctx context.Context, tx *sql.Tx, c *model.ConflictRecord) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = s.now()
	}
	fields, err := encodeJSON(c.Fields)
	if err != nil {
		return err
	}
	local, err := encodeJSON(c.LocalData)
	if err != nil {
		return err
	}
	server, err := encodeJSON(c.ServerData)
	if err != nil {
		return err
	}
	rdata, err := encodeJSON(c.ResolvedData)
	if err != nil {
		return err
	}
	var resolution sql.NullString
	if c.Resolution != "" {
		resolution = sql.NullString{String: string(c.Resolution), Valid: true}
	}
	var resolvedAt sql.NullInt64
	if c.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: syncx.Ms(*c.ResolvedAt), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO conflict_records (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			fields = excluded.fields, reason = excluded.reason,
			local_data = excluded.local_data, server_data = excluded.server_data,
			server_ts_ms = excluded.server_ts_ms
		WHERE conflict_records.resolution IS NULL`,
		c.ID, c.EventID, string(c.Type), string(c.Entity), c.EntityID, fields, c.Reason, local, server,
		syncx.Ms(c.LocalTimestamp), syncx.Ms(c.ServerTimestamp), syncx.Ms(c.DetectedAt),
		resolution, rdata, resolvedAt, c.ResolvedBy)
	return err
}

// PutConflict inserts a record; an unresolved record with the same id is
// refreshed, a resolved one is left untouched.
func (s *Store) PutConflict(ctx context.Context, c *model.ConflictRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("put conflict", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.putConflictTx(ctx, tx, c); err != nil {
		return storageErr("put conflict", err)
	}
	return storageErr("put conflict", tx.Commit())
}

// GetConflict returns one record by id
func (s *Store) GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflict_records WHERE id = ?`, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get conflict", err)
	}
	return c, nil
}

// ListUnresolved returns open conflicts, oldest first
func (s *Store) ListUnresolved(ctx context.Context) ([]model.ConflictRecord, error) {
	cs, err := s.queryConflicts(ctx, `SELECT `+conflictColumns+` FROM conflict_records
		WHERE resolution IS NULL ORDER BY detected_at_ms, id`)
	return cs, storageErr("list unresolved", err)
}

// FindConflictsByEntity returns every record (open or closed) for one entity
func (s *Store) FindConflictsByEntity(ctx context.Context, entity model.Entity, entityID string) ([]model.ConflictRecord, error) {
	cs, err := s.queryConflicts(ctx, `SELECT `+conflictColumns+` FROM conflict_records
		WHERE entity = ? AND entity_id = ? ORDER BY detected_at_ms, id`, string(entity), entityID)
	return cs, storageErr("find conflicts", err)
}

// markResolvedTx closes one open conflict inside tx
func (s *Store) markResolvedTx(ctx context.Context, tx *sql.Tx, id string, resolution model.Resolution, data map[string]any, by string, now time.Time) (*model.ConflictRecord, error) {
	rdata, err := encodeJSON(data)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflict_records WHERE id = ?`, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if c.IsResolved() {
		return nil, &model.AlreadyResolvedError{ConflictID: id, Resolution: c.Resolution}
	}

	res, err := tx.ExecContext(ctx, `UPDATE conflict_records
		SET resolution = ?, resolved_data = ?, resolved_at_ms = ?, resolved_by = ?
		WHERE id = ? AND resolution IS NULL`,
		string(resolution), rdata, syncx.Ms(now), by, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &model.AlreadyResolvedError{ConflictID: id, Resolution: c.Resolution}
	}

	c.Resolution = resolution
	c.ResolvedData = data
	c.ResolvedAt = &now
	c.ResolvedBy = by
	return c, nil
}

// MarkResolved closes a conflict exactly once
func (s *Store) MarkResolved(ctx context.Context, id string, resolution model.Resolution, data map[string]any, by string) (*model.ConflictRecord, error) {
	if !resolution.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidResolution, resolution)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("resolve", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.markResolvedTx(ctx, tx, id, resolution, data, by, syncx.FromMs(syncx.Ms(s.now())))
	if err != nil {
		return nil, storageErr("resolve", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("resolve", err)
	}
	return c, nil
}

// ApplyResolution commits a resolution in one transaction
func (s *Store) ApplyResolution(ctx context.Context, r store.ResolutionCommit) (*model.ConflictRecord, *model.OfflineEvent, error) {
	if !r.Resolution.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", model.ErrInvalidResolution, r.Resolution)
	}
	now := syncx.FromMs(syncx.Ms(s.now()))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, storageErr("apply resolution", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.markResolvedTx(ctx, tx, r.ConflictID, r.Resolution, r.Data, r.By, now)
	if err != nil {
		return nil, nil, storageErr("apply resolution", err)
	}

	// sibling conflicts raised by the same event are decided together
	rdata, err := encodeJSON(r.Data)
	if err != nil {
		return nil, nil, storageErr("apply resolution", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conflict_records
		SET resolution = ?, resolved_data = ?, resolved_at_ms = ?, resolved_by = ?
		WHERE event_id = ? AND id != ? AND resolution IS NULL`,
		string(r.Resolution), rdata, syncx.Ms(now), r.By, c.EventID, c.ID); err != nil {
		return nil, nil, storageErr("apply resolution", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM offline_events WHERE id = ?`, c.EventID); err != nil {
		return nil, nil, storageErr("apply resolution", err)
	}

	var wb *model.OfflineEvent
	if r.WriteBack != nil {
		out := *r.WriteBack
		if out.ID == "" {
			out.ID = uuid.NewString()
		}
		if out.Timestamp.IsZero() {
			out.Timestamp = now
		}
		out.Timestamp = syncx.FromMs(syncx.Ms(out.Timestamp))
		out.Status = model.StatusPending
		out.UpdatedAt = now

		res, err := insertEvent(ctx, tx, &out)
		if err != nil {
			return nil, nil, storageErr("apply resolution", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, nil, storageErr("apply resolution", fmt.Errorf("event %s already exists", out.ID))
		}
		if out.Seq, err = res.LastInsertId(); err != nil {
			return nil, nil, storageErr("apply resolution", err)
		}
		wb = &out
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, storageErr("apply resolution", err)
	}
	return c, wb, nil
}

// --- Decision cache ---

// PutDecision stores the latest choice for an entity, replacing any earlier one
func (s *Store) PutDecision(ctx context.Context, d model.Decision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = s.now()
	}
	blob, err := codec.Compress(d)
	if err != nil {
		return storageErr("put decision", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO resolution_decisions (entity, entity_id, payload, decided_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (entity, entity_id) DO UPDATE SET payload = excluded.payload, decided_at_ms = excluded.decided_at_ms`,
		string(d.Entity), d.EntityID, blob, syncx.Ms(d.DecidedAt))
	return storageErr("put decision", err)
}

// GetDecision returns the cached choice or nil
func (s *Store) GetDecision(ctx context.Context, entity model.Entity, entityID string) (*model.Decision, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM resolution_decisions WHERE entity = ? AND entity_id = ?`,
		string(entity), entityID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get decision", err)
	}

	var d model.Decision
	if err := codec.Decompress(blob, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// --- Read model ---

// EntityStatus summarises outstanding work for one entity
func (s *Store) EntityStatus(ctx context.Context, entity model.Entity, entityID string) (*model.EntitySyncStatus, error) {
	out := &model.EntitySyncStatus{Entity: entity, EntityID: entityID}

	var syncing, conflicted int
	err := s.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'syncing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'conflict' THEN 1 ELSE 0 END), 0)
		FROM offline_events WHERE entity = ? AND entity_id = ?`,
		string(entity), entityID).Scan(&out.Pending, &syncing, &out.Failed, &conflicted)
	if err != nil {
		return nil, storageErr("entity status", err)
	}

	if out.Failed > 0 {
		err := s.db.QueryRowContext(ctx, `SELECT last_error FROM offline_events
			WHERE entity = ? AND entity_id = ? AND status = 'failed' ORDER BY seq DESC LIMIT 1`,
			string(entity), entityID).Scan(&out.LastError)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, storageErr("entity status", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM conflict_records
		WHERE entity = ? AND entity_id = ? AND resolution IS NULL ORDER BY detected_at_ms, id`,
		string(entity), entityID)
	if err != nil {
		return nil, storageErr("entity status", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("entity status", err)
		}
		out.ConflictIDs = append(out.ConflictIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("entity status", err)
	}

	switch {
	case len(out.ConflictIDs) > 0 || conflicted > 0:
		out.Status = model.StatusConflict
	case out.Failed > 0:
		out.Status = model.StatusFailed
	case syncing > 0:
		out.Status = model.StatusSyncing
	case out.Pending > 0:
		out.Status = model.StatusPending
	default:
		out.Status = model.StatusSynced
	}
	return out, nil
}

// --- Retention ---

// PurgeResolvedConflicts deletes resolved records older than before
func (s *Store) PurgeResolvedConflicts(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conflict_records
		WHERE resolution IS NOT NULL AND resolved_at_ms < ?`, syncx.Ms(before))
	if err != nil {
		return 0, storageErr("purge conflicts", err)
	}
	n, err := res.RowsAffected()
	return int(n), storageErr("purge conflicts", err)
}

// PurgeSyncedEvents deletes synced events last touched before before
func (s *Store) PurgeSyncedEvents(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offline_events
		WHERE status = ? AND updated_at_ms < ?`, string(model.StatusSynced), syncx.Ms(before))
	if err != nil {
		return 0, storageErr("purge events", err)
	}
	n, err := res.RowsAffected()
	return int(n), storageErr("purge events", err)
}
