// Package pgremote implements remote.Store directly on PostgreSQL via pgx,
// for deployments where the device talks to the database without an HTTP
// layer in between.
package pgremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// Store is the direct PostgreSQL adapter
type Store struct {
	DB         *pgxpool.Pool
	SoftDelete bool // DELETE becomes UPDATE deleted = true
}

var _ remote.Store = (*Store)(nil)

// New wraps a pool
func New(pool *pgxpool.Pool, softDelete bool) *Store {
	return &Store{DB: pool, SoftDelete: softDelete}
}

// classify maps pgx failures onto the engine's error taxonomy. Data,
// constraint and syntax/privilege classes (22, 23, 42) are permanent;
// everything else, including connection loss, is transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &model.TransientRemoteError{Op: op, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "42"):
			msg := pgErr.Message
			if pgErr.Detail != "" {
				msg += ": " + pgErr.Detail
			}
			return &model.PermanentRemoteError{Op: op, Message: fmt.Sprintf("%s (SQLSTATE %s)", msg, pgErr.Code)}
		}
	}
	return &model.TransientRemoteError{Op: op, Err: err}
}

func table(entity model.Entity) (string, error) {
	t := entity.Table()
	if t == "" {
		return "", fmt.Errorf("%w: unknown entity %q", model.ErrInvalidEvent, entity)
	}
	return pgx.Identifier{t}.Sanitize(), nil
}

func decodeRow(raw []byte) (remote.Record, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return remote.Record{}, err
	}
	return remote.NewRecord(m), nil
}

func (s *Store) queryRows(ctx context.Context, op, sql string, args ...any) ([]remote.Record, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []remote.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify(op, err)
		}
		rec, err := decodeRow(raw)
		if err != nil {
			return nil, &model.PermanentRemoteError{Op: op, Message: "malformed row: " + err.Error()}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// FetchByID returns nil, nil when the row does not exist
func (s *Store) FetchByID(ctx context.Context, entity model.Entity, id string) (*remote.Record, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.DB.QueryRow(ctx, `SELECT to_jsonb(r) FROM `+t+` r WHERE r.id::text = $1`, id).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("fetch", err)
	}

	rec, err := decodeRow(raw)
	if err != nil {
		return nil, &model.PermanentRemoteError{Op: "fetch", Message: "malformed row: " + err.Error()}
	}
	return &rec, nil
}

// columns returns the sanitised, sorted column list of a snake_case payload
func columns(payload map[string]any) (names []string, quoted []string) {
	for k := range payload {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		quoted = append(quoted, pgx.Identifier{n}.Sanitize())
	}
	return names, quoted
}

// Insert creates a row. Values are cast through jsonb_populate_record so the
// table's column types drive conversion and omitted columns keep defaults.
func (s *Store) Insert(ctx context.Context, entity model.Entity, data map[string]any) (*remote.Record, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}
	payload := syncx.ToRemote(data)
	if len(payload) == 0 {
		return nil, &model.PermanentRemoteError{Op: "insert", Message: "empty payload"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &model.PermanentRemoteError{Op: "insert", Message: err.Error()}
	}

	_, cols := columns(payload)
	list := strings.Join(cols, ", ")
	sql := `INSERT INTO ` + t + ` AS r (` + list + `)
		SELECT ` + list + ` FROM jsonb_populate_record(NULL::` + t + `, $1::jsonb)
		RETURNING to_jsonb(r)`

	var raw []byte
	if err := s.DB.QueryRow(ctx, sql, body).Scan(&raw); err != nil {
		log.Warn().Err(err).Str("entity", string(entity)).Msg("remote insert failed")
		return nil, classify("insert", err)
	}
	rec, err := decodeRow(raw)
	if err != nil {
		return nil, &model.PermanentRemoteError{Op: "insert", Message: "malformed row: " + err.Error()}
	}
	return &rec, nil
}

// Update patches the given columns of one row
func (s *Store) Update(ctx context.Context, entity model.Entity, id string, data map[string]any) (*remote.Record, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}
	payload := syncx.ToRemote(data)
	delete(payload, "id")
	if len(payload) == 0 {
		rec, err := s.FetchByID(ctx, entity, id)
		if err == nil && rec == nil {
			return nil, &model.PermanentRemoteError{Op: "update", Message: fmt.Sprintf("%s %s not found", entity, id)}
		}
		return rec, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &model.PermanentRemoteError{Op: "update", Message: err.Error()}
	}

	_, cols := columns(payload)
	list := strings.Join(cols, ", ")
	sql := `UPDATE ` + t + ` AS r SET (` + list + `) = (
			SELECT ` + list + ` FROM jsonb_populate_record(NULL::` + t + `, $1::jsonb)
		)
		WHERE r.id::text = $2
		RETURNING to_jsonb(r)`
	if len(cols) == 1 {
		// single column: plain scalar-subquery assignment
		sql = `UPDATE ` + t + ` AS r SET ` + list + ` = (
				SELECT ` + list + ` FROM jsonb_populate_record(NULL::` + t + `, $1::jsonb)
			)
			WHERE r.id::text = $2
			RETURNING to_jsonb(r)`
	}

	var raw []byte
	err = s.DB.QueryRow(ctx, sql, body, id).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, &model.PermanentRemoteError{Op: "update", Message: fmt.Sprintf("%s %s not found", entity, id)}
	}
	if err != nil {
		log.Warn().Err(err).Str("entity", string(entity)).Str("entity_id", id).Msg("remote update failed")
		return nil, classify("update", err)
	}
	rec, err := decodeRow(raw)
	if err != nil {
		return nil, &model.PermanentRemoteError{Op: "update", Message: "malformed row: " + err.Error()}
	}
	return &rec, nil
}

// Delete removes a row; a missing row is not an error
func (s *Store) Delete(ctx context.Context, entity model.Entity, id string) error {
	t, err := table(entity)
	if err != nil {
		return err
	}
	sql := `DELETE FROM ` + t + ` WHERE id::text = $1`
	if s.SoftDelete {
		sql = `UPDATE ` + t + ` SET deleted = true, updated_at = now() WHERE id::text = $1`
	}
	if _, err := s.DB.Exec(ctx, sql, id); err != nil {
		return classify("delete", err)
	}
	return nil
}

// FindByUniqueKey matches one canonical field exactly
func (s *Store) FindByUniqueKey(ctx context.Context, entity model.Entity, field string, value any) ([]remote.Record, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}
	v := syncx.IDString(value)
	if v == "" {
		if b, ok := value.(bool); ok {
			v = fmt.Sprint(b)
		}
	}
	return s.queryRows(ctx, "find", `SELECT to_jsonb(r) FROM `+t+` r WHERE to_jsonb(r)->>$1 = $2`, syncx.SnakeKey(field), v)
}

// FindByName matches the name field case-insensitively
func (s *Store) FindByName(ctx context.Context, entity model.Entity, name string) ([]remote.Record, error) {
	sc, ok := model.Schema(entity)
	if !ok || sc.NameField == "" {
		return nil, nil
	}
	t, err := table(entity)
	if err != nil {
		return nil, err
	}
	return s.queryRows(ctx, "find", `SELECT to_jsonb(r) FROM `+t+` r WHERE lower(to_jsonb(r)->>$1) = lower($2)`, syncx.SnakeKey(sc.NameField), name)
}

// Ping verifies connectivity
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.DB.Ping(ctx))
}
