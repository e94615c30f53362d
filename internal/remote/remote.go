// Package remote defines the authoritative remote store the engine
// reconciles against. Adapters return rows in canonical (camelCase) form.
package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// Record is one remote row
type Record struct {
	ID        string
	UpdatedAt time.Time // zero when the row carries no modification time
	Deleted   bool      // soft-delete tombstone
	Data      map[string]any
}

// HasUpdatedAt reports whether the remote modification time is known
func (r *Record) HasUpdatedAt() bool { return !r.UpdatedAt.IsZero() }

// Store is the remote store contract. Applies are expected to be idempotent
// (upsert by id) on the remote side; the engine only guarantees at-least-once.
type Store interface {
	// FetchByID returns nil, nil when the row does not exist
	FetchByID(ctx context.Context, entity model.Entity, id string) (*Record, error)
	Insert(ctx context.Context, entity model.Entity, data map[string]any) (*Record, error)
	Update(ctx context.Context, entity model.Entity, id string, data map[string]any) (*Record, error)
	// Delete succeeds when the row is already gone
	Delete(ctx context.Context, entity model.Entity, id string) error
	// FindByUniqueKey matches field exactly
	FindByUniqueKey(ctx context.Context, entity model.Entity, field string, value any) ([]Record, error)
	// FindByName matches the entity name field case-insensitively
	FindByName(ctx context.Context, entity model.Entity, name string) ([]Record, error)
	Ping(ctx context.Context) error
}

// NewRecord canonicalises a raw remote row and extracts its sync metadata
func NewRecord(raw map[string]any) Record {
	data := syncx.Canonicalize(raw)
	meta := syncx.ExtractMeta(data)
	return Record{ID: meta.ID, UpdatedAt: meta.UpdatedAt, Deleted: meta.Deleted, Data: data}
}

// ClassifyStatus maps an HTTP status onto the engine's error taxonomy.
// 408, 429 and 5xx are transient; every other non-2xx is permanent.
func ClassifyStatus(op string, status int, message string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return &model.TransientRemoteError{Op: op, StatusCode: status, Err: errors.New(message)}
	default:
		return &model.PermanentRemoteError{Op: op, StatusCode: status, Message: message}
	}
}
