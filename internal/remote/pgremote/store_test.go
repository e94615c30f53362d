package pgremote

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackchouchani/inventoryApp-sub001/internal/db"
	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantPermanent bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, true},
		{"invalid text", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax"}, true},
		{"undefined column", &pgconn.PgError{Code: "42703", Message: "column does not exist"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, false},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("update", tt.err)
			assert.Equal(t, tt.wantPermanent, model.IsPermanent(err))
			assert.Equal(t, !tt.wantPermanent, model.IsTransient(err))
		})
	}
}

// setupTestStore connects to TEST_DATABASE_URL with a single connection and
// shadows the entity tables with temporary ones.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.PoolOptions{MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, ddl := range []string{
		`CREATE TEMP TABLE items (
			id text PRIMARY KEY,
			name text NOT NULL,
			qr_code text UNIQUE,
			price numeric,
			container_id text,
			deleted boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TEMP TABLE containers (
			id text PRIMARY KEY,
			name text NOT NULL,
			qr_code text,
			number int,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
	} {
		_, err := pool.Exec(ctx, ddl)
		require.NoError(t, err)
	}
	return New(pool, false)
}

func TestCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, model.EntityItem, map[string]any{"id": "42", "name": "Lamp", "qrCode": "ART-0042", "price": 10})
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID)
	assert.True(t, rec.HasUpdatedAt())
	assert.Equal(t, "ART-0042", rec.Data["qrCode"])

	rec, err = s.Update(ctx, model.EntityItem, "42", map[string]any{"price": 15})
	require.NoError(t, err)
	assert.EqualValues(t, 15, rec.Data["price"])
	assert.Equal(t, "Lamp", rec.Data["name"], "untouched columns survive")

	rec, err = s.Update(ctx, model.EntityItem, "42", map[string]any{"price": 12, "containerId": "7"})
	require.NoError(t, err)
	assert.Equal(t, "7", rec.Data["containerId"])

	got, err := s.FetchByID(ctx, model.EntityItem, "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 12, got.Data["price"])

	found, err := s.FindByUniqueKey(ctx, model.EntityItem, "qrCode", "ART-0042")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = s.FindByName(ctx, model.EntityItem, "LAMP")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = s.Insert(ctx, model.EntityItem, map[string]any{"id": "43", "name": "Other", "qrCode": "ART-0042"})
	require.Error(t, err)
	assert.True(t, model.IsPermanent(err), "unique violation is permanent: %v", err)

	require.NoError(t, s.Delete(ctx, model.EntityItem, "42"))
	require.NoError(t, s.Delete(ctx, model.EntityItem, "42"))
	got, err = s.FetchByID(ctx, model.EntityItem, "42")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.Update(ctx, model.EntityItem, "42", map[string]any{"price": 1})
	assert.True(t, model.IsPermanent(err))
}

func TestFindBySecondaryKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, model.EntityContainer, map[string]any{"id": "c1", "name": "Box", "number": 12})
	require.NoError(t, err)

	found, err := s.FindByUniqueKey(ctx, model.EntityContainer, "number", float64(12))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c1", found[0].ID)
}
