package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:    srv.URL,
		APIKey:     "anon-key",
		Tokens:     staticToken("tok-123"),
		Timeout:    2 * time.Second,
		MaxRetries: retries,
		RetryWait:  time.Millisecond,
	})
}

func TestFetchByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Correlation-ID"))

		switch r.URL.Query().Get("id") {
		case "eq.42":
			_, _ = io.WriteString(w, `[{"id":"42","name":"Lamp","qr_code":"ART-0042","price":15,"updated_at":"2025-11-03T10:00:00Z"}]`)
		default:
			_, _ = io.WriteString(w, `[]`)
		}
	}, 0)

	rec, err := c.FetchByID(context.Background(), model.EntityItem, "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "42", rec.ID)
	assert.True(t, rec.HasUpdatedAt())
	assert.Equal(t, "ART-0042", rec.Data["qrCode"])
	assert.EqualValues(t, 15, rec.Data["price"])

	rec, err = c.FetchByID(context.Background(), model.EntityItem, "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFetchByIDNotFoundStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 0)

	rec, err := c.FetchByID(context.Background(), model.EntityContainer, "1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestWritesUseSnakeCaseAndRepresentation(t *testing.T) {
	var gotBody map[string]any
	var gotPrefer, gotMethod, gotFilter string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPrefer = r.Header.Get("Prefer")
		gotFilter = r.URL.Query().Get("id")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `[{"id":"42","price":12,"container_id":"7","updated_at":"2025-11-03T11:00:00Z"}]`)
	}, 0)

	rec, err := c.Update(context.Background(), model.EntityItem, "42", map[string]any{"id": "42", "price": 12, "containerId": "7"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "return=representation", gotPrefer)
	assert.Equal(t, "eq.42", gotFilter)
	assert.Contains(t, gotBody, "container_id")
	assert.NotContains(t, gotBody, "id", "id is addressed by filter, not patched")
	assert.Equal(t, "7", rec.Data["containerId"])

	_, err = c.Insert(context.Background(), model.EntityItem, map[string]any{"id": "42", "qrCode": "ART-0042"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Contains(t, gotBody, "qr_code")
}

func TestUpdateMissingRowIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}, 0)

	_, err := c.Update(context.Background(), model.EntityItem, "42", map[string]any{"price": 1})
	require.Error(t, err)
	assert.True(t, model.IsPermanent(err))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantMessage   string
	}{
		{"validation", http.StatusBadRequest, `{"code":"23514","message":"new row violates check constraint","details":"price"}`, false, "new row violates check constraint: price"},
		{"conflict", http.StatusConflict, `{"code":"23505","message":"duplicate key value"}`, false, "duplicate key value"},
		{"unavailable", http.StatusServiceUnavailable, ``, true, ""},
		{"rate limited", http.StatusTooManyRequests, ``, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, 0)

			_, err := c.Update(context.Background(), model.EntityItem, "42", map[string]any{"price": 1})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, model.IsTransient(err))
			assert.Equal(t, !tt.wantTransient, model.IsPermanent(err))
			if tt.wantMessage != "" {
				assert.Contains(t, err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestTransportRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"1","name":"Garage"}]`)
	}, 3)

	rec, err := c.FetchByID(context.Background(), model.EntityLocation, "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url, Timeout: 500 * time.Millisecond})
	_, err := c.FetchByID(context.Background(), model.EntityItem, "1")
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestFindQueries(t *testing.T) {
	var lastQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[{"id":"9","name":"box_1"}]`)
	}, 0)

	recs, err := c.FindByName(context.Background(), model.EntityContainer, "Box_1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.True(t, strings.HasPrefix(lastQuery, "name=ilike."), lastQuery)
	assert.Contains(t, lastQuery, `%5C_`, "underscore wildcard must be escaped")

	_, err = c.FindByUniqueKey(context.Background(), model.EntityContainer, "number", float64(12))
	require.NoError(t, err)
	assert.Equal(t, "number=eq.12", lastQuery)

	_, err = c.FindByUniqueKey(context.Background(), model.EntityItem, "qrCode", "ART-1")
	require.NoError(t, err)
	assert.Equal(t, "qr_code=eq.ART-1", lastQuery)
}

func TestDelete(t *testing.T) {
	var method string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNotFound)
	}, 0)

	require.NoError(t, c.Delete(context.Background(), model.EntityCategory, "3"), "deleting a missing row succeeds")
	assert.Equal(t, http.MethodDelete, method)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, 0)
	assert.NoError(t, c.Ping(context.Background()))
}
