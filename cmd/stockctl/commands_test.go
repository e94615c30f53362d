package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackchouchani/inventoryApp-sub001/internal/auth"
)

type recorded struct {
	method, path, query, contentType, authz string
	body                                    []byte
}

func fakeDaemon(t *testing.T, status int, reply string) (*apiClient, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method, rec.path, rec.query = r.Method, r.URL.Path, r.URL.RawQuery
		rec.contentType = r.Header.Get("Content-Type")
		rec.authz = r.Header.Get("Authorization")
		rec.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return newAPIClient(srv.URL, "tok", 5*time.Second), rec
}

func TestRunEnqueue(t *testing.T) {
	c, rec := fakeDaemon(t, http.StatusCreated, `{"id":"e1","status":"pending"}`)
	var out bytes.Buffer

	err := runEnqueue(c, enqueueArgs{Type: "UPDATE", Entity: "item", ID: "42", Data: `{"price":12}`, Original: `{"price":10}`}, &out)
	require.NoError(t, err)
	assert.Equal(t, "/v1/mutations", rec.path)
	assert.Equal(t, "Bearer tok", rec.authz)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.body, &body))
	assert.Equal(t, "42", body["entityId"])
	assert.Equal(t, map[string]any{"price": float64(10)}, body["originalData"])
	assert.Contains(t, out.String(), `"status": "pending"`)

	err = runEnqueue(c, enqueueArgs{Type: "CREATE", Entity: "item", Data: `[1,2]`}, &out)
	assert.ErrorContains(t, err, "--data must be a JSON object")
}

func TestRunEvents(t *testing.T) {
	c, rec := fakeDaemon(t, http.StatusOK, `{"events":[]}`)
	require.NoError(t, runEvents(c, eventsArgs{Status: "failed", Limit: 10}, io.Discard))
	assert.Equal(t, "/v1/events", rec.path)
	assert.Equal(t, "limit=10&status=failed", rec.query)
}

func TestRunResolveValidation(t *testing.T) {
	c, rec := fakeDaemon(t, http.StatusOK, `{}`)

	assert.Error(t, runResolve(c, "c1", "coinflip", "", "", io.Discard))
	assert.ErrorContains(t, runResolve(c, "c1", "merge", "", "", io.Discard), "--data is required")
	assert.Empty(t, rec.path, "invalid input never reaches the daemon")

	require.NoError(t, runResolve(c, "c1", "merge", `{"price":13}`, "alice", io.Discard))
	assert.Equal(t, "/v1/conflicts/c1/resolve", rec.path)
	assert.Contains(t, string(rec.body), `"resolvedBy":"alice"`)
}

func TestRunRetryPaths(t *testing.T) {
	c, rec := fakeDaemon(t, http.StatusOK, `{"requeued":1}`)
	require.NoError(t, runRetry(c, "", io.Discard))
	assert.Equal(t, "/v1/events/retry", rec.path)
	require.NoError(t, runRetry(c, "e1", io.Discard))
	assert.Equal(t, "/v1/events/e1/retry", rec.path)
}

func TestAPIErrorsCarryCorrelation(t *testing.T) {
	c, _ := fakeDaemon(t, http.StatusConflict, `{"error":"conflict c1 already resolved (local)","correlationId":"abc"}`)
	err := runResolve(c, "c1", "server", "", "", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 409")
	assert.Contains(t, err.Error(), "correlation abc")
}

func TestExportImport(t *testing.T) {
	c, rec := fakeDaemon(t, http.StatusOK, "\x01blob")
	path := filepath.Join(t.TempDir(), "queue.bin")

	var out bytes.Buffer
	require.NoError(t, runExport(c, path, &out))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\x01blob", string(got))
	assert.True(t, strings.HasPrefix(out.String(), "wrote 5 bytes"))

	_ = runImport(c, path, io.Discard)
	assert.Equal(t, "/v1/queue/import", rec.path)
	assert.Equal(t, "application/octet-stream", rec.contentType)
	assert.Equal(t, "\x01blob", string(rec.body))
}

func TestRunToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runToken("s3cret", "ops", "stocksync", time.Minute, &out))

	sub, err := auth.ValidateToken(strings.TrimSpace(out.String()), auth.JWTCfg{HS256Secret: "s3cret", Issuer: "stocksync"})
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)

	assert.Error(t, runToken("", "ops", "", time.Minute, io.Discard))
}
