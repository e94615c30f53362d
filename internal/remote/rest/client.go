// Package rest implements remote.Store against a PostgREST-style HTTP API
// (the hosted backend of the stock app).
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// TokenSource mints bearer tokens, one per request
type TokenSource interface {
	Token() (string, error)
}

// Options configures the REST adapter
type Options struct {
	BaseURL    string
	APIKey     string
	Tokens     TokenSource // nil sends only the apikey header
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration
	SoftDelete bool // DELETE becomes PATCH deleted=true
}

// Client is the PostgREST adapter
type Client struct {
	http       *resty.Client
	softDelete bool
}

var _ remote.Store = (*Client)(nil)

// postgrestError is the PostgREST error body
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// New creates a REST adapter
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(8 * opts.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			switch r.StatusCode() {
			case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		})

	if opts.APIKey != "" {
		c.SetHeader("apikey", opts.APIKey)
	}

	tokens := opts.Tokens
	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.SetHeader("X-Correlation-ID", uuid.New().String())
		if tokens == nil {
			return nil
		}
		tok, err := tokens.Token()
		if err != nil {
			return fmt.Errorf("mint bearer token: %w", err)
		}
		r.SetAuthToken(tok)
		return nil
	})

	return &Client{http: c, softDelete: opts.SoftDelete}
}

func tablePath(entity model.Entity) (string, error) {
	t := entity.Table()
	if t == "" {
		return "", fmt.Errorf("%w: unknown entity %q", model.ErrInvalidEvent, entity)
	}
	return "/" + t, nil
}

// eq renders a PostgREST equality filter value
func eq(v any) string {
	switch t := v.(type) {
	case string:
		return "eq." + t
	default:
		b, _ := json.Marshal(t)
		return "eq." + string(b)
	}
}

// ilikeExact builds a case-insensitive exact match; wildcard characters in
// the name are escaped so only equal names match.
func ilikeExact(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `\*`)
	return "ilike." + r.Replace(name)
}

func (c *Client) do(ctx context.Context, op string, r *resty.Request, method, path string) (*resty.Response, error) {
	start := time.Now()
	resp, err := r.SetContext(ctx).Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("op", op).Str("path", path).Msg("remote request failed")
		return nil, &model.TransientRemoteError{Op: op, Err: err}
	}

	log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("remote request completed")
	return resp, nil
}

func errorFor(op string, resp *resty.Response) error {
	msg := strings.TrimSpace(resp.String())
	var pe postgrestError
	if json.Unmarshal(resp.Body(), &pe) == nil && pe.Message != "" {
		msg = pe.Message
		if pe.Details != "" {
			msg += ": " + pe.Details
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return remote.ClassifyStatus(op, resp.StatusCode(), msg)
}

func decodeRows(op string, resp *resty.Response) ([]remote.Record, error) {
	var rows []map[string]any
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, &model.PermanentRemoteError{Op: op, StatusCode: resp.StatusCode(), Message: "malformed response: " + err.Error()}
	}
	out := make([]remote.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, remote.NewRecord(row))
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, op string, entity model.Entity, params url.Values) ([]remote.Record, error) {
	path, err := tablePath(entity)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, op, c.http.R().SetQueryParamsFromValues(params), http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFor(op, resp)
	}
	return decodeRows(op, resp)
}

// FetchByID returns nil, nil when the row is missing
func (c *Client) FetchByID(ctx context.Context, entity model.Entity, id string) (*remote.Record, error) {
	recs, err := c.query(ctx, "fetch", entity, url.Values{"id": {eq(id)}, "limit": {"1"}})
	if err != nil {
		var pe *model.PermanentRemoteError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (c *Client) write(ctx context.Context, op string, entity model.Entity, method string, params url.Values, body map[string]any) (*remote.Record, error) {
	path, err := tablePath(entity)
	if err != nil {
		return nil, err
	}
	r := c.http.R().
		SetHeader("Prefer", "return=representation").
		SetBody(syncx.ToRemote(body))
	if params != nil {
		r.SetQueryParamsFromValues(params)
	}

	resp, err := c.do(ctx, op, r, method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errorFor(op, resp)
	}

	recs, err := decodeRows(op, resp)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Insert creates a row, returning the stored representation
func (c *Client) Insert(ctx context.Context, entity model.Entity, data map[string]any) (*remote.Record, error) {
	rec, err := c.write(ctx, "insert", entity, http.MethodPost, nil, data)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &model.PermanentRemoteError{Op: "insert", StatusCode: http.StatusOK, Message: "insert returned no row"}
	}
	return rec, nil
}

// Update patches a row. A missing row is a permanent failure.
func (c *Client) Update(ctx context.Context, entity model.Entity, id string, data map[string]any) (*remote.Record, error) {
	body := make(map[string]any, len(data))
	for k, v := range data {
		if k == "id" {
			continue
		}
		body[k] = v
	}
	rec, err := c.write(ctx, "update", entity, http.MethodPatch, url.Values{"id": {eq(id)}}, body)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &model.PermanentRemoteError{Op: "update", StatusCode: http.StatusNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
	}
	return rec, nil
}

// Delete removes a row; deleting a missing row succeeds
func (c *Client) Delete(ctx context.Context, entity model.Entity, id string) error {
	if c.softDelete {
		_, err := c.write(ctx, "delete", entity, http.MethodPatch, url.Values{"id": {eq(id)}},
			map[string]any{"deleted": true, "updatedAt": time.Now().UTC().Format(time.RFC3339Nano)})
		return err
	}

	path, err := tablePath(entity)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "delete", c.http.R().SetQueryParam("id", eq(id)), http.MethodDelete, path)
	if err != nil {
		return err
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return errorFor("delete", resp)
	}
	return nil
}

// FindByUniqueKey returns rows whose field equals value exactly
func (c *Client) FindByUniqueKey(ctx context.Context, entity model.Entity, field string, value any) ([]remote.Record, error) {
	return c.query(ctx, "find", entity, url.Values{syncx.SnakeKey(field): {eq(value)}})
}

// FindByName returns rows whose name matches case-insensitively
func (c *Client) FindByName(ctx context.Context, entity model.Entity, name string) ([]remote.Record, error) {
	s, ok := model.Schema(entity)
	if !ok || s.NameField == "" {
		return nil, nil
	}
	return c.query(ctx, "find", entity, url.Values{syncx.SnakeKey(s.NameField): {ilikeExact(name)}})
}

// Ping checks that the API answers; any non-5xx response counts as reachable
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, "ping", c.http.R(), http.MethodHead, "/")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= 500 {
		return errorFor("ping", resp)
	}
	return nil
}
