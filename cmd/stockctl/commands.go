package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackchouchani/inventoryApp-sub001/internal/auth"
	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

func parseObject(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return m, nil
}

type enqueueArgs struct {
	Type, Entity, ID      string
	Data, Original        string
	SnapshotMissing, Skip bool
}

func runEnqueue(c *apiClient, a enqueueArgs, out io.Writer) error {
	data, err := parseObject("data", a.Data)
	if err != nil {
		return err
	}
	orig, err := parseObject("original", a.Original)
	if err != nil {
		return err
	}
	body := map[string]any{
		"type":   a.Type,
		"entity": a.Entity,
	}
	if a.ID != "" {
		body["entityId"] = a.ID
	}
	if data != nil {
		body["data"] = data
	}
	if orig != nil {
		body["originalData"] = orig
	}
	if a.SnapshotMissing {
		body["snapshotMissing"] = true
	}
	if a.Skip {
		body["skipDuplicateCheck"] = true
	}
	return c.postJSON("/v1/mutations", body, out)
}

type eventsArgs struct {
	Status, Entity, EntityID, Cursor string
	Limit                            int
}

func runEvents(c *apiClient, a eventsArgs, out io.Writer) error {
	q := url.Values{}
	for k, v := range map[string]string{"status": a.Status, "entity": a.Entity, "entityId": a.EntityID, "cursor": a.Cursor} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if a.Limit > 0 {
		q.Set("limit", strconv.Itoa(a.Limit))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.getJSON(path, out)
}

func runResolve(c *apiClient, id, choice, data, by string, out io.Writer) error {
	res := model.Resolution(choice)
	if !res.Valid() {
		return fmt.Errorf("--choice must be local, server, merge or manual")
	}
	resolved, err := parseObject("data", data)
	if err != nil {
		return err
	}
	if res.RequiresData() && resolved == nil {
		return fmt.Errorf("--data is required for %s", res)
	}
	body := map[string]any{"resolution": res}
	if resolved != nil {
		body["resolvedData"] = resolved
	}
	if by != "" {
		body["resolvedBy"] = by
	}
	return c.postJSON("/v1/conflicts/"+url.PathEscape(id)+"/resolve", body, out)
}

func runRetry(c *apiClient, id string, out io.Writer) error {
	if id == "" {
		return c.postJSON("/v1/events/retry", nil, out)
	}
	return c.postJSON("/v1/events/"+url.PathEscape(id)+"/retry", nil, out)
}

func runStatus(c *apiClient, entity, id string, out io.Writer) error {
	if !model.Entity(entity).Valid() {
		return fmt.Errorf("unknown entity %q", entity)
	}
	return c.getJSON("/v1/entities/"+entity+"/"+url.PathEscape(id)+"/status", out)
}

func runExport(c *apiClient, path string, out io.Writer) error {
	blob, err := c.call("GET", "/v1/queue/export", nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "wrote %d bytes to %s\n", len(blob), path)
	return err
}

func runImport(c *apiClient, path string, out io.Writer) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err := c.call("POST", "/v1/queue/import", blob)
	if err != nil {
		return err
	}
	return printJSON(out, raw)
}

func runToken(secret, subject, issuer string, ttl time.Duration, out io.Writer) error {
	s := auth.NewSigner(secret, subject, "")
	s.Issuer = issuer
	s.TTL = ttl
	tok, err := s.Token()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
