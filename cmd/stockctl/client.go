package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// apiClient talks to a running stocksyncd
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.SetHeader("X-Correlation-ID", uuid.New().String())
		return nil
	})
	return &apiClient{http: c}
}

type apiError struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId"`
}

func (c *apiClient) call(method, path string, body any) ([]byte, error) {
	r := c.http.R()
	switch b := body.(type) {
	case nil:
	case []byte:
		r.SetHeader("Content-Type", "application/octet-stream").SetBody(b)
	default:
		r.SetHeader("Content-Type", "application/json").SetBody(b)
	}
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		var ae apiError
		if json.Unmarshal(resp.Body(), &ae) == nil && ae.Error != "" {
			return nil, fmt.Errorf("http %d: %s (correlation %s)", resp.StatusCode(), ae.Error, ae.CorrelationID)
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return resp.Body(), nil
}

// printJSON re-indents a JSON response
func printJSON(out io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func (c *apiClient) getJSON(path string, out io.Writer) error {
	raw, err := c.call("GET", path, nil)
	if err != nil {
		return err
	}
	return printJSON(out, raw)
}

func (c *apiClient) postJSON(path string, body any, out io.Writer) error {
	raw, err := c.call("POST", path, body)
	if err != nil {
		return err
	}
	return printJSON(out, raw)
}
