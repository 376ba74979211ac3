// Package rest is a small JSON-over-HTTP client for the third-party REST APIs (Blockstream, TronGrid, CoinGecko,
// Brevo).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TimeoutDefault limits every call.
const TimeoutDefault = 15 * time.Second

// maxBody is the maximum size of an error body included in errors.
const maxBody = 256

// ErrNotFound is returned when the server replies 404.
var ErrNotFound = errors.New("not found")

// Client calls a REST API at base url, adding header to every request.
type Client struct {
	base   string
	header http.Header
	hc     *http.Client
}

// New returns a client for the base url.
func New(base string, header http.Header) *Client {
	if header == nil {
		header = http.Header{}
	}

	return &Client{base: strings.TrimRight(base, "/"), header: header, hc: &http.Client{Timeout: TimeoutDefault}}
}

// Get decodes into v the JSON reply to GET path.
func (c *Client) Get(ctx context.Context, path string, v interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, v)
}

// Post sends body as JSON to path and decodes the reply into v.
func (c *Client) Post(ctx context.Context, path string, body, v interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request to %s: %w", path, err)
	}

	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), v)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("creating request to %s: %w", path, err)
	}

	for k, vs := range c.header {
		for _, h := range vs {
			req.Header.Add(k, h)
		}
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))

		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err = json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding reply from %s: %w", path, err)
	}

	return nil
}
