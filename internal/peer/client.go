// Package peer talks to the Linx point-of-sale platform over its local HTTP
// sync interface. The client never retries: retry policy belongs to the
// pending-sync queue.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Deliver pushes one locally-created sale to Linx. Network errors, timeouts
// and non-2xx statuses are all reported as a plain failure; the caller does
// not distinguish between them.
func (c *Client) Deliver(ctx context.Context, sale json.RawMessage) (json.RawMessage, error) {
	return c.post(ctx, "/sync/cc-sale", sale)
}

// ListProducts fetches the Linx product listing for the proxy endpoint.
func (c *Client) ListProducts(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sync/products", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("linx api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
