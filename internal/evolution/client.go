// Package evolution integrates with the Evolution API: sending WhatsApp
// messages on behalf of the retail system and ingesting the provider's
// webhook events.
package evolution

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

type Client struct {
	baseURL  string
	apiKey   string
	instance string
	http     *http.Client
}

type SendResult struct {
	MessageID string
	Raw       json.RawMessage
}

func NewClient(baseURL string, apiKey string, instance string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		instance: instance,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) SendText(ctx context.Context, number string, text string) (*SendResult, error) {
	payload := map[string]string{
		"number": number,
		"text":   text,
	}
	return c.send(ctx, "/message/sendText/", payload)
}

func (c *Client) SendMedia(ctx context.Context, number string, caption string, mediaURL string) (*SendResult, error) {
	payload := map[string]string{
		"number":    number,
		"caption":   caption,
		"mediatype": "document",
		"media":     mediaURL,
	}
	return c.send(ctx, "/message/sendMedia/", payload)
}

func (c *Client) send(ctx context.Context, path string, payload any) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+c.instance, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("evolution api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	// The message id is informational only; a body we cannot parse still
	// counts as a successful send.
	_ = json.Unmarshal(respBody, &parsed)

	return &SendResult{MessageID: parsed.Key.ID, Raw: respBody}, nil
}
