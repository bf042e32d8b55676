// Package restjson is the shared JSON-over-HTTP transport for providers
// without an official Go SDK in the stack (Ollama, Qdrant).
package restjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

const maxErrorBody = 2048

type Client struct {
	provider string
	baseURL  string
	header   http.Header
	http     *http.Client
}

// New returns a client for one provider. header is copied onto every request.
func New(provider, baseURL string, timeout time.Duration, header http.Header) *Client {
	return &Client{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		header:   header.Clone(),
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) Post(ctx context.Context, path string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s %s request: %w", c.provider, operation, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out, operation)
}

// Get discards the response body when out is nil.
func (c *Client) Get(ctx context.Context, path string, out any, operation string) error {
	return c.do(ctx, http.MethodGet, path, nil, out, operation)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", c.provider, operation, err)
	}
	for key, values := range c.header {
		req.Header[key] = values
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", c.provider, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &resilience.StatusError{
			Provider:   c.provider,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", c.provider, operation, err)
	}
	return nil
}
