// Package api is the REST client for the DevLink backend. Every response
// body is wrapped in a {"data": ...} envelope; errors carry {"message": ...}.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TokenSource supplies the bearer token attached to every request. An empty
// token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed-token TokenSource, mostly for tests.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// APIError is a non-2xx response decoded from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client talks to the backend REST surface.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource
}

// ClientOptions customizes a Client.
type ClientOptions struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient builds a Client rooted at base, authenticating via tokens.
func NewClient(base string, tokens TokenSource, opts *ClientOptions) *Client {
	c := &Client{
		base:   base,
		tokens: tokens,
	}
	if opts != nil && opts.HTTPClient != nil {
		c.http = opts.HTTPClient
	} else {
		timeout := 80 * time.Second
		if opts != nil && opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

// dataEnvelope matches the backend's uniform success wrapper.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr errorEnvelope
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}

	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("api: decode response envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("api: decode response data: %w", err)
	}
	return nil
}
