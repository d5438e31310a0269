package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ErrMissingToken is returned by authenticated calls made without a token.
var ErrMissingToken = errors.New("access token required for authenticated call")

// APIError represents a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradovate api error %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// Get performs an authenticated GET and returns the raw JSON body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, token string) (json.RawMessage, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	return c.do(ctx, http.MethodGet, path, query, nil, token)
}

// Post performs a POST with a JSON body. An empty token sends no
// Authorization header, which the access-token request relies on.
func (c *Client) Post(ctx context.Context, path string, body any, token string) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, token)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte, token string) (json.RawMessage, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("rest request", "method", method, "path", path, "query", query.Encode())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    http.StatusText(resp.StatusCode),
			Body:       data,
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(data), nil
}

// decode unmarshals a raw body into result with a path-scoped error.
func decode(path string, raw json.RawMessage, result any) error {
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	return nil
}
