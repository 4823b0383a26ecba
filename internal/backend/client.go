// Package backend is the gateway to the pharmacy REST API. Every call attaches
// the caller's bearer token and turns non-2xx answers into *apperr.APIError.
package backend

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

	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
)

// Credentials supplies the bearer token for a call. An empty token means no
// Authorization header is sent and the server rejects the call.
type Credentials interface {
	AccessToken() string
}

// Token is a literal Credentials value.
type Token string

// AccessToken implements Credentials.
func (t Token) AccessToken() string { return string(t) }

// Anonymous is used for calls made before a session exists.
var Anonymous Credentials = Token("")

// Client talks to the pharmacy backend.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a backend client rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// errorBody is the shape the backend uses for failures.
type errorBody struct {
	Message string `json:"message"`
}

// do performs one JSON request. op names the operation for generic error
// messages ("add job card" -> "failed to add job card: 500 Internal Server Error").
func (c *Client) do(ctx context.Context, creds Credentials, op, method, path string, body, out any) error {
	raw, err := c.send(ctx, creds, op, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// send performs the request and returns the raw 2xx body.
func (c *Client) send(ctx context.Context, creds Credentials, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds != nil {
		if token := creds.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		zap.S().Warnw("backend request failed", "op", op, "path", path, "error", err)
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(op, resp.StatusCode, raw)
	}
	return raw, nil
}

func decodeError(op string, status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return &apperr.APIError{Status: status, Message: body.Message}
	}
	return &apperr.APIError{
		Status:  status,
		Message: fmt.Sprintf("failed to %s: %d %s", op, status, http.StatusText(status)),
	}
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *apperr.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
