// Package faceid is the client for the face recognition module that guards
// the robot controls.
package faceid

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

// VerificationStatus is the body of GET /check_verification.
type VerificationStatus struct {
	Verified bool   `json:"verified"`
	User     string `json:"user,omitempty"`
}

// ActionResult is the body returned by the registration endpoints.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client talks to the face-ID device.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a device client rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StartVerification switches the device into verification mode.
func (c *Client) StartVerification(ctx context.Context) error {
	return c.post(ctx, "/start_verification", nil, nil)
}

// StartRegistration switches the device into registration mode.
func (c *Client) StartRegistration(ctx context.Context) error {
	return c.post(ctx, "/start_registration", nil, nil)
}

// VideoFeedURL returns the live stream URL, cache-busted with at.
func (c *Client) VideoFeedURL(at time.Time) string {
	return fmt.Sprintf("%s/video_feed?t=%d", c.baseURL, at.UnixMilli())
}

// CheckVerification polls the current verification result.
func (c *Client) CheckVerification(ctx context.Context) (*VerificationStatus, error) {
	var out VerificationStatus
	if err := c.get(ctx, "/check_verification", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type nameRequest struct {
	Name string `json:"name"`
}

// RegisterFace enrols the face currently in front of the camera under name.
func (c *Client) RegisterFace(ctx context.Context, name string) (*ActionResult, error) {
	var out ActionResult
	if err := c.post(ctx, "/snap_face", nameRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes an enrolled face.
func (c *Client) DeleteUser(ctx context.Context, name string) (*ActionResult, error) {
	var out ActionResult
	if err := c.post(ctx, "/delete_user", nameRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisteredUsers lists the enrolled names.
func (c *Client) RegisteredUsers(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.get(ctx, "/get_users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.send(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: received status code %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
