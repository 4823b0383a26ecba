package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dilution-ops-backend/internal/apperr"
)

// Client talks to the robot control PHP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a robot API client.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchLogs returns the current task history snapshot.
func (c *Client) FetchLogs(ctx context.Context) ([]TaskLog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fetch_log.php", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &apperr.NetworkError{Op: "fetch robot task logs", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.APIError{
			Status:  resp.StatusCode,
			Message: "Failed to fetch robot task logs. The API may be down.",
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var logs []TaskLog
	if err := json.Unmarshal(body, &logs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal robot task logs: %w", err)
	}
	return logs, nil
}

// Trigger starts a task and returns the identifier the robot API assigned.
func (c *Client) Trigger(ctx context.Context, taskName, message string) (TaskID, error) {
	if strings.TrimSpace(taskName) == "" {
		return "", apperr.Invalid("task_name", "task name required")
	}

	form := url.Values{}
	form.Set("task_name", taskName)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trigger.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &apperr.NetworkError{Op: "trigger task", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &apperr.APIError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Failed to trigger task. Server responded with: %s", strings.TrimSpace(string(body))),
		}
	}

	return DecodeTriggerReply(body).TaskID()
}
