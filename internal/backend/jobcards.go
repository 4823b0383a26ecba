package backend

import (
	"context"
	"fmt"
	"net/http"

	"dilution-ops-backend/internal/pharmacy"
)

// ListJobCards returns every job card visible to the caller.
func (c *Client) ListJobCards(ctx context.Context, creds Credentials) ([]pharmacy.JobCard, error) {
	var out []pharmacy.JobCard
	if err := c.do(ctx, creds, "fetch job cards", http.MethodGet, "/jobcards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateJobCard posts a new job card.
func (c *Client) CreateJobCard(ctx context.Context, creds Credentials, card pharmacy.NewJobCard) (*pharmacy.JobCard, error) {
	var out pharmacy.JobCard
	if err := c.do(ctx, creds, "add job card", http.MethodPost, "/jobcards", card, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateJobCard applies an approver's status change.
func (c *Client) UpdateJobCard(ctx context.Context, creds Credentials, id int64, update pharmacy.JobCardUpdate) (*pharmacy.JobCard, error) {
	var out pharmacy.JobCard
	if err := c.do(ctx, creds, "update job card", http.MethodPut, fmt.Sprintf("/jobcards/%d", id), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteJobCard removes a job card.
func (c *Client) DeleteJobCard(ctx context.Context, creds Credentials, id int64) error {
	return c.do(ctx, creds, "delete job card", http.MethodDelete, fmt.Sprintf("/jobcards/%d", id), nil, nil)
}

// ExecuteJobCard asks the backend to hand an approved job card to the robot.
func (c *Client) ExecuteJobCard(ctx context.Context, creds Credentials, id int64) (*pharmacy.ExecuteResult, error) {
	var out pharmacy.ExecuteResult
	if err := c.do(ctx, creds, "execute job card", http.MethodPost, fmt.Sprintf("/jobcards/%d/execute", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
