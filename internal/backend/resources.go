package backend

import (
	"context"
	"fmt"
	"net/http"

	"dilution-ops-backend/internal/pharmacy"
)

// Resource is a thin CRUD wrapper over one backend collection. The payloads
// are passed through untouched.
type Resource struct {
	client *Client
	path   string
	noun   string
}

// Resource returns the CRUD wrapper for path, e.g. "/users" with noun "user".
func (c *Client) Resource(path, noun string) *Resource {
	return &Resource{client: c, path: path, noun: noun}
}

// Names of the pass-through collections served under /api/resources/:name.
const (
	ResourceUsers        = "users"
	ResourceHardware     = "hardware"
	ResourceInventory    = "inventory"
	ResourceStock        = "stock"
	ResourceFormulas     = "formulas"
	ResourceDilutions    = "dilutions"
	ResourceReports      = "reports"
	ResourceConsumptions = "consumptions"
)

// Resources returns the pass-through collections keyed by name.
func (c *Client) Resources() map[string]*Resource {
	return map[string]*Resource{
		ResourceUsers:        c.Resource("/users", "user"),
		ResourceHardware:     c.Resource("/hardware", "hardware"),
		ResourceInventory:    c.Resource("/inventory", "inventory item"),
		ResourceStock:        c.Resource("/stock", "stock batch"),
		ResourceFormulas:     c.Resource("/formulas", "formula"),
		ResourceDilutions:    c.Resource("/dilutions", "dilution"),
		ResourceReports:      c.Resource("/reports", "report"),
		ResourceConsumptions: c.Resource("/consumptions", "consumption"),
	}
}

// List fetches the whole collection.
func (r *Resource) List(ctx context.Context, creds Credentials) ([]pharmacy.Record, error) {
	var out []pharmacy.Record
	if err := r.client.do(ctx, creds, "fetch "+r.noun+" list", http.MethodGet, r.path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts a new record.
func (r *Resource) Create(ctx context.Context, creds Credentials, rec pharmacy.Record) (pharmacy.Record, error) {
	var out pharmacy.Record
	if err := r.client.do(ctx, creds, "add "+r.noun, http.MethodPost, r.path, rec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces record id.
func (r *Resource) Update(ctx context.Context, creds Credentials, id int64, rec pharmacy.Record) (pharmacy.Record, error) {
	var out pharmacy.Record
	if err := r.client.do(ctx, creds, "update "+r.noun, http.MethodPut, fmt.Sprintf("%s/%d", r.path, id), rec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes record id.
func (r *Resource) Delete(ctx context.Context, creds Credentials, id int64) error {
	return r.client.do(ctx, creds, "delete "+r.noun, http.MethodDelete, fmt.Sprintf("%s/%d", r.path, id), nil, nil)
}

// MyProfile returns the logged-in user's profile.
func (c *Client) MyProfile(ctx context.Context, creds Credentials) (pharmacy.Record, error) {
	var out pharmacy.Record
	if err := c.do(ctx, creds, "fetch profile", http.MethodGet, "/users/me", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMyProfile updates the logged-in user's profile.
func (c *Client) UpdateMyProfile(ctx context.Context, creds Credentials, rec pharmacy.Record) (pharmacy.Record, error) {
	var out pharmacy.Record
	if err := c.do(ctx, creds, "update profile", http.MethodPut, "/users/me", rec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddStockBatch adds a stock batch to an inventory master.
func (c *Client) AddStockBatch(ctx context.Context, creds Credentials, inventoryID int64, rec pharmacy.Record) (pharmacy.Record, error) {
	var out pharmacy.Record
	path := fmt.Sprintf("/inventory/%d/stock", inventoryID)
	if err := c.do(ctx, creds, "add stock batch", http.MethodPost, path, rec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MyNotifications lists the caller's notifications.
func (c *Client) MyNotifications(ctx context.Context, creds Credentials) ([]pharmacy.Notification, error) {
	var out []pharmacy.Notification
	if err := c.do(ctx, creds, "fetch notifications", http.MethodGet, "/notifications/mine", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, creds Credentials, id int64) error {
	return c.do(ctx, creds, "mark notification as read", http.MethodPut, fmt.Sprintf("/notifications/read/%d", id), nil, nil)
}

// GenerateReport asks the backend to build a report.
func (c *Client) GenerateReport(ctx context.Context, creds Credentials, rec pharmacy.Record) (pharmacy.Record, error) {
	var out pharmacy.Record
	if err := c.do(ctx, creds, "generate report", http.MethodPost, "/reports/generate", rec, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dashboard returns the dashboard aggregates for the last days days.
func (c *Client) Dashboard(ctx context.Context, creds Credentials, days int) (pharmacy.Record, error) {
	if days <= 0 {
		days = 7
	}
	var out pharmacy.Record
	if err := c.do(ctx, creds, "fetch dashboard data", http.MethodGet, fmt.Sprintf("/dashboard?days=%d", days), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReportPDF downloads a generated report as PDF bytes.
func (c *Client) ReportPDF(ctx context.Context, creds Credentials, reportID int64) ([]byte, error) {
	return c.send(ctx, creds, "download report", http.MethodGet, fmt.Sprintf("/reports/%d/pdf", reportID), nil)
}
