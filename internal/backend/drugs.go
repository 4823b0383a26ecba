package backend

import (
	"context"
	"fmt"
	"net/http"

	"dilution-ops-backend/internal/pharmacy"
)

// ListPrescriptions returns all prescription records.
func (c *Client) ListPrescriptions(ctx context.Context, creds Credentials) ([]pharmacy.PrescriptionDetail, error) {
	var out []pharmacy.PrescriptionDetail
	if err := c.do(ctx, creds, "fetch prescriptions", http.MethodGet, "/prescriptions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePrescription posts patient details and returns the stored record.
func (c *Client) CreatePrescription(ctx context.Context, creds Credentials, p pharmacy.NewPrescription) (*pharmacy.PrescriptionDetail, error) {
	var out pharmacy.PrescriptionDetail
	if err := c.do(ctx, creds, "add prescription", http.MethodPost, "/prescriptions", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePrescription replaces a prescription record.
func (c *Client) UpdatePrescription(ctx context.Context, creds Credentials, id int64, p pharmacy.NewPrescription) (*pharmacy.PrescriptionDetail, error) {
	var out pharmacy.PrescriptionDetail
	if err := c.do(ctx, creds, "update prescription", http.MethodPut, fmt.Sprintf("/prescriptions/%d", id), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePrescription removes a prescription record.
func (c *Client) DeletePrescription(ctx context.Context, creds Credentials, id int64) error {
	return c.do(ctx, creds, "delete prescription", http.MethodDelete, fmt.Sprintf("/prescriptions/%d", id), nil, nil)
}

// ListDilutions returns the dilution catalogue.
func (c *Client) ListDilutions(ctx context.Context, creds Credentials) ([]pharmacy.Dilution, error) {
	var out []pharmacy.Dilution
	if err := c.do(ctx, creds, "fetch dilutions", http.MethodGet, "/dilutions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHardware returns the registered devices.
func (c *Client) ListHardware(ctx context.Context, creds Credentials) ([]pharmacy.Hardware, error) {
	var out []pharmacy.Hardware
	if err := c.do(ctx, creds, "fetch hardware", http.MethodGet, "/hardware", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
