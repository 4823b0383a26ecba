// Package jobcard implements the job card creation wizard and the job card
// board (listing, status updates, deletion and execution).
package jobcard

import (
	"context"

	"dilution-ops-backend/internal/backend"
	"dilution-ops-backend/internal/pharmacy"
)

// Gateway is the slice of the backend API the job card workflow uses.
type Gateway interface {
	ListJobCards(ctx context.Context, creds backend.Credentials) ([]pharmacy.JobCard, error)
	CreateJobCard(ctx context.Context, creds backend.Credentials, card pharmacy.NewJobCard) (*pharmacy.JobCard, error)
	UpdateJobCard(ctx context.Context, creds backend.Credentials, id int64, update pharmacy.JobCardUpdate) (*pharmacy.JobCard, error)
	DeleteJobCard(ctx context.Context, creds backend.Credentials, id int64) error
	ExecuteJobCard(ctx context.Context, creds backend.Credentials, id int64) (*pharmacy.ExecuteResult, error)
	CreatePrescription(ctx context.Context, creds backend.Credentials, p pharmacy.NewPrescription) (*pharmacy.PrescriptionDetail, error)
}

var _ Gateway = (*backend.Client)(nil)
