// Package pharmacy holds the wire types of the pharmacy backend.
package pharmacy

import (
	"fmt"
	"time"
)

// Role is the role of a dashboard user.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RolePharmacist Role = "Pharmacist"
	RoleDoctor     Role = "Doctor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePharmacist, RoleDoctor:
		return true
	}
	return false
}

// Status is the lifecycle status of a job card.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusApproved   Status = "Approved"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusRejected   Status = "Rejected"
)

// Statuses lists every job card status in lifecycle order.
var Statuses = []Status{StatusPending, StatusApproved, StatusProcessing, StatusCompleted, StatusRejected}

// ParseStatus validates s against the known statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job card status %q", s)
}

// LoginResponse is the body of POST /auth/login.
type LoginResponse struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	AccessToken string `json:"accessToken"`
}

// DilutionRef is the dilution embedded in a job card listing.
type DilutionRef struct {
	DilutionID int64  `json:"dilutionId"`
	Name       string `json:"name"`
}

// UserRef is the requester embedded in a job card listing.
type UserRef struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// PrescriptionDetail is the patient data attached to exactly one job card.
type PrescriptionDetail struct {
	PrescriptionID int64   `json:"prescriptionId"`
	Age            int     `json:"age"`
	Weight         float64 `json:"weight"`
	Allergies      string  `json:"allergies"`
}

// NewPrescription is the body of POST /prescriptions.
type NewPrescription struct {
	Age       int     `json:"age"`
	Weight    float64 `json:"weight"`
	Allergies string  `json:"allergies"`
}

// JobCard is a request to prepare a dilution for a patient.
type JobCard struct {
	JobcardID        int64      `json:"jobcardId"`
	DilutionID       int64      `json:"dilutionId"`
	UserID           int64      `json:"userId"`
	Quantity         int        `json:"quantity"`
	EmergencyLevel   int        `json:"emergencyLevel"`
	Purpose          string     `json:"purpose"`
	PrescriptionID   int64      `json:"prescriptionId"`
	Status           Status     `json:"status"`
	HardwareID       *int64     `json:"hardwareId,omitempty"`
	ApprovedByUserID *int64     `json:"approvedByUserId,omitempty"`
	ApproveDate      *time.Time `json:"approveDate,omitempty"`
	RequestDate      *time.Time `json:"requestDate,omitempty"`

	Dilution     *DilutionRef        `json:"Dilution,omitempty"`
	Prescription *PrescriptionDetail `json:"PrescriptionDetail,omitempty"`
	Requester    *UserRef            `json:"requester,omitempty"`
}

// NewJobCard is the body of POST /jobcards.
type NewJobCard struct {
	DilutionID     int64  `json:"dilutionId"`
	UserID         int64  `json:"userId"`
	Quantity       int    `json:"quantity"`
	Status         Status `json:"status"`
	EmergencyLevel int    `json:"emergencyLevel"`
	Purpose        string `json:"purpose"`
	PrescriptionID int64  `json:"prescriptionId,omitempty"`
}

// JobCardUpdate is the body of PUT /jobcards/:id. HardwareID is sent as null
// when unassigned.
type JobCardUpdate struct {
	Status           Status    `json:"status"`
	ApprovedByUserID int64     `json:"approvedByUserId"`
	HardwareID       *int64    `json:"hardwareId"`
	ApproveDate      time.Time `json:"approveDate"`
}

// ExecuteResult is the body returned by POST /jobcards/:id/execute.
type ExecuteResult struct {
	Message string `json:"message"`
}

// Dilution is a named drug-mixing procedure linked to a formula.
type Dilution struct {
	DilutionID  int64  `json:"dilutionId"`
	Name        string `json:"name"`
	FormulaID   int64  `json:"formulaId"`
	Description string `json:"description,omitempty"`
}

// Hardware is a device a job card can be assigned to.
type Hardware struct {
	HardwareID          int64      `json:"hardwareId"`
	Name                string     `json:"name"`
	HardwarePort        string     `json:"hardwarePort,omitempty"`
	Status              string     `json:"status,omitempty"`
	LastMaintenanceDate *time.Time `json:"lastMaintenanceDate,omitempty"`
}

// Notification is an in-app notification for the logged-in user.
type Notification struct {
	NotificationID int64      `json:"notificationId"`
	Message        string     `json:"message"`
	IsRead         bool       `json:"isRead"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
}

// Record is a pass-through payload for the thin CRUD resources (users,
// inventory, formulas, reports, consumptions) whose shape this service does
// not interpret.
type Record map[string]any
