package jobcard

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/pharmacy"
	"dilution-ops-backend/internal/session"
)

// WizardState is a step of the job card creation wizard.
type WizardState string

const (
	CollectingRequest      WizardState = "collecting_request"
	CollectingPrescription WizardState = "collecting_prescription"
	Submitted              WizardState = "submitted"
	Cancelled              WizardState = "cancelled"
)

var wizardTransitions = map[WizardState][]WizardState{
	CollectingRequest:      {CollectingPrescription, Cancelled},
	CollectingPrescription: {Submitted, Cancelled},
}

func canTransition(from, to WizardState) bool {
	for _, next := range wizardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequestInput is step 1: what to prepare and how urgently.
type RequestInput struct {
	DilutionID     int64  `json:"dilutionId"`
	Quantity       int    `json:"quantity" validate:"min=1"`
	EmergencyLevel int    `json:"emergencyLevel" validate:"min=1,max=5"`
	Purpose        string `json:"purpose"`
}

// PrescriptionInput is step 2: the patient data. Age and weight are pointers
// so a missing value is distinguishable from zero.
type PrescriptionInput struct {
	Age       *int     `json:"age" validate:"omitempty,gt=0"`
	Weight    *float64 `json:"weight" validate:"omitempty,gt=0"`
	Allergies string   `json:"allergies"`
}

// OrphanedPrescriptionError reports a job card creation that failed after its
// prescription was stored. The prescription stays on the server.
type OrphanedPrescriptionError struct {
	PrescriptionID int64
	Err            error
}

func (e *OrphanedPrescriptionError) Error() string {
	return e.Err.Error()
}

func (e *OrphanedPrescriptionError) Unwrap() error {
	return e.Err
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Wizard is a single run of the two step job card creation flow.
type Wizard struct {
	mu         sync.Mutex
	gw         Gateway
	sess       *session.Session
	state      WizardState
	draft      *pharmacy.NewJobCard
	submitting bool
	onCreated  func(ctx context.Context)
}

// NewWizard starts a wizard in CollectingRequest. onCreated runs after a
// successful submission, typically a full list refresh.
func NewWizard(gw Gateway, sess *session.Session, onCreated func(ctx context.Context)) *Wizard {
	return &Wizard{
		gw:        gw,
		sess:      sess,
		state:     CollectingRequest,
		onCreated: onCreated,
	}
}

// State returns the current step.
func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Draft returns a copy of the packaged step 1 data, or nil before Next.
func (w *Wizard) Draft() *pharmacy.NewJobCard {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft == nil {
		return nil
	}
	d := *w.draft
	return &d
}

// Submitting reports whether step 2 is in flight.
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// Next validates step 1 and packages the draft. It makes no network calls.
func (w *Wizard) Next(in RequestInput) (*pharmacy.NewJobCard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !canTransition(w.state, CollectingPrescription) {
		return nil, fmt.Errorf("next from %s: %w", w.state, apperr.ErrInvalidTransition)
	}
	if in.DilutionID == 0 {
		return nil, apperr.Invalid("dilutionId", "dilution required")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.EmergencyLevel == 0 {
		in.EmergencyLevel = 1
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	w.draft = &pharmacy.NewJobCard{
		DilutionID:     in.DilutionID,
		UserID:         w.sess.UserID,
		Quantity:       in.Quantity,
		Status:         pharmacy.StatusPending,
		EmergencyLevel: in.EmergencyLevel,
		Purpose:        in.Purpose,
	}
	w.state = CollectingPrescription
	d := *w.draft
	return &d, nil
}

// Submit validates step 2, creates the prescription and then the job card.
// The two calls are not atomic; see OrphanedPrescriptionError.
func (w *Wizard) Submit(ctx context.Context, in PrescriptionInput) (*pharmacy.JobCard, error) {
	w.mu.Lock()
	if !canTransition(w.state, Submitted) {
		state := w.state
		w.mu.Unlock()
		return nil, fmt.Errorf("submit from %s: %w", state, apperr.ErrInvalidTransition)
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, apperr.ErrBusy
	}
	if in.Age == nil || in.Weight == nil {
		w.mu.Unlock()
		return nil, apperr.Invalid("prescription", "patient age and weight are required")
	}
	if err := validateStruct(in); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	draft := *w.draft
	w.submitting = true
	w.mu.Unlock()

	card, err := w.create(ctx, draft, in)

	w.mu.Lock()
	w.submitting = false
	if err == nil {
		if w.state == CollectingPrescription {
			w.state = Submitted
		}
		w.draft = nil
	}
	w.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if w.onCreated != nil {
		w.onCreated(ctx)
	}
	return card, nil
}

func (w *Wizard) create(ctx context.Context, draft pharmacy.NewJobCard, in PrescriptionInput) (*pharmacy.JobCard, error) {
	prescription, err := w.gw.CreatePrescription(ctx, w.sess, pharmacy.NewPrescription{
		Age:       *in.Age,
		Weight:    *in.Weight,
		Allergies: in.Allergies,
	})
	if err != nil {
		return nil, err
	}

	draft.PrescriptionID = prescription.PrescriptionID
	card, err := w.gw.CreateJobCard(ctx, w.sess, draft)
	if err != nil {
		zap.S().Warnw("job card creation failed after prescription was stored",
			"prescription_id", prescription.PrescriptionID, "user", w.sess.Username, "error", err)
		return nil, &OrphanedPrescriptionError{PrescriptionID: prescription.PrescriptionID, Err: err}
	}
	return card, nil
}

// Cancel discards the draft without contacting the server.
func (w *Wizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !canTransition(w.state, Cancelled) {
		return fmt.Errorf("cancel from %s: %w", w.state, apperr.ErrInvalidTransition)
	}
	w.state = Cancelled
	w.draft = nil
	return nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.Invalid(fe.Field(), fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()))
	}
	return apperr.Invalid("", err.Error())
}
