// Package console holds the per-session state of the "Jobcard & Robot
// Control" page: the active tab, the in-memory verification flag, the job
// card board and wizard, the verification gate and the robot panel.
package console

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/gate"
	"dilution-ops-backend/internal/jobcard"
	"dilution-ops-backend/internal/pharmacy"
	"dilution-ops-backend/internal/robot"
	"dilution-ops-backend/internal/session"
)

// Tab is a page tab.
type Tab string

const (
	Management Tab = "management"
	Execution  Tab = "execution"
)

// ParseTab validates a tab name.
func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case Management, Execution:
		return Tab(s), nil
	default:
		return "", apperr.Invalid("tab", fmt.Sprintf("unknown tab %q", s))
	}
}

// Deps are the collaborators shared by every console.
type Deps struct {
	Gateway       jobcard.Gateway
	Device        gate.Device
	Robot         robot.Source
	PollInterval  time.Duration
	DismissDelay  time.Duration
	RobotInterval time.Duration
}

// WizardView is the render state of the creation wizard.
type WizardView struct {
	State      jobcard.WizardState  `json:"state"`
	Draft      *pharmacy.NewJobCard `json:"draft,omitempty"`
	Submitting bool                 `json:"submitting"`
}

// Snapshot is the whole page state.
type Snapshot struct {
	Tab      Tab                  `json:"tab"`
	Verified bool                 `json:"verified"`
	Gate     gate.Snapshot        `json:"gate"`
	Banner   string               `json:"banner,omitempty"`
	Wizard   *WizardView          `json:"wizard,omitempty"`
	Robot    *robot.PanelSnapshot `json:"robot,omitempty"`
}

// Console is the page state of one session.
type Console struct {
	sess   *session.Session
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	board *jobcard.Board
	gate  *gate.Gate
	panel *robot.Panel

	mu       sync.Mutex
	tab      Tab
	verified bool
	wizard   *jobcard.Wizard
	closed   bool
}

// New creates a console on the management tab. Cancelling parent or calling
// Close releases every timer it owns.
func New(parent context.Context, sess *session.Session, deps Deps) *Console {
	ctx, cancel := context.WithCancel(parent)
	c := &Console{
		sess:   sess,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		board:  jobcard.NewBoard(deps.Gateway, sess),
		panel:  robot.NewPanel(deps.Robot, deps.RobotInterval),
		tab:    Management,
	}
	c.gate = gate.New(ctx, deps.Device, gate.Options{
		PollInterval: deps.PollInterval,
		DismissDelay: deps.DismissDelay,
		OnVerified:   c.onVerified,
		OnClose:      c.onGateClosed,
	})
	c.board.OnExecuted(func() {
		if err := c.SelectTab(Execution); err != nil {
			zap.S().Warnf("console %s: switching to execution: %v", sess.ID, err)
		}
	})
	return c
}

// Session returns the owning session.
func (c *Console) Session() *session.Session {
	return c.sess
}

// Board returns the job card list.
func (c *Console) Board() *jobcard.Board {
	return c.board
}

// Tab returns the active tab.
func (c *Console) Tab() Tab {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tab
}

// Verified reports whether this console passed the face check.
func (c *Console) Verified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified
}

// SelectTab switches tabs. Opening the execution tab without a verification
// shows the gate; leaving it hides the gate and stops the robot panel.
func (c *Console) SelectTab(tab Tab) error {
	if _, err := ParseTab(string(tab)); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("console closed: %w", apperr.ErrUnauthenticated)
	}
	c.tab = tab
	verified := c.verified
	c.mu.Unlock()

	switch tab {
	case Execution:
		if !verified {
			return c.gate.Show()
		}
		c.panel.Start(c.ctx)
	case Management:
		c.gate.Hide()
		c.panel.Stop()
	}
	return nil
}

func (c *Console) onVerified(user string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.verified = true
	c.tab = Execution
	c.mu.Unlock()

	zap.S().Infow("console verified", "session", c.sess.ID, "user", c.sess.Username, "face", user)
	c.panel.Start(c.ctx)
}

func (c *Console) onGateClosed() {
	c.mu.Lock()
	c.tab = Management
	c.mu.Unlock()
}

// GateSnapshot returns the overlay state.
func (c *Console) GateSnapshot() gate.Snapshot {
	return c.gate.Snapshot()
}

// ShowGate opens the overlay explicitly.
func (c *Console) ShowGate() error {
	return c.gate.Show()
}

// RetryGate restarts a failed verification.
func (c *Console) RetryGate() error {
	return c.gate.Retry()
}

// CloseGate dismisses a failed verification and returns to management.
func (c *Console) CloseGate() error {
	return c.gate.Close()
}

// HideGate removes the overlay without changing tabs.
func (c *Console) HideGate() {
	c.gate.Hide()
}

// Execute runs an Approved job card. It requires a verified console; without
// one the gate is shown and the call is rejected.
func (c *Console) Execute(ctx context.Context, id int64) (string, error) {
	if !c.Verified() {
		if err := c.SelectTab(Execution); err != nil {
			return "", err
		}
		return "", fmt.Errorf("security verification is required: %w", apperr.ErrNotAllowed)
	}
	return c.board.Execute(ctx, id)
}

// StartWizard opens a fresh creation wizard, discarding any previous one.
func (c *Console) StartWizard() WizardView {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wizard = jobcard.NewWizard(c.deps.Gateway, c.sess, func(ctx context.Context) {
		if err := c.board.Refresh(ctx); err != nil {
			zap.S().Warnf("job card list refresh failed: %v", err)
		}
	})
	return viewOf(c.wizard)
}

func (c *Console) currentWizard() (*jobcard.Wizard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wizard == nil {
		return nil, fmt.Errorf("no wizard open: %w", apperr.ErrInvalidTransition)
	}
	return c.wizard, nil
}

// WizardNext completes step 1.
func (c *Console) WizardNext(in jobcard.RequestInput) (WizardView, error) {
	w, err := c.currentWizard()
	if err != nil {
		return WizardView{}, err
	}
	if _, err := w.Next(in); err != nil {
		return viewOf(w), err
	}
	return viewOf(w), nil
}

// WizardSubmit completes step 2 and creates the job card.
func (c *Console) WizardSubmit(ctx context.Context, in jobcard.PrescriptionInput) (*pharmacy.JobCard, error) {
	w, err := c.currentWizard()
	if err != nil {
		return nil, err
	}
	return w.Submit(ctx, in)
}

// WizardCancel discards the draft.
func (c *Console) WizardCancel() error {
	w, err := c.currentWizard()
	if err != nil {
		return err
	}
	return w.Cancel()
}

// Trigger starts a robot task from the execution view.
func (c *Console) Trigger(ctx context.Context, taskName, message string) (robot.TaskID, error) {
	if !c.Verified() {
		return "", fmt.Errorf("security verification is required: %w", apperr.ErrNotAllowed)
	}
	return c.panel.Trigger(ctx, taskName, message)
}

// RobotSnapshot returns the robot panel state. It is only visible to a
// verified console.
func (c *Console) RobotSnapshot() (robot.PanelSnapshot, error) {
	if !c.Verified() {
		return robot.PanelSnapshot{}, fmt.Errorf("security verification is required: %w", apperr.ErrNotAllowed)
	}
	return c.panel.Snapshot(), nil
}

// Snapshot returns the whole page state.
func (c *Console) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Tab:      c.tab,
		Verified: c.verified,
	}
	if c.wizard != nil {
		v := viewOf(c.wizard)
		s.Wizard = &v
	}
	c.mu.Unlock()

	s.Gate = c.gate.Snapshot()
	s.Banner = c.board.Banner()
	if s.Verified {
		p := c.panel.Snapshot()
		s.Robot = &p
	}
	return s
}

// Close stops the gate and the robot panel. A closed console rejects tab changes.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.gate.Hide()
	c.panel.Stop()
}

func viewOf(w *jobcard.Wizard) WizardView {
	return WizardView{State: w.State(), Draft: w.Draft(), Submitting: w.Submitting()}
}
