package jobcard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/metrics"
	"dilution-ops-backend/internal/pharmacy"
	"dilution-ops-backend/internal/session"
)

// Action is something a user may do to a job card row.
type Action string

const (
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
)

// Actions lists the actions exposed for card. Execute is only offered for
// Approved cards.
func Actions(card pharmacy.JobCard) []Action {
	actions := []Action{ActionEdit, ActionDelete}
	if card.Status == pharmacy.StatusApproved {
		actions = append([]Action{ActionExecute}, actions...)
	}
	return actions
}

// Allowed reports whether action is exposed for card.
func Allowed(card pharmacy.JobCard, action Action) bool {
	for _, a := range Actions(card) {
		if a == action {
			return true
		}
	}
	return false
}

// Row is a job card with the actions currently available on it.
type Row struct {
	pharmacy.JobCard
	Actions   []Action `json:"actions"`
	Executing bool     `json:"executing"`
}

// Board is the job card list of one console.
type Board struct {
	gw   Gateway
	sess *session.Session
	now  func() time.Time

	mu         sync.Mutex
	cards      []pharmacy.JobCard
	loaded     bool
	banner     string
	executing  map[int64]bool
	onExecuted func()
}

// NewBoard creates an empty board; call Refresh to load it.
func NewBoard(gw Gateway, sess *session.Session) *Board {
	return &Board{
		gw:        gw,
		sess:      sess,
		now:       time.Now,
		executing: make(map[int64]bool),
	}
}

// OnExecuted registers the navigation side effect of a successful execute.
func (b *Board) OnExecuted(fn func()) {
	b.mu.Lock()
	b.onExecuted = fn
	b.mu.Unlock()
}

// Refresh re-fetches the whole list. On failure the previous list is kept and
// the error is shown as a banner.
func (b *Board) Refresh(ctx context.Context) error {
	cards, err := b.gw.ListJobCards(ctx, b.sess)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.banner = err.Error()
		return err
	}
	b.cards = cards
	b.loaded = true
	b.banner = ""
	return nil
}

// Rows returns the current list with per-row actions.
func (b *Board) Rows() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]Row, 0, len(b.cards))
	for _, c := range b.cards {
		rows = append(rows, Row{JobCard: c, Actions: Actions(c), Executing: b.executing[c.JobcardID]})
	}
	return rows
}

// Banner returns the dismissible error message, if any.
func (b *Board) Banner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.banner
}

// DismissBanner clears the error message.
func (b *Board) DismissBanner() {
	b.mu.Lock()
	b.banner = ""
	b.mu.Unlock()
}

// Loaded reports whether at least one refresh succeeded.
func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

func (b *Board) find(id int64) (pharmacy.JobCard, bool) {
	for _, c := range b.cards {
		if c.JobcardID == id {
			return c, true
		}
	}
	return pharmacy.JobCard{}, false
}

// Update applies an approver's edit. The approver and approval time are
// stamped here; the server decides which transitions are legal.
func (b *Board) Update(ctx context.Context, id int64, status pharmacy.Status, hardwareID *int64) (*pharmacy.JobCard, error) {
	if _, err := pharmacy.ParseStatus(string(status)); err != nil {
		return nil, apperr.Invalid("status", err.Error())
	}
	update := pharmacy.JobCardUpdate{
		Status:           status,
		ApprovedByUserID: b.sess.UserID,
		HardwareID:       hardwareID,
		ApproveDate:      b.now().UTC(),
	}
	card, err := b.gw.UpdateJobCard(ctx, b.sess, id, update)
	if err != nil {
		return nil, err
	}
	b.refreshQuietly(ctx)
	return card, nil
}

// Delete removes a job card. A failure is shown as a banner and leaves the
// list untouched.
func (b *Board) Delete(ctx context.Context, id int64) error {
	if err := b.gw.DeleteJobCard(ctx, b.sess, id); err != nil {
		b.mu.Lock()
		b.banner = err.Error()
		b.mu.Unlock()
		return err
	}
	b.refreshQuietly(ctx)
	return nil
}

// Execute sends an Approved job card to the robot. Only the row being
// executed is locked; other rows stay executable.
func (b *Board) Execute(ctx context.Context, id int64) (string, error) {
	b.mu.Lock()
	card, ok := b.find(id)
	if !ok || !Allowed(card, ActionExecute) {
		b.mu.Unlock()
		return "", fmt.Errorf("execute job card %d: %w", id, apperr.ErrNotAllowed)
	}
	if b.executing[id] {
		b.mu.Unlock()
		return "", fmt.Errorf("execute job card %d: %w", id, apperr.ErrBusy)
	}
	b.executing[id] = true
	b.banner = ""
	b.mu.Unlock()

	res, err := b.gw.ExecuteJobCard(ctx, b.sess, id)
	metrics.IncreaseJobcardExecutes(err)

	b.mu.Lock()
	delete(b.executing, id)
	if err != nil {
		b.banner = err.Error()
	}
	onExecuted := b.onExecuted
	b.mu.Unlock()

	if err != nil {
		zap.S().Warnw("job card execute failed", "jobcard_id", id, "user", b.sess.Username, "error", err)
		return "", err
	}

	zap.S().Infow("job card sent for execution", "jobcard_id", id, "user", b.sess.Username)
	b.refreshQuietly(ctx)
	if onExecuted != nil {
		onExecuted()
	}
	return res.Message, nil
}

func (b *Board) refreshQuietly(ctx context.Context) {
	if err := b.Refresh(ctx); err != nil {
		zap.S().Warnf("job card list refresh failed: %v", err)
	}
}
