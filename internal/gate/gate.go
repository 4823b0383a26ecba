// Package gate implements the facial verification overlay that must be passed
// before the robot execution view opens.
//
// A gate owns at most one poll loop and one dismiss timer. Both are released
// on every exit path: verification, error, Hide, and cancellation of the
// context the gate was created with.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/faceid"
	"dilution-ops-backend/internal/metrics"
)

const (
	// DefaultPollInterval is the fixed delay between verification polls.
	DefaultPollInterval = 1000 * time.Millisecond
	// DefaultDismissDelay is how long the verified state stays on screen
	// before the success callback runs.
	DefaultDismissDelay = 1500 * time.Millisecond
)

// Status is the state of the gate.
type Status string

const (
	Idle       Status = "idle"
	Connecting Status = "connecting"
	Scanning   Status = "scanning"
	Verified   Status = "verified"
	Failed     Status = "error"
)

// ErrorKind says why a gate failed.
type ErrorKind string

const (
	Incompatible   ErrorKind = "incompatible"
	LostConnection ErrorKind = "lost_connection"
)

var transitions = map[Status][]Status{
	Idle:       {Connecting},
	Connecting: {Scanning, Failed, Idle},
	Scanning:   {Verified, Failed, Idle},
	Verified:   {Idle},
	Failed:     {Connecting, Idle},
}

func allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Device is the face-ID module as seen by the gate.
type Device interface {
	StartVerification(ctx context.Context) error
	CheckVerification(ctx context.Context) (*faceid.VerificationStatus, error)
	VideoFeedURL(at time.Time) string
}

// Options configures a gate. Zero durations fall back to the defaults.
type Options struct {
	PollInterval time.Duration
	DismissDelay time.Duration
	// OnVerified runs once per successful verification, after DismissDelay.
	OnVerified func(user string)
	// OnClose runs when the user closes a failed gate.
	OnClose func()
}

// Snapshot is what the overlay renders.
type Snapshot struct {
	Visible   bool      `json:"visible"`
	Status    Status    `json:"status"`
	VideoURL  string    `json:"videoUrl,omitempty"`
	User      string    `json:"user,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Gate is one verification overlay.
type Gate struct {
	parent context.Context
	device Device
	opts   Options
	now    func() time.Time

	mu         sync.Mutex
	visible    bool
	status     Status
	videoURL   string
	user       string
	errKind    ErrorKind
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	dismiss    *time.Timer
}

// New creates a hidden gate. Cancelling parent releases everything the gate holds.
func New(parent context.Context, device Device, opts Options) *Gate {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DismissDelay <= 0 {
		opts.DismissDelay = DefaultDismissDelay
	}
	return &Gate{
		parent: parent,
		device: device,
		opts:   opts,
		now:    time.Now,
		status: Idle,
	}
}

// Snapshot returns the current render state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		Visible:   g.visible,
		Status:    g.status,
		VideoURL:  g.videoURL,
		User:      g.user,
		ErrorKind: g.errKind,
	}
	switch g.errKind {
	case Incompatible:
		s.Message = apperr.ErrDeviceIncompatible.Error()
	case LostConnection:
		s.Message = apperr.ErrLostConnection.Error()
	}
	if g.status == Verified {
		s.Message = fmt.Sprintf("Verified: %s", g.user)
	}
	return s
}

// Show makes the gate visible and starts a verification session. Showing a
// visible gate is a no-op.
func (g *Gate) Show() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.visible {
		return nil
	}
	if err := g.moveTo(Connecting); err != nil {
		return err
	}
	g.visible = true
	g.startLocked()
	return nil
}

// Retry restarts a failed verification session. Only a visible, failed gate
// can be retried.
func (g *Gate) Retry() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != Failed || !g.visible {
		return fmt.Errorf("retry from %s: %w", g.status, apperr.ErrInvalidTransition)
	}
	if err := g.moveTo(Connecting); err != nil {
		return err
	}
	g.startLocked()
	return nil
}

// Close dismisses a failed gate and runs the caller's fallback.
func (g *Gate) Close() error {
	g.mu.Lock()
	if g.status != Failed {
		status := g.status
		g.mu.Unlock()
		return fmt.Errorf("close from %s: %w", status, apperr.ErrInvalidTransition)
	}
	done := g.resetLocked()
	g.mu.Unlock()
	wait(done)

	metrics.IncreaseGateOutcome("closed")
	if g.opts.OnClose != nil {
		g.opts.OnClose()
	}
	return nil
}

// Hide makes the gate invisible from any state. It returns once the poll loop
// has exited, so no poll starts after Hide returns.
func (g *Gate) Hide() {
	g.mu.Lock()
	done := g.resetLocked()
	g.mu.Unlock()
	wait(done)
}

func wait(done chan struct{}) {
	if done != nil {
		<-done
	}
}

// resetLocked stops the loop and timer and returns the loop's done channel.
func (g *Gate) resetLocked() chan struct{} {
	g.generation++
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	if g.dismiss != nil {
		g.dismiss.Stop()
		g.dismiss = nil
	}
	done := g.done
	g.done = nil
	g.visible = false
	g.status = Idle
	g.videoURL = ""
	g.user = ""
	g.errKind = ""
	return done
}

func (g *Gate) moveTo(next Status) error {
	if !allowed(g.status, next) {
		return fmt.Errorf("gate %s -> %s: %w", g.status, next, apperr.ErrInvalidTransition)
	}
	g.status = next
	return nil
}

// startLocked launches a new verification run in Connecting.
func (g *Gate) startLocked() {
	if g.cancel != nil {
		g.cancel()
	}
	g.generation++
	g.videoURL = ""
	g.user = ""
	g.errKind = ""

	ctx, cancel := context.WithCancel(g.parent)
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done
	go g.run(ctx, g.generation, done)
}

func (g *Gate) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	if err := g.device.StartVerification(ctx); err != nil {
		g.fail(gen, Incompatible, err)
		return
	}

	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return
	}
	if err := g.moveTo(Scanning); err != nil {
		g.mu.Unlock()
		zap.S().Errorf("verification gate: %v", err)
		return
	}
	g.videoURL = g.device.VideoFeedURL(g.now())
	g.mu.Unlock()

	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			status, err := g.device.CheckVerification(ctx)
			metrics.IncreaseGatePolls(err)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				g.fail(gen, LostConnection, err)
				return
			}
			if status.Verified {
				g.verified(gen, status.User)
				return
			}
		}
	}
}

func (g *Gate) fail(gen uint64, kind ErrorKind, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation {
		return
	}
	if err := g.moveTo(Failed); err != nil {
		zap.S().Errorf("verification gate: %v", err)
		return
	}
	g.errKind = kind
	g.videoURL = ""
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	metrics.IncreaseGateOutcome(string(kind))
	zap.S().Warnw("verification failed", "kind", kind, "error", cause)
}

func (g *Gate) verified(gen uint64, user string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation {
		return
	}
	if err := g.moveTo(Verified); err != nil {
		zap.S().Errorf("verification gate: %v", err)
		return
	}
	g.videoURL = ""
	g.user = user
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	metrics.IncreaseGateOutcome("verified")
	zap.S().Infow("face verified", "user", user)

	g.dismiss = time.AfterFunc(g.opts.DismissDelay, func() { g.finish(gen, user) })
}

// finish closes the gate after the dismiss delay and hands over to the caller.
func (g *Gate) finish(gen uint64, user string) {
	g.mu.Lock()
	if gen != g.generation || g.status != Verified {
		g.mu.Unlock()
		return
	}
	g.generation++
	g.dismiss = nil
	g.done = nil
	g.visible = false
	g.status = Idle
	g.mu.Unlock()

	if g.opts.OnVerified != nil {
		g.opts.OnVerified(user)
	}
}
