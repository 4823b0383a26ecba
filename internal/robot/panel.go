package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/metrics"
)

// DefaultPollInterval is the fixed delay between task log refreshes.
const DefaultPollInterval = 5000 * time.Millisecond

// Source is the robot API as seen by the panel.
type Source interface {
	FetchLogs(ctx context.Context) ([]TaskLog, error)
	Trigger(ctx context.Context, taskName, message string) (TaskID, error)
}

// Preset is a task the execution view offers as a button.
type Preset struct {
	Key      string `json:"key"`
	TaskName string `json:"taskName"`
	Message  string `json:"message"`
}

// Presets are the built-in robot tasks.
var Presets = []Preset{
	{Key: "manual-dilution", TaskName: "Manual Dilution", Message: "Mixing Jobcard"},
	{Key: "calibration", TaskName: "Calibration", Message: "Running self-check sequence"},
}

// FindPreset looks a preset up by key.
func FindPreset(key string) (Preset, bool) {
	for _, p := range Presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

// Row is a task log with its display tones.
type Row struct {
	TaskLog
	PiTone    Tone `json:"piTone"`
	UnityTone Tone `json:"unityTone"`
}

// PanelSnapshot is what the execution view renders.
type PanelSnapshot struct {
	Running    bool      `json:"running"`
	Logs       []Row     `json:"logs"`
	Error      string    `json:"error,omitempty"`
	Status     string    `json:"status,omitempty"`
	Triggering bool      `json:"triggering"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Panel polls the task log while the execution view is open.
type Panel struct {
	src      Source
	interval time.Duration

	mu         sync.Mutex
	logs       []TaskLog
	lastErr    string
	status     string
	triggering bool
	updatedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewPanel creates a stopped panel.
func NewPanel(src Source, interval time.Duration) *Panel {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Panel{src: src, interval: interval}
}

// Start fetches immediately and then every interval until Stop or until
// parent is cancelled. Starting a running panel is a no-op.
func (p *Panel) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.run(ctx, done)
}

// Stop cancels the poll loop and waits for it to exit.
func (p *Panel) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poll loop is active.
func (p *Panel) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Panel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.Refresh(ctx)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.Refresh(ctx)
			timer.Reset(p.interval)
		}
	}
}

// Refresh fetches one snapshot. A failed fetch keeps the previous rows.
func (p *Panel) Refresh(ctx context.Context) {
	logs, err := p.src.FetchLogs(ctx)
	if ctx.Err() != nil {
		return
	}
	metrics.IncreaseRobotPolls(err)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastErr = err.Error()
		zap.S().Debugf("robot log refresh failed: %v", err)
		return
	}
	p.logs = logs
	p.lastErr = ""
	p.updatedAt = time.Now().UTC()
}

// Trigger starts a robot task. Only one trigger per panel is in flight at a
// time. The new row shows up on the next poll.
func (p *Panel) Trigger(ctx context.Context, taskName, message string) (TaskID, error) {
	p.mu.Lock()
	if p.triggering {
		p.mu.Unlock()
		return "", apperr.ErrBusy
	}
	p.triggering = true
	p.status = fmt.Sprintf("Sending command: %s...", taskName)
	p.mu.Unlock()

	id, err := p.src.Trigger(ctx, taskName, message)
	metrics.IncreaseRobotTriggers(err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggering = false
	if err != nil {
		p.status = fmt.Sprintf("Error sending command: %v", err)
		return "", err
	}
	p.status = fmt.Sprintf("Success! Task '%s' triggered with ID %s.", taskName, id)
	zap.S().Infow("robot task triggered", "task", taskName, "id", id)
	return id, nil
}

// Snapshot returns the current render state.
func (p *Panel) Snapshot() PanelSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := make([]Row, 0, len(p.logs))
	for _, l := range p.logs {
		rows = append(rows, Row{TaskLog: l, PiTone: StatusTone(l.PiStatus), UnityTone: StatusTone(l.UnityStatus)})
	}
	return PanelSnapshot{
		Running:    p.cancel != nil,
		Logs:       rows,
		Error:      p.lastErr,
		Status:     p.status,
		Triggering: p.triggering,
		UpdatedAt:  p.updatedAt,
	}
}
