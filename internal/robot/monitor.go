package robot

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"dilution-ops-backend/config"
	"dilution-ops-backend/internal/metrics"
	"dilution-ops-backend/internal/notification"
	"dilution-ops-backend/internal/store"
)

// LogFetcher reads the task history.
type LogFetcher interface {
	FetchLogs(ctx context.Context) ([]TaskLog, error)
}

// Monitor follows the robot task history in the background, records each
// task's last-seen status and notifies subscribers when a task ends.
type Monitor struct {
	src        LogFetcher
	store      store.Store
	workerPool *notification.WorkerPool
	interval   time.Duration
	terminal   map[string]bool
}

// NewMonitor creates a monitor.
func NewMonitor(cfg *config.RobotConfig, src LogFetcher, st store.Store, pool *notification.WorkerPool) *Monitor {
	terminal := make(map[string]bool, len(cfg.TerminalStatuses))
	for _, s := range cfg.TerminalStatuses {
		terminal[strings.ToUpper(s)] = true
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		src:        src,
		store:      st,
		workerPool: pool,
		interval:   interval,
		terminal:   terminal,
	}
}

// IsTerminal reports whether both subsystems have stopped working on the task.
func (m *Monitor) IsTerminal(t store.TaskObservation) bool {
	return m.terminal[t.PiStatus] && m.terminal[t.UnityStatus]
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	zap.S().Info("Starting robot task monitor...")

	m.workerPool.Start(ctx)

	m.PollOnce(ctx)

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Info("Robot task monitor shutting down.")
			return
		case <-timer.C:
			m.PollOnce(ctx)
			timer.Reset(m.interval)
		}
	}
}

// PollOnce performs a single fetch-and-diff round.
func (m *Monitor) PollOnce(ctx context.Context) {
	logs, err := m.src.FetchLogs(ctx)
	metrics.IncreaseRobotPolls(err)
	if err != nil {
		zap.S().Warnf("Robot log fetch failed; task states not updated: %v", err)
		return
	}

	observations := make([]store.TaskObservation, 0, len(logs))
	for _, l := range logs {
		observations = append(observations, l.Observation())
	}

	finished, err := m.store.UpdateTaskStates(ctx, time.Now().UTC(), observations, m.IsTerminal)
	if err != nil {
		zap.S().Errorf("Error recording robot task states: %v", err)
		return
	}

	if len(finished) > 0 {
		zap.S().Infof("Dispatching notifications for %d robot tasks", len(finished))
		for _, task := range finished {
			if !m.workerPool.Dispatch(ctx, task) {
				return
			}
		}
	}
}
