package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dilution-ops-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	SaveSession(ctx context.Context, s *model.Session) error
	FindSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string, userID int64) error
	FindSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)

	UpdateTaskStates(ctx context.Context, now time.Time, tasks []TaskObservation, isTerminal func(TaskObservation) bool) ([]TaskTransition, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// SaveSession inserts or replaces a session row.
func (s *gormStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at"}),
	}).Create(sess).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// FindSession returns gorm.ErrRecordNotFound when no row exists.
func (s *gormStore) FindSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *gormStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&model.Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired before now.
func (s *gormStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&model.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SaveSubscription upserts a push subscription by endpoint. A browser that
// re-subscribes under another login moves the endpoint to that user.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id"}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes an endpoint owned by the user.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string, userID int64) error {
	if err := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *gormStore) FindSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateTaskStates diffs a robot log snapshot against the last-seen status of
// each task and records the changes transactionally. It returns the tasks that
// moved from an open status to a terminal one. A task seen for the first time
// is recorded but never reported, so a restart does not replay old completions.
func (s *gormStore) UpdateTaskStates(ctx context.Context, now time.Time, tasks []TaskObservation, isTerminal func(TaskObservation) bool) ([]TaskTransition, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	tasks = latestPerLogID(tasks)

	known, err := s.fetchTaskStates(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robot task states: %w", err)
	}

	var finished []TaskTransition
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fresh []model.RobotTaskState
		for _, task := range tasks {
			terminal := isTerminal(task)
			old, exists := known[task.LogID]
			if !exists {
				row := prepareTaskState(task, now)
				if terminal {
					row.FinishedAt = &now
				}
				fresh = append(fresh, row)
				continue
			}

			if old.PiStatus == task.PiStatus && old.UnityStatus == task.UnityStatus && old.Message == task.Message {
				continue
			}

			updates := map[string]any{
				"pi_status":    task.PiStatus,
				"unity_status": task.UnityStatus,
				"message":      task.Message,
				"observed_at":  now,
			}
			if terminal && old.FinishedAt == nil {
				updates["finished_at"] = now
				finished = append(finished, TaskTransition{
					LogID:       task.LogID,
					TaskName:    task.TaskName,
					PiStatus:    task.PiStatus,
					UnityStatus: task.UnityStatus,
				})
			}
			if err := tx.Model(&model.RobotTaskState{}).Where("log_id = ?", task.LogID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update robot task %d: %w", task.LogID, err)
			}
		}

		if len(fresh) > 0 {
			zap.S().Debugf("recording %d new robot tasks", len(fresh))
			if err := tx.Create(&fresh).Error; err != nil {
				return fmt.Errorf("failed to record new robot tasks: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}

func (s *gormStore) fetchTaskStates(ctx context.Context, tasks []TaskObservation) (map[int64]model.RobotTaskState, error) {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.LogID)
	}

	var rows []model.RobotTaskState
	if err := s.db.WithContext(ctx).Where("log_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	stateMap := make(map[int64]model.RobotTaskState, len(rows))
	for _, r := range rows {
		stateMap[r.LogID] = r
	}
	return stateMap, nil
}

// latestPerLogID collapses repeated log ids, keeping the last observation of
// each in first-seen order.
func latestPerLogID(tasks []TaskObservation) []TaskObservation {
	pos := make(map[int64]int, len(tasks))
	out := make([]TaskObservation, 0, len(tasks))
	for _, t := range tasks {
		if i, ok := pos[t.LogID]; ok {
			out[i] = t
			continue
		}
		pos[t.LogID] = len(out)
		out = append(out, t)
	}
	return out
}

func prepareTaskState(task TaskObservation, now time.Time) model.RobotTaskState {
	return model.RobotTaskState{
		LogID:       task.LogID,
		TaskName:    task.TaskName,
		PiStatus:    task.PiStatus,
		UnityStatus: task.UnityStatus,
		Message:     task.Message,
		ObservedAt:  now,
	}
}
