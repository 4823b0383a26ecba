package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dilution-ops-backend/internal/model"
	"dilution-ops-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON document the dashboard's service worker displays.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	LogID int64  `json:"logId"`
}

// NewPayload describes a finished robot task.
func NewPayload(task store.TaskTransition) Payload {
	title := "Robot task finished"
	if failed(task.PiStatus) || failed(task.UnityStatus) {
		title = "Robot task failed"
	}
	return Payload{
		Title: title,
		Body:  fmt.Sprintf("Task '%s' (#%d): Pi %s, Unity %s", task.TaskName, task.LogID, task.PiStatus, task.UnityStatus),
		LogID: task.LogID,
	}
}

func failed(status string) bool {
	return status == "ERROR" || status == "BROKEN"
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan store.TaskTransition
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan store.TaskTransition, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	zap.S().Debugf("notification worker %d started", id)
	for {
		select {
		case task := <-wp.jobs:
			zap.S().Debugf("notification worker %d processing robot task %d", id, task.LogID)
			wp.sendNotificationsForTask(ctx, task)
		case <-ctx.Done():
			zap.S().Debugf("notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job. It gives up when ctx is done.
func (wp *WorkerPool) Dispatch(ctx context.Context, task store.TaskTransition) bool {
	select {
	case wp.jobs <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan store.TaskTransition {
	return wp.jobs
}

// sendNotificationsForTask pushes the task outcome to every subscribed browser.
func (wp *WorkerPool) sendNotificationsForTask(ctx context.Context, task store.TaskTransition) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		zap.S().Errorf("Error fetching subscriptions for robot task %d: %v", task.LogID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewPayload(task))
	if err != nil {
		zap.S().Errorf("Error encoding notification for robot task %d: %v", task.LogID, err)
		return
	}

	zap.S().Infof("Sending %d notifications for robot task %d", len(subscriptions), task.LogID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		zap.S().Warnf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		zap.S().Infof("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			zap.S().Errorf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
