package notification

import (
	"context"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"mattermore-backend/internal/model"
)

// jobsPerWorker sizes the job buffer so request handlers rarely wait on delivery.
const jobsPerWorker = 32

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

// WorkerPool delivers notifications in the background. Every message goes to the
// webhook of its channel; doorkeeper messages are also pushed to subscribed browsers.
type WorkerPool struct {
	size     int
	jobs     chan Message
	db       *gorm.DB
	webhooks map[Channel]string
	poster   Poster
	webpush  *webpush.Options
	sender   NotificationSender
}

// NewWorkerPool creates a new worker pool. A nil webpushOptions disables web push.
func NewWorkerPool(size int, db *gorm.DB, webhooks map[Channel]string, poster Poster, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:     size,
		jobs:     make(chan Message, size*jobsPerWorker), // Buffered channel
		db:       db,
		webhooks: webhooks,
		poster:   poster,
		webpush:  webpushOptions,
		sender:   &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case msg := <-wp.jobs:
			wp.deliver(ctx, msg)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job without waiting. Callers may hold locks, so when the
// queue is full the message is dropped and Dispatch reports false.
func (wp *WorkerPool) Dispatch(msg Message) bool {
	select {
	case wp.jobs <- msg:
		return true
	default:
		log.Printf("Notification queue full, dropping [%s] %s", msg.Channel, msg.Text)
		return false
	}
}

// Notify implements Notifier by queueing the message.
func (wp *WorkerPool) Notify(_ context.Context, channel Channel, text string) {
	log.Printf("[%s] %s", channel, text)
	wp.Dispatch(Message{Channel: channel, Text: text})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Message {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, msg Message) {
	if webhook := wp.webhooks[msg.Channel]; webhook != "" {
		if err := wp.poster.Post(ctx, webhook, msg.Text); err != nil {
			log.Printf("Error posting to %s channel: %v", msg.Channel, err)
		}
	}
	if msg.Channel == ChannelDoorkeeper && wp.webpush != nil && wp.db != nil {
		wp.pushToSubscribers(ctx, []byte(msg.Text))
	}
}

// pushToSubscribers sends payload to every subscribed browser.
func (wp *WorkerPool) pushToSubscribers(ctx context.Context, payload []byte) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching push subscriptions: %v", err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
