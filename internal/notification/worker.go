package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"parcel-locker-backend/internal/model"
)

// Message is a notification addressed to one client or operator email.
// Body goes only to the mailbox and may carry credentials. Summary is what
// browser push shows and must never carry a password, since push
// subscriptions are not tied to mailbox ownership.
type Message struct {
	To      string
	Subject string
	Body    string
	Summary string
}

const defaultPushBody = "Check your email for details."

// MailSender delivers a message by email.
type MailSender interface {
	Send(ctx context.Context, msg Message) error
}

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of PushSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Subscriptions is the subset of the store the pool needs.
type Subscriptions interface {
	SubscriptionsFor(ctx context.Context, email string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Message
	subs    Subscriptions
	webpush *webpush.Options
	mail    MailSender
	push    PushSender
}

// NewWorkerPool creates a new worker pool. A nil mail sender disables email;
// nil or keyless webpush options disable push.
func NewWorkerPool(size int, subs Subscriptions, mail MailSender, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Message, size*16),
		subs:    subs,
		webpush: webpushOptions,
		mail:    mail,
		push:    &WebPushSender{},
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
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case msg := <-wp.jobs:
			wp.deliver(ctx, msg)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a message. It never blocks the caller; when the queue is
// full the message is logged and dropped.
func (wp *WorkerPool) Dispatch(msg Message) {
	select {
	case wp.jobs <- msg:
	default:
		log.Printf("Notification queue full, dropping %q to %s", msg.Subject, msg.To)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Message {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, msg Message) {
	if wp.mail != nil {
		if err := wp.mail.Send(ctx, msg); err != nil {
			log.Printf("Error sending email %q to %s: %v", msg.Subject, msg.To, err)
		}
	}
	if wp.pushEnabled() {
		wp.pushAll(ctx, msg)
	}
}

func (wp *WorkerPool) pushEnabled() bool {
	return wp.webpush != nil && wp.webpush.VAPIDPublicKey != "" && wp.webpush.VAPIDPrivateKey != "" && wp.subs != nil
}

// pushAll fans a message out to every browser registered for its recipient.
func (wp *WorkerPool) pushAll(ctx context.Context, msg Message) {
	subscriptions, err := wp.subs.SubscriptionsFor(ctx, msg.To)
	if err != nil {
		log.Printf("Error fetching subscriptions for %s: %v", msg.To, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload(msg))
	if err != nil {
		log.Printf("Error encoding push payload: %v", err)
		return
	}

	log.Printf("Sending %d push notifications to %s", len(subscriptions), msg.To)
	for _, sub := range subscriptions {
		wp.sendPush(ctx, sub, payload)
	}
}

func pushPayload(msg Message) map[string]string {
	body := msg.Summary
	if body == "" {
		body = defaultPushBody
	}
	return map[string]string{"title": msg.Subject, "body": body}
}

// sendPush sends a single web push notification.
func (wp *WorkerPool) sendPush(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.push.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
