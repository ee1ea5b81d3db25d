package notification

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-locker-backend/config"
	"parcel-locker-backend/internal/model"
)

// mockSender is a mock implementation of the PushSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

type mockMail struct {
	mu   sync.Mutex
	sent []Message
	err  error
	done chan struct{}
}

func (m *mockMail) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.err
}

type fakeSubscriptions struct {
	mu      sync.Mutex
	subs    map[string][]model.PushSubscription
	deleted []string
	err     error
}

func (f *fakeSubscriptions) SubscriptionsFor(_ context.Context, email string) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[email], f.err
}

func (f *fakeSubscriptions) DeleteSubscription(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func (f *fakeSubscriptions) deletedEndpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func pushOptions() *webpush.Options {
	return &webpush.Options{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}
}

func okResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, nil, nil, nil)

	wp.Dispatch(Message{To: "client@example.com", Subject: "hi"})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, "client@example.com", job.To)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	t.Run("sends email and push for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		subs := &fakeSubscriptions{subs: map[string][]model.PushSubscription{
			"operator@example.com": {{Endpoint: "https://example.com/push", P256DH: "p", Auth: "a", Email: "operator@example.com"}},
		}}
		mail := &mockMail{}
		wp := NewWorkerPool(1, subs, mail, pushOptions())
		wp.push = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.JSONEq(t, `{"title":"Reservation confirmed","body":"locker 3"}`, string(payload))
				wg.Done()
				return okResponse(http.StatusCreated), nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Dispatch(Message{To: "operator@example.com", Subject: "Reservation confirmed", Summary: "locker 3", Body: "locker 3, password 9f2c"})
		wg.Wait()

		mail.mu.Lock()
		defer mail.mu.Unlock()
		require.Len(t, mail.sent, 1)
		assert.Equal(t, "operator@example.com", mail.sent[0].To)
	})

	t.Run("push never carries the mail body", func(t *testing.T) {
		payloads := make(chan string, 2)
		subs := &fakeSubscriptions{subs: map[string][]model.PushSubscription{
			"client@example.com": {{Endpoint: "https://attacker.example.com/push", Email: "client@example.com"}},
		}}
		wp := NewWorkerPool(1, subs, nil, pushOptions())
		wp.push = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				payloads <- string(payload)
				return okResponse(http.StatusCreated), nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Dispatch(Message{To: "client@example.com", Subject: "Your parcel is ready", Summary: "Locker 2 at G7.", Body: "Use password 0badc0ffee to collect it."})
		wp.Dispatch(Message{To: "client@example.com", Subject: "Reservation confirmed", Body: "Your client password is 0badc0ffee."})

		for _, want := range []string{
			`{"title":"Your parcel is ready","body":"Locker 2 at G7."}`,
			`{"title":"Reservation confirmed","body":"Check your email for details."}`,
		} {
			select {
			case got := <-payloads:
				assert.NotContains(t, got, "0badc0ffee")
				assert.JSONEq(t, want, got)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for push")
			}
		}
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		subs := &fakeSubscriptions{subs: map[string][]model.PushSubscription{
			"client@example.com": {{Endpoint: "https://example.com/expired", Email: "client@example.com"}},
		}}
		wp := NewWorkerPool(1, subs, nil, pushOptions())
		wp.push = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return okResponse(http.StatusGone), nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Dispatch(Message{To: "client@example.com", Subject: "s", Body: "b"})

		assert.Eventually(t, func() bool {
			return len(subs.deletedEndpoints()) == 1
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"https://example.com/expired"}, subs.deletedEndpoints())
	})

	t.Run("mail failure does not stop push and push disabled without keys", func(t *testing.T) {
		subs := &fakeSubscriptions{err: errors.New("should not be queried")}
		mail := &mockMail{err: errors.New("smtp down"), done: make(chan struct{}, 1)}
		wp := NewWorkerPool(1, subs, mail, &webpush.Options{})
		wp.push = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Error("push must not be attempted without VAPID keys")
				return okResponse(http.StatusCreated), nil
			},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		wp.Start(ctx)

		wp.Dispatch(Message{To: "client@example.com", Subject: "s", Body: "b"})
		select {
		case <-mail.done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for mail attempt")
		}
	})
}

func TestNewSMTPSender(t *testing.T) {
	assert.Nil(t, NewSMTPSender(config.MailConfig{}))

	s := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", Port: 587, Username: "lockers@example.com"})
	require.NotNil(t, s)
	assert.Equal(t, "lockers@example.com", s.from)
}

func TestBuildMessage(t *testing.T) {
	m := buildMessage("lockers@example.com", Message{To: "client@example.com", Subject: "Parcel ready", Body: "a < b"})

	assert.Equal(t, []string{"lockers@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{"client@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Parcel ready"}, m.GetHeader("Subject"))
}
