package reservation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"parcel-locker-backend/internal/hardware"
	"parcel-locker-backend/internal/notification"
	"parcel-locker-backend/internal/station"
	"parcel-locker-backend/internal/store"
)

// DefaultHold is how long an unconfirmed reservation holds its locker.
const DefaultHold = 15 * time.Minute

// Commander dispatches physical commands to station hardware.
type Commander interface {
	SendCommand(ctx context.Context, action hardware.Action, stationName string, nickname int) error
}

// Notifier queues a message for delivery.
type Notifier interface {
	Dispatch(msg notification.Message)
}

// Party identifies who presents a password.
type Party string

const (
	PartyClient   Party = "client"
	PartyOperator Party = "operator"
)

// ParseParty validates a party name from a request.
func ParseParty(s string) (Party, error) {
	switch Party(s) {
	case PartyClient, PartyOperator:
		return Party(s), nil
	default:
		return "", validationError("type must be %q or %q", PartyClient, PartyOperator)
	}
}

// Service allocates lockers and drives reservations through their lifecycle.
type Service struct {
	store     store.Store
	stations  station.Reader
	commander Commander
	notifier  Notifier
	hold      time.Duration
	now       func() time.Time
	locks     keyedMutex
}

// NewService wires the reservation core. A zero hold uses DefaultHold; a nil
// notifier drops notifications.
func NewService(st store.Store, stations station.Reader, commander Commander, notifier Notifier, hold time.Duration) *Service {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Service{
		store:     st,
		stations:  stations,
		commander: commander,
		notifier:  notifier,
		hold:      hold,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     keyedMutex{locks: make(map[int64]*refLock)},
	}
}

func (s *Service) notify(to, subject, summary, body string) {
	if s.notifier == nil || to == "" {
		return
	}
	s.notifier.Dispatch(notification.Message{To: to, Subject: subject, Summary: summary, Body: body})
}

// newPassword returns a random one-time credential.
func newPassword() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// keyedMutex serializes work per reservation id without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(id int64) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
