package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcel-locker-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	// Transaction runs fn against a Store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateReservation(ctx context.Context, r *model.Reservation) error
	FindActive(ctx context.Context, m Match) (*model.Reservation, error)
	ActiveReservations(ctx context.Context, stationName string) ([]model.Reservation, error)
	ExpireReservations(ctx context.Context, ids []int64, now time.Time) error
	Transition(ctx context.Context, m Match, updates map[string]any) error

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	FindSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsFor(ctx context.Context, email string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// CreateReservation inserts a new reservation. A second active reservation for
// the same locker is rejected by the database with ErrConflict.
func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return translate(err, "failed to create reservation for station %s locker %d", r.StationName, r.LockerID)
	}
	return nil
}

// FindActive returns the single active reservation matching m.
func (s *gormStore) FindActive(ctx context.Context, m Match) (*model.Reservation, error) {
	var r model.Reservation
	err := scopeActive(s.db.WithContext(ctx), m).Order("id").First(&r).Error
	if err != nil {
		return nil, translate(err, "failed to look up reservation")
	}
	return &r, nil
}

// ActiveReservations lists a station's active reservations, newest first.
func (s *gormStore) ActiveReservations(ctx context.Context, stationName string) ([]model.Reservation, error) {
	var rs []model.Reservation
	err := scopeActive(s.db.WithContext(ctx), Match{StationName: stationName}).
		Order("created_at DESC").Order("id DESC").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations for station %s: %w", stationName, err)
	}
	return rs, nil
}

// ExpireReservations marks the given reservations expired in one statement.
// Reservations that already left the active state are left untouched.
func (s *gormStore) ExpireReservations(ctx context.Context, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := scopeActive(s.db.WithContext(ctx).Model(&model.Reservation{}), Match{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"expired": true, "expired_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to expire reservations %v: %w", ids, err)
	}
	return nil
}

// Transition applies updates to the reservation m.ID only if it still matches m.
// This is a compare-and-swap: when another writer got there first, no row
// matches and ErrNotFound is returned.
func (s *gormStore) Transition(ctx context.Context, m Match, updates map[string]any) error {
	if m.ID == 0 {
		return errors.New("transition requires a reservation id")
	}
	result := scopeActive(s.db.WithContext(ctx).Model(&model.Reservation{}), m).Updates(updates)
	if result.Error != nil {
		return translate(result.Error, "failed to update reservation %d", m.ID)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "email"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) FindSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, translate(err, "failed to look up subscription")
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
	}
	return nil
}

func (s *gormStore) SubscriptionsFor(ctx context.Context, email string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("email = ?", email).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for %s: %w", email, err)
	}
	return subs, nil
}

// scopeActive restricts q to active reservations matching m.
func scopeActive(q *gorm.DB, m Match) *gorm.DB {
	q = q.Where("expired = ? AND completed = ?", false, false)
	if m.ID != 0 {
		q = q.Where("id = ?", m.ID)
	}
	if m.StationName != "" {
		q = q.Where("station_name = ?", m.StationName)
	}
	if m.LockerID != nil {
		q = q.Where("locker_id = ?", *m.LockerID)
	}
	if m.ClientPassword != "" {
		q = q.Where("client_password = ?", m.ClientPassword)
	}
	if m.OperatorPassword != "" {
		q = q.Where("operator_password = ?", m.OperatorPassword)
	}
	if m.ConfirmedClient != nil {
		q = q.Where("confirmed_client = ?", *m.ConfirmedClient)
	}
	if m.ConfirmedOperator != nil {
		q = q.Where("confirmed_operator = ?", *m.ConfirmedOperator)
	}
	if m.Loaded != nil {
		q = q.Where("loaded = ?", *m.Loaded)
	}
	return q
}

func translate(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
