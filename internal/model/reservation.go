package model

import "time"

// Reservation binds one locker of a station to a client/operator pair.
// Rows are never deleted; expired and completed reservations stay for history.
type Reservation struct {
	ID          int64  `gorm:"primaryKey"`
	StationName string `gorm:"size:128;not null;index"`
	// LockerID is the locker nickname within the station.
	LockerID         int    `gorm:"not null"`
	ClientEmail      string `gorm:"size:256;not null"`
	OperatorEmail    string `gorm:"size:256;not null"`
	ClientPassword   string `gorm:"size:64;not null;uniqueIndex"`
	OperatorPassword string `gorm:"size:64;not null;uniqueIndex"`

	ConfirmedClient     bool `gorm:"not null"`
	ConfirmedClientAt   *time.Time
	ConfirmedOperator   bool `gorm:"not null"`
	ConfirmedOperatorAt *time.Time
	Loaded              bool `gorm:"not null"`
	LoadedAt            *time.Time
	Completed           bool `gorm:"not null"`
	CompletedAt         *time.Time
	Expired             bool `gorm:"not null"`
	ExpiredAt           *time.Time

	CreatedBy string    `gorm:"size:256;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Active reports whether the reservation still holds its locker.
func (r Reservation) Active() bool {
	return !r.Expired && !r.Completed
}
