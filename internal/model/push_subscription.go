package model

import "time"

// PushSubscription holds the information for a browser push subscription
// registered for a client or operator email address.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	Email     string    `gorm:"size:256;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}
