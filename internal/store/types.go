package store

import "errors"

var (
	// ErrNotFound means no row matched the key and state predicate.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflicting record")
)

// Match selects an active (not expired, not completed) reservation.
// Zero-valued fields are ignored; pointer fields constrain a flag when set.
type Match struct {
	ID                int64
	StationName       string
	LockerID          *int
	ClientPassword    string
	OperatorPassword  string
	ConfirmedClient   *bool
	ConfirmedOperator *bool
	Loaded            *bool
}

// Bool returns a pointer for use in Match.
func Bool(v bool) *bool { return &v }
