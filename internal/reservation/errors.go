package reservation

import (
	"errors"
	"fmt"

	"parcel-locker-backend/internal/store"
)

var (
	// ErrNotFound covers unknown stations and lockers, wrong passwords, and
	// reservations in the wrong state alike, so callers cannot tell which failed.
	ErrNotFound = errors.New("not found")
	// ErrNotAvailable means no free locker fits the requested size.
	ErrNotAvailable = errors.New("no locker available")
	// ErrConflict means a concurrent request changed the same locker or reservation first.
	ErrConflict = errors.New("conflicting update")
	// ErrTransport means the hardware command could not be dispatched; no state was committed.
	ErrTransport = errors.New("hardware command failed")
	// ErrValidation means the request was malformed.
	ErrValidation = errors.New("invalid request")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// fromStore maps ledger errors onto the service taxonomy.
func fromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
