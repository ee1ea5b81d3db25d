package reservation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"parcel-locker-backend/internal/model"
	"parcel-locker-backend/internal/station"
	"parcel-locker-backend/internal/store"
)

// ConfirmClient records the client's confirmation of reservation id and sends
// each party its password.
func (s *Service) ConfirmClient(ctx context.Context, id int64) (*model.Reservation, error) {
	if id <= 0 {
		return nil, validationError("reservation id must be positive")
	}
	guard := store.Match{ID: id, ConfirmedClient: store.Bool(false), ConfirmedOperator: store.Bool(false)}
	r, err := s.store.FindActive(ctx, guard)
	if err != nil {
		return nil, fromStore(err)
	}

	now := s.now()
	err = s.store.Transition(ctx, guard, map[string]any{
		"confirmed_client":    true,
		"confirmed_client_at": now,
	})
	if err != nil {
		return nil, fromStore(err)
	}
	r.ConfirmedClient = true
	r.ConfirmedClientAt = &now

	s.notify(r.OperatorEmail, "Reservation confirmed",
		fmt.Sprintf("Locker %d at station %s was confirmed by the client.", r.LockerID, r.StationName),
		fmt.Sprintf("Reservation %d for locker %d at station %s was confirmed by the client. Your operator password is %s.",
			r.ID, r.LockerID, r.StationName, r.OperatorPassword))
	s.notify(r.ClientEmail, "Reservation confirmed",
		fmt.Sprintf("Your reservation for locker %d at station %s is confirmed.", r.LockerID, r.StationName),
		fmt.Sprintf("Your reservation for locker %d at station %s is confirmed. Your client password is %s.",
			r.LockerID, r.StationName, r.ClientPassword))
	return r, nil
}

// OperatorConfirmation is the outcome of ConfirmOperator. When the parcel no
// longer fits anywhere the reservation is expired and Expired is set; that is
// a result, not an error.
type OperatorConfirmation struct {
	Expired     bool               `json:"expired"`
	Reservation *model.Reservation `json:"-"`
	Locker      *LockerView        `json:"locker,omitempty"`
}

// ConfirmOperator records the operator's measured parcel size. The reservation
// keeps its locker when the parcel fits, moves to the first free fitting locker
// otherwise, and is expired when none exists.
func (s *Service) ConfirmOperator(ctx context.Context, operatorPassword string, h, w, d float64) (OperatorConfirmation, error) {
	if strings.TrimSpace(operatorPassword) == "" {
		return OperatorConfirmation{}, validationError("operator password is required")
	}
	if err := validateDims(h, w, d); err != nil {
		return OperatorConfirmation{}, err
	}

	guard := store.Match{
		OperatorPassword:  operatorPassword,
		ConfirmedClient:   store.Bool(true),
		ConfirmedOperator: store.Bool(false),
	}
	r, err := s.store.FindActive(ctx, guard)
	if err != nil {
		return OperatorConfirmation{}, fromStore(err)
	}
	guard.ID = r.ID

	snap, ok := s.stations.Station(r.StationName)
	if !ok {
		return OperatorConfirmation{}, ErrNotFound
	}

	now := s.now()
	if current, ok := snap.Locker(r.LockerID); ok && current.Sizes.Fits(h, w, d) {
		err := s.store.Transition(ctx, guard, map[string]any{
			"confirmed_operator":    true,
			"confirmed_operator_at": now,
		})
		if err != nil {
			return OperatorConfirmation{}, fromStore(err)
		}
		r.ConfirmedOperator = true
		r.ConfirmedOperatorAt = &now
		view := newLockerView(snap.Name, current, r)
		return OperatorConfirmation{Reservation: r, Locker: &view}, nil
	}

	var (
		moved   station.Locker
		found   bool
		expired bool
	)
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		moved, found, err = s.claim(ctx, tx, snap.Name, fitting(snap, h, w, d), r.ID, now)
		if err != nil {
			return err
		}
		if found {
			return tx.Transition(ctx, guard, map[string]any{
				"locker_id":             moved.Nickname,
				"confirmed_operator":    true,
				"confirmed_operator_at": now,
			})
		}
		expired = true
		return tx.Transition(ctx, guard, map[string]any{
			"expired":    true,
			"expired_at": now,
		})
	})
	if err != nil {
		return OperatorConfirmation{}, fromStore(err)
	}

	if expired {
		log.Printf("Reservation %d expired: parcel %.1fx%.1fx%.1f fits no locker at station %s", r.ID, h, w, d, r.StationName)
		r.Expired = true
		r.ExpiredAt = &now
		return OperatorConfirmation{Expired: true, Reservation: r}, nil
	}

	log.Printf("Reservation %d moved from locker %d to %d at station %s", r.ID, r.LockerID, moved.Nickname, r.StationName)
	r.LockerID = moved.Nickname
	r.ConfirmedOperator = true
	r.ConfirmedOperatorAt = &now
	view := newLockerView(snap.Name, moved, r)
	return OperatorConfirmation{Reservation: r, Locker: &view}, nil
}

// Cancel expires a reservation before its parcel is loaded. Clients may cancel
// at any point before loading; operators only after the client confirmed.
func (s *Service) Cancel(ctx context.Context, party Party, password string) error {
	guard, err := cancelGuard(party, password)
	if err != nil {
		return err
	}
	r, err := s.store.FindActive(ctx, guard)
	if err != nil {
		return fromStore(err)
	}
	guard.ID = r.ID

	now := s.now()
	err = s.store.Transition(ctx, guard, map[string]any{
		"expired":    true,
		"expired_at": now,
	})
	if err != nil {
		return fromStore(err)
	}
	log.Printf("Reservation %d cancelled by %s", r.ID, party)
	return nil
}

func cancelGuard(party Party, password string) (store.Match, error) {
	if strings.TrimSpace(password) == "" {
		return store.Match{}, validationError("password is required")
	}
	switch party {
	case PartyClient:
		return store.Match{ClientPassword: password, Loaded: store.Bool(false)}, nil
	case PartyOperator:
		return store.Match{OperatorPassword: password, ConfirmedClient: store.Bool(true), Loaded: store.Bool(false)}, nil
	default:
		return store.Match{}, validationError("unknown party %q", party)
	}
}
