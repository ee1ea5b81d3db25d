package reservation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"parcel-locker-backend/internal/hardware"
	"parcel-locker-backend/internal/model"
	"parcel-locker-backend/internal/store"
)

// GetLocker resolves a password to the locker of its client-confirmed reservation.
func (s *Service) GetLocker(ctx context.Context, party Party, password string) (LockerView, error) {
	guard, err := byPassword(party, password)
	if err != nil {
		return LockerView{}, err
	}
	guard.ConfirmedClient = store.Bool(true)

	r, err := s.store.FindActive(ctx, guard)
	if err != nil {
		return LockerView{}, fromStore(err)
	}
	return s.lockerFor(r)
}

// Open unlocks the reservation's locker. The operator opens to load a
// client-confirmed parcel; the client opens to collect a loaded one. State is
// committed only after the hardware command was published.
func (s *Service) Open(ctx context.Context, party Party, password string) (LockerView, error) {
	guard, err := byPassword(party, password)
	if err != nil {
		return LockerView{}, err
	}
	var (
		action  hardware.Action
		updates map[string]any
	)
	switch party {
	case PartyOperator:
		guard.ConfirmedClient = store.Bool(true)
		guard.Loaded = store.Bool(false)
		action = hardware.ActionLoad
	case PartyClient:
		guard.ConfirmedOperator = store.Bool(true)
		guard.Loaded = store.Bool(true)
		action = hardware.ActionUnload
	}

	r, err := s.store.FindActive(ctx, guard)
	if err != nil {
		return LockerView{}, fromStore(err)
	}
	guard.ID = r.ID

	unlock := s.locks.Lock(r.ID)
	defer unlock()

	// Another open may have committed while we waited for the lock.
	if r, err = s.store.FindActive(ctx, guard); err != nil {
		return LockerView{}, fromStore(err)
	}
	if _, err := s.lockerFor(r); err != nil {
		return LockerView{}, err
	}

	if err := s.commander.SendCommand(ctx, action, r.StationName, r.LockerID); err != nil {
		log.Printf("Failed to open locker %d at station %s for reservation %d: %v", r.LockerID, r.StationName, r.ID, err)
		return LockerView{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	now := s.now()
	switch party {
	case PartyOperator:
		// Loading implies operator confirmation, so the client can collect.
		updates = map[string]any{"loaded": true, "loaded_at": now}
		if !r.ConfirmedOperator {
			updates["confirmed_operator"] = true
			updates["confirmed_operator_at"] = now
		}
	case PartyClient:
		updates = map[string]any{"completed": true, "completed_at": now}
	}
	if err := s.store.Transition(ctx, guard, updates); err != nil {
		return LockerView{}, fromStore(err)
	}

	if party == PartyOperator {
		if !r.ConfirmedOperator {
			r.ConfirmedOperator = true
			r.ConfirmedOperatorAt = &now
		}
		r.Loaded = true
		r.LoadedAt = &now
		s.notify(r.ClientEmail, "Your parcel is ready",
			fmt.Sprintf("Your parcel is in locker %d at station %s.", r.LockerID, r.StationName),
			fmt.Sprintf("Your parcel was loaded into locker %d at station %s. Use password %s to collect it.",
				r.LockerID, r.StationName, r.ClientPassword))
	} else {
		r.Completed = true
		r.CompletedAt = &now
	}
	log.Printf("Locker %d at station %s opened by %s (reservation %d)", r.LockerID, r.StationName, party, r.ID)
	return s.lockerFor(r)
}

func (s *Service) lockerFor(r *model.Reservation) (LockerView, error) {
	snap, ok := s.stations.Station(r.StationName)
	if !ok {
		return LockerView{}, ErrNotFound
	}
	l, ok := snap.Locker(r.LockerID)
	if !ok {
		return LockerView{}, ErrNotFound
	}
	return newLockerView(snap.Name, l, r), nil
}

func byPassword(party Party, password string) (store.Match, error) {
	if strings.TrimSpace(password) == "" {
		return store.Match{}, validationError("password is required")
	}
	switch party {
	case PartyClient:
		return store.Match{ClientPassword: password}, nil
	case PartyOperator:
		return store.Match{OperatorPassword: password}, nil
	default:
		return store.Match{}, validationError("unknown party %q", party)
	}
}
