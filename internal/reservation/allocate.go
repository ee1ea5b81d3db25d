package reservation

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"parcel-locker-backend/internal/model"
	"parcel-locker-backend/internal/station"
	"parcel-locker-backend/internal/store"
)

// AllocateRequest asks for a locker that fits a parcel of the given size.
type AllocateRequest struct {
	StationName   string
	ClientEmail   string
	OperatorEmail string
	CreatedBy     string
	Height        float64
	Width         float64
	Depth         float64
}

func (r AllocateRequest) validate() error {
	if strings.TrimSpace(r.StationName) == "" {
		return validationError("station_name is required")
	}
	if strings.TrimSpace(r.ClientEmail) == "" || strings.TrimSpace(r.OperatorEmail) == "" {
		return validationError("client_email and operator_email are required")
	}
	return validateDims(r.Height, r.Width, r.Depth)
}

func validateDims(h, w, d float64) error {
	if h <= 0 || w <= 0 || d <= 0 {
		return validationError("height, width and depth must be positive")
	}
	return nil
}

// Allocate reserves the first free locker that fits the parcel. Stale
// unconfirmed reservations on candidate lockers are expired in the same
// transaction that creates the new one.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (*model.Reservation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	snap, ok := s.stations.Station(req.StationName)
	if !ok {
		return nil, ErrNotFound
	}
	candidates := fitting(snap, req.Height, req.Width, req.Depth)
	if len(candidates) == 0 {
		return nil, ErrNotAvailable
	}

	clientPassword, err := newPassword()
	if err != nil {
		return nil, err
	}
	operatorPassword, err := newPassword()
	if err != nil {
		return nil, err
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = req.OperatorEmail
	}

	now := s.now()
	r := &model.Reservation{
		StationName:      snap.Name,
		ClientEmail:      req.ClientEmail,
		OperatorEmail:    req.OperatorEmail,
		ClientPassword:   clientPassword,
		OperatorPassword: operatorPassword,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		pick, found, err := s.claim(ctx, tx, snap.Name, candidates, 0, now)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotAvailable
		}
		r.LockerID = pick.Nickname
		return tx.CreateReservation(ctx, r)
	})
	if err != nil {
		if errors.Is(err, ErrNotAvailable) {
			return nil, err
		}
		return nil, fromStore(err)
	}

	log.Printf("Reserved locker %d at station %s (reservation %d)", r.LockerID, r.StationName, r.ID)
	return r, nil
}

// fitting returns the lockers that fit the parcel in allocation order:
// nickname ascending, then volume.
func fitting(snap station.Snapshot, h, w, d float64) []station.Locker {
	var out []station.Locker
	for _, l := range snap.Lockers {
		if l.Sizes.Fits(h, w, d) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Nickname != out[j].Nickname {
			return out[i].Nickname < out[j].Nickname
		}
		return out[i].Sizes.Volume() < out[j].Sizes.Volume()
	})
	return out
}

// reclaimable reports whether an active reservation may be swept: the client
// never confirmed it and the hold elapsed strictly before now.
func (s *Service) reclaimable(r model.Reservation, now time.Time) bool {
	return !r.ConfirmedClient && now.Sub(r.CreatedAt) > s.hold
}

// claim walks candidates in order and returns the first free one. Every stale
// reservation found on a candidate is expired, whether or not its locker wins.
// The reservation skip is ignored so a reservation can be moved off its own locker.
func (s *Service) claim(ctx context.Context, tx store.Store, stationName string, candidates []station.Locker, skip int64, now time.Time) (station.Locker, bool, error) {
	active, err := tx.ActiveReservations(ctx, stationName)
	if err != nil {
		return station.Locker{}, false, err
	}
	byLocker := make(map[int][]model.Reservation)
	for _, r := range active {
		if r.ID == skip {
			continue
		}
		byLocker[r.LockerID] = append(byLocker[r.LockerID], r)
	}

	var (
		pick  station.Locker
		found bool
		stale []int64
	)
	for _, l := range candidates {
		holders := byLocker[l.Nickname]
		free := true
		var expire []int64
		for _, r := range holders {
			if !s.reclaimable(r, now) {
				free = false
				break
			}
			expire = append(expire, r.ID)
		}
		if !free {
			continue
		}
		stale = append(stale, expire...)
		if !found {
			pick, found = l, true
		}
	}

	if len(stale) > 0 {
		if err := tx.ExpireReservations(ctx, stale, now); err != nil {
			return station.Locker{}, false, err
		}
		log.Printf("Expired %d stale reservations at station %s", len(stale), stationName)
	}
	return pick, found, nil
}
