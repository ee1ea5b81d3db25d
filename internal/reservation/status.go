package reservation

import (
	"context"
	"time"

	"parcel-locker-backend/internal/model"
	"parcel-locker-backend/internal/station"
)

// DeriveStatus computes the logical locker status from its active reservation.
// A nil or inactive reservation leaves the locker available.
func DeriveStatus(r *model.Reservation) station.Status {
	switch {
	case r == nil || !r.Active():
		return station.StatusAvailable
	case r.Loaded:
		return station.StatusUsed
	case r.ConfirmedOperator:
		return station.StatusLoading
	case !r.ConfirmedClient:
		return station.StatusReserved
	default:
		return station.StatusConfirmed
	}
}

// LockerView is a cached locker merged with its reservation-derived status.
type LockerView struct {
	StationName string `json:"station_name"`
	station.Locker
	Status            station.Status `json:"status"`
	Loaded            bool           `json:"loaded"`
	ConfirmedOperator bool           `json:"confirmed_operator"`
}

// StationView is a station snapshot as served to clients.
type StationView struct {
	Name                  string       `json:"station_name"`
	Address               string       `json:"address,omitempty"`
	ObservedAt            time.Time    `json:"observed_at"`
	Lockers               []LockerView `json:"lockers"`
	ConfirmedReservations int64        `json:"confirmed_reservations"`
}

func newLockerView(stationName string, l station.Locker, r *model.Reservation) LockerView {
	v := LockerView{StationName: stationName, Locker: l, Status: DeriveStatus(r)}
	if r != nil && r.Active() {
		v.Loaded = r.Loaded
		v.ConfirmedOperator = r.ConfirmedOperator
	}
	return v
}

// Station returns one station with a derived status for every locker.
func (s *Service) Station(ctx context.Context, name string) (StationView, error) {
	snap, ok := s.stations.Station(name)
	if !ok {
		return StationView{}, ErrNotFound
	}
	return s.view(ctx, snap)
}

// Stations lists every known station with derived locker statuses.
func (s *Service) Stations(ctx context.Context) ([]StationView, error) {
	snaps := s.stations.Stations()
	views := make([]StationView, 0, len(snaps))
	for _, snap := range snaps {
		v, err := s.view(ctx, snap)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// view merges a snapshot with the station's active reservations.
func (s *Service) view(ctx context.Context, snap station.Snapshot) (StationView, error) {
	active, err := s.store.ActiveReservations(ctx, snap.Name)
	if err != nil {
		return StationView{}, err
	}

	// Newest first, so the first reservation seen per locker wins.
	byLocker := make(map[int]*model.Reservation, len(active))
	var confirmed int64
	for i := range active {
		r := &active[i]
		if _, seen := byLocker[r.LockerID]; !seen {
			byLocker[r.LockerID] = r
		}
		if r.ConfirmedClient {
			confirmed++
		}
	}

	view := StationView{
		Name:                  snap.Name,
		Address:               snap.Address,
		ObservedAt:            snap.ObservedAt,
		Lockers:               make([]LockerView, 0, len(snap.Lockers)),
		ConfirmedReservations: confirmed,
	}
	for _, l := range snap.Lockers {
		view.Lockers = append(view.Lockers, newLockerView(snap.Name, l, byLocker[l.Nickname]))
	}
	return view, nil
}
