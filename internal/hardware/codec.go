package hardware

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"parcel-locker-backend/internal/parse"
	"parcel-locker-backend/internal/station"
)

// wireLocker models one locker entry of an inbound station report.
// Older firmware sends "sizes" instead of "size".
type wireLocker struct {
	Nickname json.RawMessage `json:"nickname"`
	State    json.RawMessage `json:"state"`
	IsOpen   bool            `json:"is_open"`
	IsEmpty  bool            `json:"is_empty"`
	Size     string          `json:"size"`
	Sizes    string          `json:"sizes"`
}

// wireReport models the payload published on the detail topic.
// Older firmware sends "station_id" instead of "station_name".
type wireReport struct {
	StationName string       `json:"station_name"`
	StationID   string       `json:"station_id"`
	Address     string       `json:"address"`
	Lockers     []wireLocker `json:"lockers"`
}

// DecodeReport turns a detail payload into a station snapshot. Locker entries
// that cannot be parsed are skipped and returned as skipped errors; the
// report as a whole only fails when it is not JSON or names no station.
func DecodeReport(payload []byte, observedAt time.Time) (station.Snapshot, []error, error) {
	var report wireReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return station.Snapshot{}, nil, fmt.Errorf("failed to unmarshal station report: %w", err)
	}

	name := strings.TrimSpace(report.StationName)
	if name == "" {
		name = strings.TrimSpace(report.StationID)
	}
	if name == "" {
		return station.Snapshot{}, nil, errors.New("station report has no station name")
	}

	snap := station.Snapshot{
		Name:       name,
		Address:    report.Address,
		ObservedAt: observedAt,
		Lockers:    make([]station.Locker, 0, len(report.Lockers)),
	}

	var skipped []error
	for i, wl := range report.Lockers {
		locker, err := decodeLocker(wl)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("locker entry %d: %w", i, err))
			continue
		}
		snap.Lockers = append(snap.Lockers, locker)
	}
	return snap, skipped, nil
}

func decodeLocker(wl wireLocker) (station.Locker, error) {
	nickname, err := parse.ParseNickname(wl.Nickname)
	if err != nil {
		return station.Locker{}, err
	}

	rawSize := wl.Size
	if rawSize == "" {
		rawSize = wl.Sizes
	}
	sizes, err := parse.ParseSize(rawSize)
	if err != nil {
		return station.Locker{}, err
	}

	state := station.StatusAvailable
	if len(wl.State) > 0 && string(wl.State) != "null" {
		state, err = station.ParseStatus(wl.State)
		if err != nil {
			return station.Locker{}, err
		}
	}

	return station.Locker{
		Nickname: nickname,
		Sizes:    sizes,
		IsOpen:   wl.IsOpen,
		IsEmpty:  wl.IsEmpty,
		State:    state,
	}, nil
}

// Action is a physical command sent to a station.
type Action int

const (
	ActionOpen Action = iota
	ActionLoad
	ActionUnload
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionLoad:
		return "load"
	case ActionUnload:
		return "unload"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Command is the outbound payload for open/load/unload topics.
type Command struct {
	StationName string `json:"station_name"`
	Nickname    int    `json:"nickname"`
}

// EncodeCommand serializes a command payload.
func EncodeCommand(stationName string, nickname int) ([]byte, error) {
	if stationName == "" {
		return nil, errors.New("command has no station name")
	}
	return json.Marshal(Command{StationName: stationName, Nickname: nickname})
}
