package hardware

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcel-locker-backend/internal/parse"
	"parcel-locker-backend/internal/station"
)

func TestDecodeReport(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	t.Run("Current format", func(t *testing.T) {
		payload := `{
			"station_name": "G7",
			"address": "Campus San Joaquin",
			"lockers": [
				{"nickname": 1, "state": 4, "is_open": false, "is_empty": false, "size": "[30x30x30]"},
				{"nickname": "0", "state": 0, "is_open": true, "is_empty": true, "size": "20x20x20"}
			]
		}`

		snap, skipped, err := DecodeReport([]byte(payload), now)
		require.NoError(t, err)
		assert.Empty(t, skipped)
		assert.Equal(t, "G7", snap.Name)
		assert.Equal(t, "Campus San Joaquin", snap.Address)
		assert.Equal(t, now, snap.ObservedAt)
		require.Len(t, snap.Lockers, 2)
		assert.Equal(t, station.Locker{
			Nickname: 1,
			Sizes:    parse.Sizes{Height: 30, Width: 30, Depth: 30},
			State:    station.StatusUsed,
		}, snap.Lockers[0])
		assert.Equal(t, 0, snap.Lockers[1].Nickname)
		assert.True(t, snap.Lockers[1].IsOpen)
		assert.True(t, snap.Lockers[1].IsEmpty)
	})

	t.Run("Legacy keys and labels", func(t *testing.T) {
		payload := `{"station_id": "G7", "lockers": [{"nickname": "0", "state": "RESERVADO", "is_open": true, "is_empty": false, "sizes": "[20x20x20]"}]}`

		snap, skipped, err := DecodeReport([]byte(payload), now)
		require.NoError(t, err)
		assert.Empty(t, skipped)
		assert.Equal(t, "G7", snap.Name)
		require.Len(t, snap.Lockers, 1)
		assert.Equal(t, station.StatusReserved, snap.Lockers[0].State)
		assert.Equal(t, parse.Sizes{Height: 20, Width: 20, Depth: 20}, snap.Lockers[0].Sizes)
	})

	t.Run("Bad entries are skipped", func(t *testing.T) {
		payload := `{"station_name": "G7", "lockers": [
			{"nickname": "left", "state": 0, "size": "20x20x20"},
			{"nickname": 1, "state": 9, "size": "20x20x20"},
			{"nickname": 2, "state": 0, "size": "20x20"},
			{"nickname": 3, "size": "20x20x20"}
		]}`

		snap, skipped, err := DecodeReport([]byte(payload), now)
		require.NoError(t, err)
		assert.Len(t, skipped, 3)
		require.Len(t, snap.Lockers, 1)
		assert.Equal(t, 3, snap.Lockers[0].Nickname)
		assert.Equal(t, station.StatusAvailable, snap.Lockers[0].State, "missing state defaults to available")
	})

	t.Run("Malformed payloads", func(t *testing.T) {
		for _, payload := range []string{`not json`, `{"lockers": []}`, `{"station_name": "  "}`, `[]`} {
			_, _, err := DecodeReport([]byte(payload), now)
			assert.Error(t, err, payload)
		}
	})
}

func TestEncodeCommand(t *testing.T) {
	payload, err := EncodeCommand("G7", 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"station_name":"G7","nickname":3}`, string(payload))

	var cmd Command
	require.NoError(t, json.Unmarshal(payload, &cmd))
	assert.Equal(t, Command{StationName: "G7", Nickname: 3}, cmd)

	_, err = EncodeCommand("", 3)
	assert.Error(t, err)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "open", ActionOpen.String())
	assert.Equal(t, "load", ActionLoad.String())
	assert.Equal(t, "unload", ActionUnload.String())
	assert.Equal(t, "Action(7)", Action(7).String())
}
