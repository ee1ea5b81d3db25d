package station

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the availability state of a locker. The same codes are used on
// the hardware wire (numeric 0..5) and for statuses derived from reservations.
type Status int

const (
	StatusAvailable Status = iota
	StatusReserved
	StatusConfirmed
	StatusLoading
	StatusUsed
	StatusUnloading
)

var statusNames = [...]string{
	StatusAvailable: "AVAILABLE",
	StatusReserved:  "RESERVED",
	StatusConfirmed: "CONFIRMED",
	StatusLoading:   "LOADING",
	StatusUsed:      "USED",
	StatusUnloading: "UNLOADING",
}

// Station firmware reports these labels instead of numeric codes.
var hardwareLabels = map[string]Status{
	"DISPONIBLE":  StatusAvailable,
	"RESERVADO":   StatusReserved,
	"CONFIRMADO":  StatusConfirmed,
	"CARGANDO":    StatusLoading,
	"USADO":       StatusUsed,
	"DESCARGANDO": StatusUnloading,
}

// Valid reports whether s is one of the known codes.
func (s Status) Valid() bool {
	return s >= StatusAvailable && s <= StatusUnloading
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid locker status %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts anything ParseStatus accepts.
func (s *Status) UnmarshalJSON(data []byte) error {
	v, err := ParseStatus(data)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus decodes a wire status given as a number, a numeric string, or a name.
func ParseStatus(raw json.RawMessage) (Status, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing locker state")
	}

	var code int
	if err := json.Unmarshal(raw, &code); err == nil {
		return statusFromCode(code)
	}

	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return 0, fmt.Errorf("unable to parse locker state %s", string(raw))
	}
	label = strings.ToUpper(strings.TrimSpace(label))

	if code, err := strconv.Atoi(label); err == nil {
		return statusFromCode(code)
	}
	for i, name := range statusNames {
		if name == label {
			return Status(i), nil
		}
	}
	if st, ok := hardwareLabels[label]; ok {
		return st, nil
	}
	return 0, fmt.Errorf("unknown locker state %q", label)
}

func statusFromCode(code int) (Status, error) {
	s := Status(code)
	if !s.Valid() {
		return 0, fmt.Errorf("locker state %d out of range", code)
	}
	return s, nil
}
