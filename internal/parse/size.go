package parse

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeSepRe = regexp.MustCompile(`\s*[xX×]\s*`)

// Sizes holds the physical dimensions of a locker.
type Sizes struct {
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
	Depth  float64 `json:"depth"`
}

// Fits reports whether an item of the given dimensions fits on every axis.
func (s Sizes) Fits(height, width, depth float64) bool {
	return height <= s.Height && width <= s.Width && depth <= s.Depth
}

// Volume is used as a secondary ordering key.
func (s Sizes) Volume() float64 {
	return s.Height * s.Width * s.Depth
}

// ParseSize extracts height, width and depth from a hardware size string such as "[20x30x40]".
func ParseSize(raw string) (Sizes, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSpace(s)

	parts := sizeSepRe.Split(s, -1)
	if len(parts) != 3 {
		return Sizes{}, fmt.Errorf("unable to parse size %q: expected 3 dimensions, got %d", raw, len(parts))
	}

	var dims [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Sizes{}, fmt.Errorf("unable to parse size %q: %w", raw, err)
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return Sizes{}, fmt.Errorf("unable to parse size %q: dimension %d is not finite", raw, i+1)
		}
		if v <= 0 {
			return Sizes{}, fmt.Errorf("unable to parse size %q: dimension %d is not positive", raw, i+1)
		}
		dims[i] = v
	}

	return Sizes{Height: dims[0], Width: dims[1], Depth: dims[2]}, nil
}

// ParseNickname decodes a locker nickname sent either as a JSON number or a numeric string.
func ParseNickname(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing nickname")
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return nicknameFromString(n.String())
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unable to parse nickname %s", string(raw))
	}
	return nicknameFromString(s)
}

func nicknameFromString(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("unable to parse nickname %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("nickname %d is negative", n)
	}
	return n, nil
}
