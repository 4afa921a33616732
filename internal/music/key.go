package music

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is a position on the Camelot wheel. Number runs 1..12, Minor selects the
// inner (A, minor) or outer (B, major) ring. The zero value is not a valid key.
type Key struct {
	Number int
	Minor  bool
}

// ParseKey converts a Camelot token such as "8A" or "12b" into a Key.
func ParseKey(token string) (Key, error) {
	trimmed := strings.TrimSpace(token)
	if len(trimmed) < 2 {
		return Key{}, fmt.Errorf("camelot key %q: too short", token)
	}
	ring := trimmed[len(trimmed)-1]
	number, err := strconv.Atoi(trimmed[:len(trimmed)-1])
	if err != nil {
		return Key{}, fmt.Errorf("camelot key %q: %w", token, err)
	}
	if number < 1 || number > 12 {
		return Key{}, fmt.Errorf("camelot key %q: number out of range", token)
	}
	switch ring {
	case 'A', 'a':
		return Key{Number: number, Minor: true}, nil
	case 'B', 'b':
		return Key{Number: number, Minor: false}, nil
	default:
		return Key{}, fmt.Errorf("camelot key %q: ring must be A or B", token)
	}
}

// MustParseKey parses token and panics on failure. Intended for constants and tests.
func MustParseKey(token string) Key {
	key, err := ParseKey(token)
	if err != nil {
		panic(err)
	}
	return key
}

func (k Key) String() string {
	ring := "B"
	if k.Minor {
		ring = "A"
	}
	return strconv.Itoa(k.Number) + ring
}

// Valid reports whether the key denotes one of the 24 Camelot positions.
func (k Key) Valid() bool {
	return k.Number >= 1 && k.Number <= 12
}

// WheelDistance returns the minimal number of steps between the two key
// numbers going around the 12-position wheel, ignoring the ring.
func (k Key) WheelDistance(other Key) int {
	diff := k.Number - other.Number
	if diff < 0 {
		diff = -diff
	}
	if diff > 6 {
		diff = 12 - diff
	}
	return diff
}

// Relative reports whether other is the relative major/minor of k: same
// number, opposite ring.
func (k Key) Relative(other Key) bool {
	return k.Number == other.Number && k.Minor != other.Minor
}

// Adjacent reports whether other sits one step away on the same ring,
// wrapping 1 and 12.
func (k Key) Adjacent(other Key) bool {
	return k.Minor == other.Minor && k.WheelDistance(other) == 1
}

// AllKeys returns the 24 Camelot keys in wheel order, minor ring first.
func AllKeys() []Key {
	keys := make([]Key, 0, 24)
	for _, minor := range []bool{true, false} {
		for number := 1; number <= 12; number++ {
			keys = append(keys, Key{Number: number, Minor: minor})
		}
	}
	return keys
}

// Camelot numbers indexed by pitch class (0 = C .. 11 = B).
var (
	majorWheelNumber = [12]int{8, 3, 10, 5, 12, 7, 2, 9, 4, 11, 6, 1}
	minorWheelNumber = [12]int{5, 12, 7, 2, 9, 4, 11, 6, 1, 8, 3, 10}
)

// KeyFromPitchClass maps a tonic pitch class and mode onto the Camelot wheel.
// Pitch class 0 is C; for example C major is 8B and A minor is 8A.
func KeyFromPitchClass(pitchClass int, minor bool) (Key, error) {
	if pitchClass < 0 || pitchClass > 11 {
		return Key{}, fmt.Errorf("pitch class %d out of range", pitchClass)
	}
	if minor {
		return Key{Number: minorWheelNumber[pitchClass], Minor: true}, nil
	}
	return Key{Number: majorWheelNumber[pitchClass], Minor: false}, nil
}
