// Package status aggregates severity-tiered status events from the runtime.
package status

import (
	"errors"
	"fmt"
)

// ErrInvalidLevel is returned for severities outside {error, warn, info}.
var ErrInvalidLevel = errors.New("invalid status level")

// Level is the closed set of status severities.
type Level int

const (
	LevelError Level = iota + 1
	LevelWarn
	LevelInfo
)

// Levels lists every valid level, most severe first.
var Levels = []Level{LevelError, LevelWarn, LevelInfo}

// ParseLevel maps a wire string to a Level. Only the exact lowercase names
// are accepted; anything else, including "ERROR" or " warn ", is rejected.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "error":
		return LevelError, nil
	case "warn":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelError, LevelWarn, LevelInfo:
		return true
	default:
		return false
	}
}

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// MarshalText encodes the level as its wire string.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a wire string, rejecting unknown levels.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
