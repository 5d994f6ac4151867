package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jooniper-hub/tv-bot/internal/risk"
)

// ErrUnknownSignal is returned for any signal outside the four known ones.
var ErrUnknownSignal = errors.New("unknown signal")

// Signal is a directional instruction received over the webhook.
type Signal string

const (
	LongEntry  Signal = "LONG_ENTRY"
	ShortEntry Signal = "SHORT_ENTRY"
	LongExit   Signal = "LONG_EXIT"
	ShortExit  Signal = "SHORT_EXIT"
)

// ParseSignal normalizes raw and rejects unknown values.
func ParseSignal(raw string) (Signal, error) {
	s := Signal(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case LongEntry, ShortEntry, LongExit, ShortExit:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSignal, raw)
}

// Side is the position side the signal refers to.
func (s Signal) Side() risk.Side {
	switch s {
	case LongEntry, LongExit:
		return risk.SideLong
	case ShortEntry, ShortExit:
		return risk.SideShort
	}
	return risk.SideFlat
}

// IsEntry reports whether s opens a position.
func (s Signal) IsEntry() bool {
	return s == LongEntry || s == ShortEntry
}
