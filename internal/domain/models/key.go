package models

import (
	"fmt"
	"regexp"
	"strings"

	"TradeGP/pkg/util"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Long, Short:
		return d, nil
	default:
		return "", fmt.Errorf("%w: direction must be long or short, got %q", ErrDataValidation, s)
	}
}

var (
	contractMonth = regexp.MustCompile(`\s+(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)\d{2}`)
	contractYear  = regexp.MustCompile(`\s+\d{4}`)
)

// NormalizeInstrument strips contract month/year suffixes, so "MGC AUG25"
// and "MGC 2025" both become "MGC". The result is a fixpoint:
// NormalizeInstrument(NormalizeInstrument(s)) == NormalizeInstrument(s).
func NormalizeInstrument(s string) string {
	for {
		next := contractMonth.ReplaceAllString(s, "")
		next = contractYear.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == s {
			return next
		}
		s = next
	}
}

// ModelKey identifies one bundle.
type ModelKey struct {
	Instrument string
	Direction  Direction
}

// NewModelKey normalizes both parts.
func NewModelKey(instrument, direction string) (ModelKey, error) {
	d, err := ParseDirection(direction)
	if err != nil {
		return ModelKey{}, err
	}
	inst := NormalizeInstrument(instrument)
	if inst == "" {
		return ModelKey{}, fmt.Errorf("%w: instrument is required", ErrDataValidation)
	}
	return ModelKey{Instrument: inst, Direction: d}, nil
}

// ParseModelKey parses "{instrument}_{direction}". The instrument may itself
// contain underscores.
func ParseModelKey(s string) (ModelKey, error) {
	inst, dir, ok := util.SplitLast(s, "_")
	if !ok {
		return ModelKey{}, fmt.Errorf("%w: malformed model key %q", ErrDataValidation, s)
	}
	return NewModelKey(inst, dir)
}

func (k ModelKey) String() string {
	return k.Instrument + "_" + string(k.Direction)
}

func (k ModelKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ModelKey) UnmarshalText(b []byte) error {
	parsed, err := ParseModelKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
