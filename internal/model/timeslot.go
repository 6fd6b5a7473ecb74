package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimeSlot is returned for slots that are not "HH:MM-HH:MM" with start before end.
var ErrInvalidTimeSlot = errors.New("invalid time slot")

const clockLayout = "15:04"

// TimeOfDay is a wall-clock time within a single day, in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != len(clockLayout) {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTimeSlot, s)
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not HH:MM", ErrInvalidTimeSlot, s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// TimeSlot is the half-open interval [Start, End) of a booking.
type TimeSlot struct {
	Start TimeOfDay
	End   TimeOfDay
}

// ParseTimeSlot parses the textual form "HH:MM-HH:MM".
func ParseTimeSlot(s string) (TimeSlot, error) {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return TimeSlot{}, fmt.Errorf("%w: %q, expected HH:MM-HH:MM", ErrInvalidTimeSlot, s)
	}
	from, err := ParseTimeOfDay(start)
	if err != nil {
		return TimeSlot{}, err
	}
	to, err := ParseTimeOfDay(end)
	if err != nil {
		return TimeSlot{}, err
	}
	if from >= to {
		return TimeSlot{}, fmt.Errorf("%w: %q, start must be before end", ErrInvalidTimeSlot, s)
	}
	return TimeSlot{Start: from, End: to}, nil
}

// MustParseTimeSlot is ParseTimeSlot for literals known to be valid.
func MustParseTimeSlot(s string) TimeSlot {
	slot, err := ParseTimeSlot(s)
	if err != nil {
		panic(err)
	}
	return slot
}

func (s TimeSlot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// Duration returns the length of the slot.
func (s TimeSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

// Overlaps reports whether two slots share any instant.
// Slots that only touch (one ends when the other starts) do not overlap.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.Start < other.End && s.End > other.Start
}
