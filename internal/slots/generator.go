package slots

import (
	"fmt"

	"venuebook/internal/config"
	"venuebook/internal/model"
)

// Slot is a fixed-length slot inside a venue's opening hours.
type Slot struct {
	model.TimeSlot
	Available bool
}

// Schedule contains the opening window of a venue for a day.
type Schedule struct {
	Open         model.TimeOfDay
	Close        model.TimeOfDay
	SlotDuration int // minutes
	IsClosed     bool
}

// ScheduleFromHours converts configured opening hours into a Schedule.
// A nil hours value means the venue is closed.
func ScheduleFromHours(h *config.HoursConfig) (Schedule, error) {
	if h == nil {
		return Schedule{IsClosed: true}, nil
	}
	open, err := model.ParseTimeOfDay(h.Open)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse open time: %w", err)
	}
	closing, err := model.ParseTimeOfDay(h.Close)
	if err != nil {
		return Schedule{}, fmt.Errorf("parse close time: %w", err)
	}
	return Schedule{Open: open, Close: closing, SlotDuration: h.SlotDurationMinutes}, nil
}

// AvailabilityChecker answers whether a venue is free for a slot on a date.
type AvailabilityChecker interface {
	CheckAvailability(venue, date string, slot model.TimeSlot) bool
}

// Generator generates slots for a venue and date.
type Generator struct {
	checker AvailabilityChecker
}

// NewGenerator creates a new slot generator.
func NewGenerator(checker AvailabilityChecker) *Generator {
	return &Generator{checker: checker}
}

// GenerateSlots walks [Open, Close) in SlotDuration steps. A trailing
// remainder shorter than one slot is not offered.
func (g *Generator) GenerateSlots(venue, date string, schedule Schedule) []Slot {
	if schedule.IsClosed {
		return nil
	}

	step := model.TimeOfDay(schedule.SlotDuration)
	if step <= 0 {
		step = 60
	}

	var slots []Slot
	for cursor := schedule.Open; cursor+step <= schedule.Close; cursor += step {
		ts := model.TimeSlot{Start: cursor, End: cursor + step}
		available := true
		if g.checker != nil {
			available = g.checker.CheckAvailability(venue, date, ts)
		}
		slots = append(slots, Slot{TimeSlot: ts, Available: available})
	}
	return slots
}

// GetAvailableSlots returns only available slots.
func GetAvailableSlots(slots []Slot) []Slot {
	var available []Slot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// FreeWindows merges consecutive available slots into maximal free windows.
func FreeWindows(slots []Slot) []model.TimeSlot {
	var windows []model.TimeSlot
	for _, s := range slots {
		if !s.Available {
			continue
		}
		if n := len(windows); n > 0 && windows[n-1].End == s.Start {
			windows[n-1].End = s.End
			continue
		}
		windows = append(windows, s.TimeSlot)
	}
	return windows
}
