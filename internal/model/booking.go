package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format of a booking.
const DateLayout = "2006-01-02"

// TimestampLayout formats submitted/processed timestamps, local time, string-sortable.
const TimestampLayout = "2006-01-02 15:04:05"

// Request holds the fields a club submits.
type Request struct {
	Club               string `json:"club"`
	EventName          string `json:"event_name"`
	ContactEmail       string `json:"contact_email"`
	Day                string `json:"day"` // free-text weekday label, not checked against Date
	Date               string `json:"date"`
	TimeSlot           string `json:"time_slot"`
	Venue              string `json:"venue"`
	ExpectedAttendance int    `json:"expected_attendance"`
	Purpose            string `json:"purpose"`
}

// ValidationError lists the fields of a request that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid booking request: " + strings.Join(e.Problems, "; ")
}

// Validate checks the request before it reaches the store.
func (r Request) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Club) == "" {
		problems = append(problems, "club is required")
	}
	if strings.TrimSpace(r.EventName) == "" {
		problems = append(problems, "event name is required")
	}
	if strings.TrimSpace(r.Venue) == "" {
		problems = append(problems, "venue is required")
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		problems = append(problems, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", r.Date))
	}
	if _, err := ParseTimeSlot(r.TimeSlot); err != nil {
		problems = append(problems, err.Error())
	}
	if r.ExpectedAttendance <= 0 {
		problems = append(problems, "expected attendance must be a positive number")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Booking is one reservation request as persisted.
type Booking struct {
	ID int64 `json:"id"`
	Request
	Status       Status     `json:"status"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`  // nil while pending
	AdminComment *string    `json:"admin_comment,omitempty"` // nil when no comment was given
}

// Slot parses the booking's time slot.
func (b *Booking) Slot() (TimeSlot, error) {
	return ParseTimeSlot(b.TimeSlot)
}

// Comment returns the admin comment or "" when absent.
func (b *Booking) Comment() string {
	if b.AdminComment == nil {
		return ""
	}
	return *b.AdminComment
}

// IsProcessed reports whether an administrator has decided on the booking.
func (b *Booking) IsProcessed() bool {
	return b.ProcessedAt != nil
}

// Clone returns a copy that shares no pointers with b.
func (b Booking) Clone() Booking {
	if b.ProcessedAt != nil {
		t := *b.ProcessedAt
		b.ProcessedAt = &t
	}
	if b.AdminComment != nil {
		c := *b.AdminComment
		b.AdminComment = &c
	}
	return b
}

// OptionalString turns an empty string into an absent value.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
