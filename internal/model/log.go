package model

import "time"

// LogSubmitted is the log status recorded when a request is created.
const LogSubmitted = "Submitted"

// LogEntry is one line of the append-only booking history.
type LogEntry struct {
	Time         time.Time `json:"time"`
	Club         string    `json:"club"`
	Venue        string    `json:"venue"`
	Status       string    `json:"status"` // Submitted, Approved or Rejected
	Day          string    `json:"day"`
	Date         string    `json:"date"`
	TimeSlot     string    `json:"time_slot"`
	Event        string    `json:"event"`
	AdminComment string    `json:"admin_comment"`
}

// NewLogEntry builds the log line describing b after it reached status at t.
func NewLogEntry(b *Booking, status string, t time.Time) LogEntry {
	return LogEntry{
		Time:         t,
		Club:         b.Club,
		Venue:        b.Venue,
		Status:       status,
		Day:          b.Day,
		Date:         b.Date,
		TimeSlot:     b.TimeSlot,
		Event:        b.EventName,
		AdminComment: b.Comment(),
	}
}
