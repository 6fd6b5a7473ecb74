package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BookingColumns is the column order of the bookings table.
var BookingColumns = []string{
	"id", "club", "event_name", "contact_email", "day", "date",
	"time_slot", "venue", "expected_attendance", "purpose",
	"status", "submitted_at", "processed_at", "admin_comment",
}

// LogColumns is the column order of the booking log table.
var LogColumns = []string{
	"time", "club", "venue", "status", "day", "date",
	"time_slot", "event", "admin_comment",
}

// FormatTimestamp renders t in TimestampLayout, local time.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout value as local time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.Local)
}

// Row renders the booking in BookingColumns order. Absent values are empty cells.
func (b *Booking) Row() []string {
	processed := ""
	if b.ProcessedAt != nil {
		processed = FormatTimestamp(*b.ProcessedAt)
	}
	return []string{
		strconv.FormatInt(b.ID, 10),
		b.Club,
		b.EventName,
		b.ContactEmail,
		b.Day,
		b.Date,
		b.TimeSlot,
		b.Venue,
		strconv.Itoa(b.ExpectedAttendance),
		b.Purpose,
		string(b.Status),
		FormatTimestamp(b.SubmittedAt),
		processed,
		b.Comment(),
	}
}

// ParseBookingRow builds a booking from a row keyed by column name.
func ParseBookingRow(row map[string]string) (Booking, error) {
	var b Booking
	var err error

	if b.ID, err = strconv.ParseInt(strings.TrimSpace(row["id"]), 10, 64); err != nil || b.ID <= 0 {
		return Booking{}, fmt.Errorf("parse id %q: must be a positive integer", row["id"])
	}
	if b.ExpectedAttendance, err = parseCount(row["expected_attendance"]); err != nil {
		return Booking{}, fmt.Errorf("booking %d: parse expected_attendance: %w", b.ID, err)
	}
	if b.Status, err = ParseStatus(row["status"]); err != nil {
		return Booking{}, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	if b.SubmittedAt, err = ParseTimestamp(row["submitted_at"]); err != nil {
		return Booking{}, fmt.Errorf("booking %d: parse submitted_at: %w", b.ID, err)
	}
	if v := row["processed_at"]; v != "" {
		t, err := ParseTimestamp(v)
		if err != nil {
			return Booking{}, fmt.Errorf("booking %d: parse processed_at: %w", b.ID, err)
		}
		b.ProcessedAt = &t
	}

	b.Club = row["club"]
	b.EventName = row["event_name"]
	b.ContactEmail = row["contact_email"]
	b.Day = row["day"]
	b.Date = row["date"]
	b.TimeSlot = row["time_slot"]
	b.Venue = row["venue"]
	b.Purpose = row["purpose"]
	b.AdminComment = OptionalString(row["admin_comment"])
	return b, nil
}

// parseCount accepts integers written as "120" or "120.0".
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}

// Row renders the entry in LogColumns order.
func (e *LogEntry) Row() []string {
	return []string{
		FormatTimestamp(e.Time),
		e.Club,
		e.Venue,
		e.Status,
		e.Day,
		e.Date,
		e.TimeSlot,
		e.Event,
		e.AdminComment,
	}
}

// ParseLogRow builds a log entry from a row keyed by column name.
func ParseLogRow(row map[string]string) (LogEntry, error) {
	t, err := ParseTimestamp(row["time"])
	if err != nil {
		return LogEntry{}, fmt.Errorf("parse log time: %w", err)
	}
	return LogEntry{
		Time:         t,
		Club:         row["club"],
		Venue:        row["venue"],
		Status:       row["status"],
		Day:          row["day"],
		Date:         row["date"],
		TimeSlot:     row["time_slot"],
		Event:        row["event"],
		AdminComment: row["admin_comment"],
	}, nil
}

// RowMap zips a header with a record.
func RowMap(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(record) {
			row[col] = record[i]
		}
	}
	return row
}
