package database

import (
	"context"
	"database/sql"
	"fmt"

	"venuebook/internal/model"
	"venuebook/internal/store"
)

var _ store.Backend = (*DB)(nil)

const bookingSelect = `
	SELECT id, club, event_name, contact_email, day, date, time_slot, venue,
	       expected_attendance, purpose, status, submitted_at, processed_at, admin_comment
	FROM bookings
	ORDER BY id`

// Load reads all bookings and the full log.
func (db *DB) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot

	rows, err := db.QueryContext(ctx, bookingSelect)
	if err != nil {
		return snap, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return store.Snapshot{}, err
		}
		snap.Bookings = append(snap.Bookings, b)
	}
	if err := rows.Err(); err != nil {
		return store.Snapshot{}, err
	}
	known := make(map[int64]bool, len(snap.Bookings))
	for i := range snap.Bookings {
		known[snap.Bookings[i].ID] = true
	}
	db.known = known

	logRows, err := db.QueryContext(ctx, `
		SELECT time, club, venue, status, day, date, time_slot, event, admin_comment
		FROM booking_log
		ORDER BY seq`)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("query booking log: %w", err)
	}
	defer logRows.Close()

	for logRows.Next() {
		var at string
		var e model.LogEntry
		var day, date, slot, event, comment sql.NullString
		if err := logRows.Scan(&at, &e.Club, &e.Venue, &e.Status, &day, &date, &slot, &event, &comment); err != nil {
			return store.Snapshot{}, err
		}
		if e.Time, err = model.ParseTimestamp(at); err != nil {
			return store.Snapshot{}, fmt.Errorf("parse log time %q: %w", at, err)
		}
		e.Day, e.Date, e.TimeSlot, e.Event, e.AdminComment = day.String, date.String, slot.String, event.String, comment.String
		snap.Logs = append(snap.Logs, e)
	}
	return snap, logRows.Err()
}

func scanBooking(rows *sql.Rows) (model.Booking, error) {
	var b model.Booking
	var contact, day, purpose, processed, comment sql.NullString
	var status, submitted string

	err := rows.Scan(
		&b.ID, &b.Club, &b.EventName, &contact, &day, &b.Date, &b.TimeSlot, &b.Venue,
		&b.ExpectedAttendance, &purpose, &status, &submitted, &processed, &comment,
	)
	if err != nil {
		return model.Booking{}, err
	}

	if b.Status, err = model.ParseStatus(status); err != nil {
		return model.Booking{}, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	if b.SubmittedAt, err = model.ParseTimestamp(submitted); err != nil {
		return model.Booking{}, fmt.Errorf("booking %d: parse submitted_at: %w", b.ID, err)
	}
	if processed.Valid && processed.String != "" {
		t, err := model.ParseTimestamp(processed.String)
		if err != nil {
			return model.Booking{}, fmt.Errorf("booking %d: parse processed_at: %w", b.ID, err)
		}
		b.ProcessedAt = &t
	}
	if comment.Valid {
		b.AdminComment = model.OptionalString(comment.String)
	}
	b.ContactEmail, b.Day, b.Purpose = contact.String, day.String, purpose.String
	return b, nil
}

// Commit inserts new bookings, updates the decision columns of stored ones and
// appends log rows in one transaction. Inserting an id that is already stored fails.
func (db *DB) Commit(ctx context.Context, changes store.Changeset) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted []int64
	for i := range changes.Bookings {
		b := &changes.Bookings[i]
		var processed sql.NullString
		if b.ProcessedAt != nil {
			processed = sql.NullString{String: model.FormatTimestamp(*b.ProcessedAt), Valid: true}
		}
		var comment sql.NullString
		if b.AdminComment != nil {
			comment = sql.NullString{String: *b.AdminComment, Valid: true}
		}

		if db.known[b.ID] {
			res, err := tx.ExecContext(ctx, `
				UPDATE bookings SET status = ?, processed_at = ?, admin_comment = ?
				WHERE id = ?`,
				string(b.Status), processed, comment, b.ID,
			)
			if err != nil {
				return fmt.Errorf("update booking %d: %w", b.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("update booking %d: %w", b.ID, err)
			} else if n != 1 {
				return fmt.Errorf("update booking %d: %d rows affected", b.ID, n)
			}
			continue
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (
				id, club, event_name, contact_email, day, date, time_slot, venue,
				expected_attendance, purpose, status, submitted_at, processed_at, admin_comment
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Club, b.EventName, b.ContactEmail, b.Day, b.Date, b.TimeSlot, b.Venue,
			b.ExpectedAttendance, b.Purpose, string(b.Status), model.FormatTimestamp(b.SubmittedAt),
			processed, comment,
		)
		if err != nil {
			return fmt.Errorf("insert booking %d: %w", b.ID, err)
		}
		inserted = append(inserted, b.ID)
	}

	for i := range changes.Logs {
		e := &changes.Logs[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO booking_log (time, club, venue, status, day, date, time_slot, event, admin_comment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			model.FormatTimestamp(e.Time), e.Club, e.Venue, e.Status, e.Day, e.Date, e.TimeSlot, e.Event, e.AdminComment,
		)
		if err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	for _, id := range inserted {
		db.known[id] = true
	}
	return nil
}
