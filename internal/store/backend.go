package store

import (
	"context"

	"venuebook/internal/model"
)

// Snapshot is the full persisted state read when a store opens.
type Snapshot struct {
	Bookings []model.Booking // insertion order
	Logs     []model.LogEntry
}

// Changeset carries the mutations made since the last commit.
type Changeset struct {
	Bookings []model.Booking // new or updated records, full contents
	Logs     []model.LogEntry
}

// IsEmpty reports whether there is nothing to commit.
func (c Changeset) IsEmpty() bool {
	return len(c.Bookings) == 0 && len(c.Logs) == 0
}

// Backend persists the store. A backend has exactly one writer: the store that opened it.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	// Commit durably applies changes. Bookings are upserted by id; logs are appended.
	Commit(ctx context.Context, changes Changeset) error
	Close() error
}
