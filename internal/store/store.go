// Package store owns booking records and the booking log.
//
// Records live in memory keyed by id; every mutation is written through a
// Backend at an explicit flush boundary. By default each operation flushes
// immediately and is rolled back in memory if the backend refuses it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"venuebook/internal/model"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound         = errors.New("booking not found")
	ErrInvalidStatus    = errors.New("invalid target status")
	ErrAlreadyProcessed = errors.New("booking already processed")
	ErrPersist          = errors.New("persist bookings")
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.With().Str("component", "store").Logger()
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// stamp returns the current time at the one-second precision the tables store.
func (s *Store) stamp() time.Time {
	return s.now().Truncate(time.Second)
}

// WithReprocessing allows UpdateStatus on records that already left Pending.
// The later decision overwrites status, processed_at and the comment.
func WithReprocessing(allow bool) Option {
	return func(s *Store) { s.reprocess = allow }
}

// WithDeferredFlush keeps mutations in memory until Flush or Close.
func WithDeferredFlush() Option {
	return func(s *Store) { s.deferred = true }
}

// Store is the booking store. It is safe for use by multiple goroutines of one process.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	logger    zerolog.Logger
	now       func() time.Time
	reprocess bool
	deferred  bool

	bookings map[int64]*model.Booking
	order    []int64
	logs     []model.LogEntry
	nextID   int64

	pending    Changeset
	pendingIdx map[int64]int // booking id -> index in pending.Bookings
}

// Open loads the backend snapshot into a new store.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:    backend,
		logger:     zerolog.Nop(),
		now:        time.Now,
		bookings:   make(map[int64]*model.Booking),
		pendingIdx: make(map[int64]int),
		nextID:     1,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load bookings")
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	for i := range snap.Bookings {
		b := snap.Bookings[i].Clone()
		if _, dup := s.bookings[b.ID]; dup {
			return nil, fmt.Errorf("load bookings: duplicate id %d", b.ID)
		}
		s.bookings[b.ID] = &b
		s.order = append(s.order, b.ID)
		if b.ID >= s.nextID {
			s.nextID = b.ID + 1
		}
	}
	s.logs = append(s.logs, snap.Logs...)

	s.logger.Debug().
		Int("bookings", len(s.order)).
		Int("logs", len(s.logs)).
		Int64("next_id", s.nextID).
		Msg("Store opened")
	return s, nil
}

// SaveRequest records a new Pending booking and its Submitted log entry.
func (s *Store) SaveRequest(ctx context.Context, req model.Request) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	b := &model.Booking{
		ID:          s.nextID,
		Request:     req,
		Status:      model.StatusPending,
		SubmittedAt: now,
	}
	entry := model.NewLogEntry(b, model.LogSubmitted, now)

	s.bookings[b.ID] = b
	s.order = append(s.order, b.ID)
	s.nextID++
	s.stage(b, entry)

	undo := func() {
		delete(s.bookings, b.ID)
		s.order = s.order[:len(s.order)-1]
		s.logs = s.logs[:len(s.logs)-1]
		s.nextID--
	}
	if err := s.flushOp(ctx, undo); err != nil {
		s.logger.Error().Err(err).Str("club", req.Club).Str("venue", req.Venue).Msg("Failed to save request")
		return 0, fmt.Errorf("save request: %w: %w", ErrPersist, err)
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("club", b.Club).
		Str("venue", b.Venue).
		Str("date", b.Date).
		Str("time_slot", b.TimeSlot).
		Msg("Booking request submitted")
	return b.ID, nil
}

// UpdateStatus moves a booking to Approved or Rejected and logs the decision.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status model.Status, comment string) error {
	if !status.IsDecision() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		s.logger.Warn().Int64("booking_id", id).Msg("Booking not found")
		return fmt.Errorf("update booking %d: %w", id, ErrNotFound)
	}
	if !b.Status.CanTransitionTo(status) && !s.reprocess {
		return fmt.Errorf("update booking %d: %w (status %s)", id, ErrAlreadyProcessed, b.Status)
	}

	prev := b.Clone()
	now := s.stamp()
	b.Status = status
	b.ProcessedAt = &now
	b.AdminComment = model.OptionalString(comment)
	s.stage(b, model.NewLogEntry(b, string(status), now))

	undo := func() {
		*b = prev
		s.logs = s.logs[:len(s.logs)-1]
	}
	if err := s.flushOp(ctx, undo); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", id).Str("status", string(status)).Msg("Failed to update status")
		return fmt.Errorf("update booking %d: %w: %w", id, ErrPersist, err)
	}

	s.logger.Info().
		Int64("booking_id", id).
		Str("from", string(prev.Status)).
		Str("to", string(status)).
		Msg("Booking status updated")
	return nil
}

// stage appends the mutation to the in-memory log and the pending changeset.
func (s *Store) stage(b *model.Booking, entry model.LogEntry) {
	s.logs = append(s.logs, entry)
	if i, ok := s.pendingIdx[b.ID]; ok {
		s.pending.Bookings[i] = b.Clone()
	} else {
		s.pendingIdx[b.ID] = len(s.pending.Bookings)
		s.pending.Bookings = append(s.pending.Bookings, b.Clone())
	}
	s.pending.Logs = append(s.pending.Logs, entry)
}

// flushOp commits the operation just staged unless flushing is deferred.
// On failure the operation is undone so memory and backend agree.
func (s *Store) flushOp(ctx context.Context, undo func()) error {
	if s.deferred {
		return nil
	}
	if err := s.commitLocked(ctx); err != nil {
		undo()
		s.resetPending()
		return err
	}
	return nil
}

func (s *Store) commitLocked(ctx context.Context) error {
	if s.pending.IsEmpty() {
		return nil
	}
	if err := s.backend.Commit(ctx, s.pending); err != nil {
		return err
	}
	s.resetPending()
	return nil
}

func (s *Store) resetPending() {
	s.pending = Changeset{}
	s.pendingIdx = make(map[int64]int)
}

// Flush commits pending changes. On failure they stay pending for a later Flush.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitLocked(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to flush bookings")
		return fmt.Errorf("flush: %w: %w", ErrPersist, err)
	}
	return nil
}

// Close flushes pending changes and releases the backend.
func (s *Store) Close() error {
	flushErr := s.Flush(context.Background())
	closeErr := s.backend.Close()
	return errors.Join(flushErr, closeErr)
}
