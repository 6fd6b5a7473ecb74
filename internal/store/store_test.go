package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"venuebook/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend that can be told to fail.
type memBackend struct {
	snapshot Snapshot
	commits  []Changeset
	failWith error
	closed   bool
}

func (m *memBackend) Load(context.Context) (Snapshot, error) { return m.snapshot, nil }

func (m *memBackend) Commit(_ context.Context, c Changeset) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.commits = append(m.commits, c)
	return nil
}

func (m *memBackend) Close() error {
	m.closed = true
	return nil
}

func (m *memBackend) committedLogs() []model.LogEntry {
	var logs []model.LogEntry
	for _, c := range m.commits {
		logs = append(logs, c.Logs...)
	}
	return logs
}

var fixedNow = time.Date(2024, 4, 20, 10, 0, 0, 0, time.Local)

func request(club, venue, date, slot string) model.Request {
	return model.Request{
		Club:               club,
		EventName:          club + " meetup",
		ContactEmail:       "club@example.org",
		Day:                "Wednesday",
		Date:               date,
		TimeSlot:           slot,
		Venue:              venue,
		ExpectedAttendance: 50,
		Purpose:            "Meeting",
	}
}

func openStore(t *testing.T, backend *memBackend, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s, err := Open(context.Background(), backend, opts...)
	require.NoError(t, err)
	return s
}

func slot(s string) model.TimeSlot { return model.MustParseTimeSlot(s) }

func TestStore_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := openStore(t, backend)

	idA, err := s.SaveRequest(ctx, request("Chess", "Auditorium", "2024-05-01", "09:00-11:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), idA)

	a, ok := s.GetBookingByID(idA)
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, fixedNow, a.SubmittedAt)
	assert.Nil(t, a.ProcessedAt)
	assert.Nil(t, a.AdminComment)

	logs := s.GetLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, model.LogSubmitted, logs[0].Status)
	assert.Equal(t, "", logs[0].AdminComment)

	idB, err := s.SaveRequest(ctx, request("Drama", "Auditorium", "2024-05-01", "09:00-11:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), idB)
	assert.Len(t, s.GetPendingRequests(), 2)

	conflicts := s.GetConflictingBookings("Auditorium", "2024-05-01", slot("09:00-11:00"), idB)
	require.Len(t, conflicts, 1)
	assert.Equal(t, idA, conflicts[0].ID)

	require.NoError(t, s.UpdateStatus(ctx, idA, model.StatusApproved, "ok"))
	a, _ = s.GetBookingByID(idA)
	assert.Equal(t, model.StatusApproved, a.Status)
	require.NotNil(t, a.ProcessedAt)
	assert.Equal(t, fixedNow, *a.ProcessedAt)
	assert.Equal(t, "ok", a.Comment())

	logs = s.GetLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, "Approved", logs[2].Status)
	assert.Equal(t, "ok", logs[2].AdminComment)

	pending := s.GetPendingRequests()
	require.Len(t, pending, 1)
	assert.Equal(t, idB, pending[0].ID)

	assert.Equal(t, logs, backend.committedLogs())
}

func TestStore_Availability(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &memBackend{})

	_, err := s.SaveRequest(ctx, request("Chess", "Auditorium", "2024-05-01", "09:00-11:00"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		venue string
		date  string
		slot  string
		want  bool
	}{
		{name: "touching after", venue: "Auditorium", date: "2024-05-01", slot: "11:00-13:00", want: true},
		{name: "touching before", venue: "Auditorium", date: "2024-05-01", slot: "07:00-09:00", want: true},
		{name: "strict overlap", venue: "Auditorium", date: "2024-05-01", slot: "10:00-12:00", want: false},
		{name: "identical", venue: "Auditorium", date: "2024-05-01", slot: "09:00-11:00", want: false},
		{name: "other venue", venue: "LT-1", date: "2024-05-01", slot: "09:00-11:00", want: true},
		{name: "other date", venue: "Auditorium", date: "2024-05-02", slot: "09:00-11:00", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.CheckAvailability(tt.venue, tt.date, slot(tt.slot)))
			conflicts := s.GetConflictingBookings(tt.venue, tt.date, slot(tt.slot), 0)
			assert.Equal(t, tt.want, len(conflicts) == 0)
		})
	}
}

func TestStore_StrictOverlapReturnsExactlyTheOverlappingRecord(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &memBackend{})

	id1, _ := s.SaveRequest(ctx, request("Chess", "LT-1", "2024-05-01", "09:00-11:00"))
	_, _ = s.SaveRequest(ctx, request("Drama", "LT-1", "2024-05-01", "11:00-13:00"))
	_, _ = s.SaveRequest(ctx, request("Choir", "LT-2", "2024-05-01", "10:00-12:00"))

	conflicts := s.GetConflictingBookings("LT-1", "2024-05-01", slot("10:00-11:00"), 0)
	require.Len(t, conflicts, 1)
	assert.Equal(t, id1, conflicts[0].ID)
	assert.False(t, s.CheckAvailability("LT-1", "2024-05-01", slot("10:00-11:00")))
}

func TestStore_RejectedNeverBlocks(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &memBackend{})

	id, err := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-11:00"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusRejected, "double booked"))

	assert.True(t, s.CheckAvailability("CR-1", "2024-05-01", slot("09:00-11:00")))
	assert.Empty(t, s.GetConflictingBookings("CR-1", "2024-05-01", slot("09:00-11:00"), 0))

	approved, err := s.SaveRequest(ctx, request("Drama", "CR-1", "2024-05-01", "09:00-11:00"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, approved, model.StatusApproved, ""))
	assert.False(t, s.CheckAvailability("CR-1", "2024-05-01", slot("10:00-10:30")))
}

func TestStore_NextIDFollowsMaxExisting(t *testing.T) {
	backend := &memBackend{snapshot: Snapshot{Bookings: []model.Booking{
		{ID: 3, Request: request("A", "CR-1", "2024-05-01", "09:00-10:00"), Status: model.StatusApproved, SubmittedAt: fixedNow},
		{ID: 7, Request: request("B", "CR-1", "2024-05-01", "10:00-11:00"), Status: model.StatusPending, SubmittedAt: fixedNow},
	}}}
	s := openStore(t, backend)

	id, err := s.SaveRequest(context.Background(), request("C", "CR-2", "2024-05-01", "09:00-10:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)

	id, err = s.SaveRequest(context.Background(), request("D", "CR-2", "2024-05-01", "10:00-11:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestOpen_RejectsDuplicateIDs(t *testing.T) {
	backend := &memBackend{snapshot: Snapshot{Bookings: []model.Booking{{ID: 1}, {ID: 1}}}}
	_, err := Open(context.Background(), backend)
	assert.Error(t, err)
}

func TestStore_ReadsAreIdempotentAndDetached(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &memBackend{})
	id, _ := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-11:00"))
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusApproved, "fine"))

	first := s.GetAllBookings()
	second := s.GetAllBookings()
	assert.Equal(t, first, second)

	*first[0].AdminComment = "tampered"
	first[0].Status = model.StatusRejected
	again, _ := s.GetBookingByID(id)
	assert.Equal(t, "fine", again.Comment())
	assert.Equal(t, model.StatusApproved, again.Status)
}

func TestStore_GetClubBookings(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &memBackend{})
	_, _ = s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-10:00"))
	_, _ = s.SaveRequest(ctx, request("chess", "CR-1", "2024-05-01", "10:00-11:00"))
	_, _ = s.SaveRequest(ctx, request("Chess", "CR-2", "2024-05-02", "09:00-10:00"))

	got := s.GetClubBookings("Chess")
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Empty(t, s.GetClubBookings("Go"))
}

func TestStore_UpdateStatusErrors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &memBackend{})
	id, _ := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-10:00"))

	err := s.UpdateStatus(ctx, 99, model.StatusApproved, "")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateStatus(ctx, id, model.StatusPending, "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	err = s.UpdateStatus(ctx, id, model.Status("Cancelled"), "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusApproved, ""))
	b, _ := s.GetBookingByID(id)
	assert.Nil(t, b.AdminComment, "empty comment is stored as absent")

	err = s.UpdateStatus(ctx, id, model.StatusRejected, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	b, _ = s.GetBookingByID(id)
	assert.Equal(t, model.StatusApproved, b.Status)
	assert.Len(t, s.GetLogs(), 2)
}

func TestStore_ReprocessingOverwritesDecision(t *testing.T) {
	ctx := context.Background()
	clock := fixedNow
	s := openStore(t, &memBackend{}, WithReprocessing(true), WithClock(func() time.Time { return clock }))
	id, _ := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-10:00"))

	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusApproved, "ok"))
	clock = clock.Add(time.Hour)
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusRejected, "venue closed"))

	b, _ := s.GetBookingByID(id)
	assert.Equal(t, model.StatusRejected, b.Status)
	assert.Equal(t, fixedNow.Add(time.Hour), *b.ProcessedAt)
	assert.Equal(t, "venue closed", b.Comment())
	assert.Len(t, s.GetLogs(), 3)
}

func TestStore_TimestampsMatchStoredPrecision(t *testing.T) {
	ctx := context.Background()
	now := fixedNow.Add(987654321 * time.Nanosecond)
	s := openStore(t, &memBackend{}, WithClock(func() time.Time { return now }))

	id, err := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-10:00"))
	require.NoError(t, err)
	now = now.Add(time.Minute)
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusApproved, ""))

	b, _ := s.GetBookingByID(id)
	require.NotNil(t, b.ProcessedAt)
	for _, at := range []time.Time{b.SubmittedAt, *b.ProcessedAt, s.GetLogs()[0].Time, s.GetLogs()[1].Time} {
		assert.Zero(t, at.Nanosecond())
		reread, err := model.ParseTimestamp(model.FormatTimestamp(at))
		require.NoError(t, err)
		assert.True(t, reread.Equal(at), "%s survives a write and read", at)
	}
	assert.True(t, fixedNow.Equal(b.SubmittedAt))
}

func TestStore_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := openStore(t, backend)
	id, err := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-10:00"))
	require.NoError(t, err)

	backend.failWith = errors.New("disk full")

	_, err = s.SaveRequest(ctx, request("Drama", "CR-1", "2024-05-01", "10:00-11:00"))
	assert.ErrorIs(t, err, ErrPersist)
	assert.Len(t, s.GetAllBookings(), 1)
	assert.True(t, s.CheckAvailability("CR-1", "2024-05-01", slot("10:00-11:00")))

	err = s.UpdateStatus(ctx, id, model.StatusApproved, "ok")
	assert.ErrorIs(t, err, ErrPersist)
	b, _ := s.GetBookingByID(id)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Nil(t, b.ProcessedAt)
	assert.Len(t, s.GetLogs(), 1)

	backend.failWith = nil
	next, err := s.SaveRequest(ctx, request("Drama", "CR-1", "2024-05-01", "10:00-11:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestStore_DeferredFlush(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	s := openStore(t, backend, WithDeferredFlush())

	id, err := s.SaveRequest(ctx, request("Chess", "CR-1", "2024-05-01", "09:00-10:00"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, id, model.StatusApproved, "ok"))
	assert.Empty(t, backend.commits)

	backend.failWith = errors.New("read-only")
	assert.ErrorIs(t, s.Flush(ctx), ErrPersist)

	backend.failWith = nil
	require.NoError(t, s.Flush(ctx))
	require.Len(t, backend.commits, 1)
	commit := backend.commits[0]
	require.Len(t, commit.Bookings, 1, "updates to one record collapse into one upsert")
	assert.Equal(t, model.StatusApproved, commit.Bookings[0].Status)
	assert.Len(t, commit.Logs, 2)

	require.NoError(t, s.Close())
	assert.True(t, backend.closed)
	assert.Len(t, backend.commits, 1)
}

func TestStore_UnreadableStoredSlotBlocks(t *testing.T) {
	backend := &memBackend{snapshot: Snapshot{Bookings: []model.Booking{
		{ID: 1, Request: request("A", "CR-1", "2024-05-01", "morning"), Status: model.StatusPending, SubmittedAt: fixedNow},
	}}}
	s := openStore(t, backend)

	assert.False(t, s.CheckAvailability("CR-1", "2024-05-01", slot("09:00-10:00")))
	assert.Len(t, s.GetConflictingBookings("CR-1", "2024-05-01", slot("09:00-10:00"), 0), 1)
	assert.Empty(t, s.GetConflictingBookings("CR-1", "2024-05-01", slot("09:00-10:00"), 1))
}
