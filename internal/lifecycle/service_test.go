package lifecycle

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"venuebook/internal/config"
	"venuebook/internal/events"
	"venuebook/internal/model"
	"venuebook/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	failWith error
}

func (m *memBackend) Load(context.Context) (store.Snapshot, error) { return store.Snapshot{}, nil }
func (m *memBackend) Commit(context.Context, store.Changeset) error { return m.failWith }
func (m *memBackend) Close() error                                 { return nil }

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p any) error { return m.Called(et, p).Error(0) }

func newTestService(t *testing.T, backend *memBackend, bus EventPublisher) (*Service, *store.Store) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	clock := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local) }
	s, err := store.Open(context.Background(), backend, store.WithLogger(&logger), store.WithClock(clock))
	require.NoError(t, err)
	return NewService(s, config.DefaultVenues(), bus, &logger), s
}

func request(venue, slot string) model.Request {
	return model.Request{
		Club:               "Robotics",
		EventName:          "Demo Day",
		ContactEmail:       "robotics@example.edu",
		Day:                "Saturday",
		Date:               "2026-03-14",
		TimeSlot:           slot,
		Venue:              venue,
		ExpectedAttendance: 80,
		Purpose:            "Showcase",
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	bus := new(mockEventBus)
	svc, s := newTestService(t, &memBackend{}, bus)

	bus.On("PublishJSON", events.TypeBookingSubmitted, mock.MatchedBy(func(e BookingEvent) bool {
		return e.ID == 1 && e.Venue == "LT-1" && e.Status == model.StatusPending
	})).Return(nil).Once()

	id, err := svc.Submit(ctx, request("LT-1", "14:00-16:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Len(t, s.GetPendingRequests(), 1)
	bus.AssertExpectations(t)

	t.Run("ValidationError", func(t *testing.T) {
		req := request("LT-1", "16:00-14:00")
		req.ExpectedAttendance = 0
		_, err := svc.Submit(ctx, req)
		var verr *model.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Problems, 2)
	})

	t.Run("UnknownVenue", func(t *testing.T) {
		_, err := svc.Submit(ctx, request("Rooftop", "14:00-16:00"))
		assert.ErrorIs(t, err, ErrUnknownVenue)
	})

	t.Run("SlotTaken", func(t *testing.T) {
		_, err := svc.Submit(ctx, request("LT-1", "15:00-17:00"))
		assert.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("AdjacentSlotAccepted", func(t *testing.T) {
		bus.On("PublishJSON", events.TypeBookingSubmitted, mock.Anything).Return(nil).Once()
		id, err := svc.Submit(ctx, request("LT-1", "16:00-18:00"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), id)
	})

	assert.Len(t, s.GetAllBookings(), 2)
}

func TestSubmitPersistFailure(t *testing.T) {
	bus := new(mockEventBus)
	svc, s := newTestService(t, &memBackend{failWith: errors.New("disk full")}, bus)

	_, err := svc.Submit(context.Background(), request("CR-1", "09:00-10:00"))
	assert.ErrorIs(t, err, store.ErrPersist)
	assert.Empty(t, s.GetAllBookings())
	bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestPublishErrorDoesNotFailSubmit(t *testing.T) {
	bus := new(mockEventBus)
	svc, _ := newTestService(t, &memBackend{}, bus)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(errors.New("bus down")).Once()

	_, err := svc.Submit(context.Background(), request("CR-1", "09:00-10:00"))
	assert.NoError(t, err)
}

func TestApproveReject(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t, &memBackend{}, nil)

	first, err := svc.Submit(ctx, request("LT-2", "10:00-12:00"))
	require.NoError(t, err)
	second, err := svc.Submit(ctx, request("CR-2", "10:00-12:00"))
	require.NoError(t, err)

	require.NoError(t, svc.Approve(ctx, first, "enjoy"))
	require.NoError(t, svc.Reject(ctx, second, ""))

	b, ok := s.GetBookingByID(first)
	require.True(t, ok)
	assert.Equal(t, model.StatusApproved, b.Status)
	assert.Equal(t, "enjoy", b.Comment())

	b, ok = s.GetBookingByID(second)
	require.True(t, ok)
	assert.Equal(t, model.StatusRejected, b.Status)
	assert.Nil(t, b.AdminComment)

	assert.ErrorIs(t, svc.Approve(ctx, second, ""), store.ErrAlreadyProcessed)
	assert.ErrorIs(t, svc.Approve(ctx, 99, ""), store.ErrNotFound)
	assert.Empty(t, s.GetPendingRequests())
}

func TestDecisionEvents(t *testing.T) {
	ctx := context.Background()
	bus := new(mockEventBus)
	svc, _ := newTestService(t, &memBackend{}, bus)

	bus.On("PublishJSON", events.TypeBookingSubmitted, mock.Anything).Return(nil).Twice()
	bus.On("PublishJSON", events.TypeBookingApproved, mock.MatchedBy(func(e BookingEvent) bool {
		return e.ID == 1 && e.AdminComment == "ok"
	})).Return(nil).Once()
	bus.On("PublishJSON", events.TypeBookingRejected, mock.MatchedBy(func(e BookingEvent) bool {
		return e.ID == 2 && e.Status == model.StatusRejected
	})).Return(nil).Once()

	_, err := svc.Submit(ctx, request("LT-1", "08:00-09:00"))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, request("LT-2", "08:00-09:00"))
	require.NoError(t, err)
	require.NoError(t, svc.Approve(ctx, 1, "ok"))
	require.NoError(t, svc.Reject(ctx, 2, "clash"))

	bus.AssertExpectations(t)
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t, &memBackend{}, nil)

	// Bypass Submit to create overlapping pending requests.
	a, err := s.SaveRequest(ctx, request("Auditorium", "10:00-12:00"))
	require.NoError(t, err)
	b, err := s.SaveRequest(ctx, request("Auditorium", "11:00-13:00"))
	require.NoError(t, err)
	c, err := s.SaveRequest(ctx, request("Auditorium", "12:00-14:00"))
	require.NoError(t, err)

	r, err := svc.Review(b)
	require.NoError(t, err)
	assert.Equal(t, b, r.Booking.ID)
	require.Len(t, r.Conflicts, 2)
	assert.Equal(t, a, r.Conflicts[0].ID)
	assert.Equal(t, c, r.Conflicts[1].ID)

	require.NoError(t, svc.Reject(ctx, a, ""))
	r, err = svc.Review(b)
	require.NoError(t, err)
	require.Len(t, r.Conflicts, 1)
	assert.Equal(t, c, r.Conflicts[0].ID)

	_, err = svc.Review(42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSuggestVenues(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &memBackend{}, nil)

	_, err := svc.Submit(ctx, request("CR-1", "14:00-16:00"))
	require.NoError(t, err)

	got := svc.SuggestVenues("2026-03-14", model.MustParseTimeSlot("15:00-16:00"))
	require.Len(t, got, 4)
	assert.Equal(t, "Conference Room", got[2].Category)
	assert.Equal(t, []string{"CR-2"}, got[2].Venues)

	other := svc.SuggestVenues("2026-03-15", model.MustParseTimeSlot("15:00-16:00"))
	assert.Equal(t, []string{"CR-1", "CR-2"}, other[2].Venues)
}

func TestFreeSlots(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &memBackend{}, nil)

	_, err := svc.Submit(ctx, request("Sports Hall", "10:30-11:30"))
	require.NoError(t, err)

	got, err := svc.FreeSlots("Sports Hall", "2026-03-14")
	require.NoError(t, err)
	require.Len(t, got, 14)
	assert.Equal(t, "08:00-09:00", got[0].String())
	assert.True(t, got[1].Available)
	assert.False(t, got[2].Available)
	assert.False(t, got[3].Available)
	assert.True(t, got[4].Available)

	_, err = svc.FreeSlots("Rooftop", "2026-03-14")
	assert.ErrorIs(t, err, ErrUnknownVenue)

	_, err = svc.FreeSlots("Sports Hall", "14/03/2026")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSetCatalog(t *testing.T) {
	svc, _ := newTestService(t, &memBackend{}, nil)

	catalog := &config.VenuesConfig{Venues: []config.VenueConfig{{Name: "Rooftop", Category: "Outdoor"}}}
	svc.SetCatalog(catalog)

	_, err := svc.Submit(context.Background(), request("Rooftop", "18:00-20:00"))
	assert.NoError(t, err)
	_, err = svc.Submit(context.Background(), request("LT-1", "18:00-20:00"))
	assert.ErrorIs(t, err, ErrUnknownVenue)
}
