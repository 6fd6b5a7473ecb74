// Package lifecycle drives a booking request from submission to an
// administrator's decision.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"venuebook/internal/config"
	"venuebook/internal/events"
	"venuebook/internal/model"
	"venuebook/internal/slots"
	"venuebook/internal/store"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownVenue = errors.New("unknown venue")
	ErrSlotTaken    = errors.New("venue already booked for this slot")
)

// Repository is the part of the booking store the lifecycle needs.
type Repository interface {
	SaveRequest(ctx context.Context, req model.Request) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status, comment string) error
	GetBookingByID(id int64) (model.Booking, bool)
	CheckAvailability(venue, date string, slot model.TimeSlot) bool
	GetConflictingBookings(venue, date string, slot model.TimeSlot, excludeID int64) []model.Booking
}

var _ Repository = (*store.Store)(nil)

// EventPublisher publishes lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// BookingEvent is the payload of every lifecycle event.
type BookingEvent struct {
	ID           int64        `json:"id"`
	Club         string       `json:"club"`
	EventName    string       `json:"event_name"`
	Venue        string       `json:"venue"`
	Date         string       `json:"date"`
	TimeSlot     string       `json:"time_slot"`
	Status       model.Status `json:"status"`
	AdminComment string       `json:"admin_comment,omitempty"`
}

func newBookingEvent(b *model.Booking) BookingEvent {
	return BookingEvent{
		ID:           b.ID,
		Club:         b.Club,
		EventName:    b.EventName,
		Venue:        b.Venue,
		Date:         b.Date,
		TimeSlot:     b.TimeSlot,
		Status:       b.Status,
		AdminComment: b.Comment(),
	}
}

// Review is a booking shown to an administrator with the active bookings it overlaps.
type Review struct {
	Booking   model.Booking
	Conflicts []model.Booking
}

// Service implements the request lifecycle.
type Service struct {
	repo   Repository
	bus    EventPublisher
	logger *zerolog.Logger

	mu      sync.RWMutex
	catalog *config.VenuesConfig
}

// NewService builds the lifecycle over repo. bus may be nil.
func NewService(repo Repository, catalog *config.VenuesConfig, bus EventPublisher, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "lifecycle").Logger()
	return &Service{repo: repo, catalog: catalog, bus: bus, logger: &l}
}

// SetCatalog replaces the venue catalog, e.g. after venues.yaml changed.
func (s *Service) SetCatalog(catalog *config.VenuesConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
	s.logger.Info().Str("catalog", catalog.String()).Msg("Venue catalog updated")
}

// Catalog returns the current venue catalog.
func (s *Service) Catalog() *config.VenuesConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Submit validates req and stores it as a pending booking.
func (s *Service) Submit(ctx context.Context, req model.Request) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	venue := s.Catalog().GetVenue(req.Venue)
	if venue == nil || venue.Disabled {
		return 0, fmt.Errorf("%w: %q", ErrUnknownVenue, req.Venue)
	}

	slot, _ := model.ParseTimeSlot(req.TimeSlot)
	if !s.repo.CheckAvailability(req.Venue, req.Date, slot) {
		return 0, fmt.Errorf("%w: %s on %s at %s", ErrSlotTaken, req.Venue, req.Date, req.TimeSlot)
	}

	id, err := s.repo.SaveRequest(ctx, req)
	if err != nil {
		return 0, err
	}

	if b, ok := s.repo.GetBookingByID(id); ok {
		s.publish(events.TypeBookingSubmitted, &b)
	}
	return id, nil
}

// SuggestVenues lists the venues free for slot on date, grouped by category.
func (s *Service) SuggestVenues(date string, slot model.TimeSlot) []slots.Suggestion {
	return slots.Suggest(s.Catalog(), s.repo, date, slot)
}

// Review returns booking id and every other active booking overlapping it.
// Conflicts are a warning for the administrator, not a block.
func (s *Service) Review(id int64) (Review, error) {
	b, ok := s.repo.GetBookingByID(id)
	if !ok {
		return Review{}, fmt.Errorf("review booking %d: %w", id, store.ErrNotFound)
	}

	r := Review{Booking: b}
	slot, err := b.Slot()
	if err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", id).Msg("Booking has an unreadable time slot")
		return r, nil
	}

	r.Conflicts = s.repo.GetConflictingBookings(b.Venue, b.Date, slot, b.ID)
	return r, nil
}

// Approve marks booking id approved.
func (s *Service) Approve(ctx context.Context, id int64, comment string) error {
	return s.decide(ctx, id, model.StatusApproved, comment)
}

// Reject marks booking id rejected.
func (s *Service) Reject(ctx context.Context, id int64, comment string) error {
	return s.decide(ctx, id, model.StatusRejected, comment)
}

func (s *Service) decide(ctx context.Context, id int64, status model.Status, comment string) error {
	if err := s.repo.UpdateStatus(ctx, id, status, comment); err != nil {
		return err
	}

	b, ok := s.repo.GetBookingByID(id)
	if !ok {
		return nil
	}
	eventType := events.TypeBookingApproved
	if status == model.StatusRejected {
		eventType = events.TypeBookingRejected
	}
	s.publish(eventType, &b)
	return nil
}

func (s *Service) publish(eventType string, b *model.Booking) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, newBookingEvent(b)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("Failed to publish event")
	}
}

// FreeSlots lists the fixed-length slots of venue on date with their availability.
func (s *Service) FreeSlots(venue, date string) ([]slots.Slot, error) {
	v := s.Catalog().GetVenue(venue)
	if v == nil || v.Disabled {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVenue, venue)
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, &model.ValidationError{Problems: []string{fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date)}}
	}

	schedule, err := slots.ScheduleFromHours(v.Hours)
	if err != nil {
		return nil, fmt.Errorf("venue %s hours: %w", venue, err)
	}
	return slots.NewGenerator(s.repo).GenerateSlots(venue, date, schedule), nil
}
