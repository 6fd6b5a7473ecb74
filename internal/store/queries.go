package store

import (
	"venuebook/internal/model"
)

// GetPendingRequests returns Pending bookings in insertion order.
func (s *Store) GetPendingRequests() []model.Booking {
	return s.filter(func(b *model.Booking) bool { return b.Status == model.StatusPending })
}

// GetAllBookings returns every booking in insertion order.
func (s *Store) GetAllBookings() []model.Booking {
	return s.filter(func(*model.Booking) bool { return true })
}

// GetClubBookings returns the bookings whose club matches exactly.
func (s *Store) GetClubBookings(club string) []model.Booking {
	return s.filter(func(b *model.Booking) bool { return b.Club == club })
}

// GetBookingByID returns the booking with the given id.
func (s *Store) GetBookingByID(id int64) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, false
	}
	return b.Clone(), true
}

// GetLogs returns the booking log in append order.
func (s *Store) GetLogs() []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LogEntry(nil), s.logs...)
}

// CheckAvailability reports whether no Pending or Approved booking for the
// venue and date overlaps slot.
func (s *Store) CheckAvailability(venue, date string, slot model.TimeSlot) bool {
	available := true
	s.scan(venue, date, slot, 0, func(*model.Booking) bool {
		available = false
		return false
	})
	return available
}

// GetConflictingBookings returns the Pending and Approved bookings for the venue
// and date that overlap slot. A non-zero excludeID leaves that booking out.
func (s *Store) GetConflictingBookings(venue, date string, slot model.TimeSlot, excludeID int64) []model.Booking {
	var conflicts []model.Booking
	s.scan(venue, date, slot, excludeID, func(b *model.Booking) bool {
		conflicts = append(conflicts, b.Clone())
		return true
	})
	return conflicts
}

// scan calls fn for every active booking on venue/date overlapping slot,
// in insertion order, until fn returns false.
func (s *Store) scan(venue, date string, slot model.TimeSlot, excludeID int64, fn func(*model.Booking) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		b := s.bookings[id]
		if b.Venue != venue || b.Date != date || !b.Status.IsActive() {
			continue
		}
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		booked, err := b.Slot()
		if err != nil {
			// A slot that cannot be read cannot be shown to be free.
			s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("Unreadable time slot treated as conflict")
		} else if !booked.Overlaps(slot) {
			continue
		}
		if !fn(b) {
			return
		}
	}
}

func (s *Store) filter(keep func(*model.Booking) bool) []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]model.Booking, 0, len(s.order))
	for _, id := range s.order {
		if b := s.bookings[id]; keep(b) {
			result = append(result, b.Clone())
		}
	}
	return result
}
