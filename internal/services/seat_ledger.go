package services

import (
	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
)

// reserveSeats applies a booking's one reservation effect. ride must be
// locked in tx. The caller persists b.
func reserveSeats(tx store.Tx, ride *models.Ride, b *models.Booking) error {
	if b.HoldsSeats() {
		return apperrors.Transition(string(b.Status), "reserve")
	}
	if b.NumberOfSeats > ride.AvailableSeats {
		return apperrors.ErrInsufficientSeats.
			WithDetail("availableSeats", ride.AvailableSeats).
			WithDetail("requestedSeats", b.NumberOfSeats)
	}

	ride.AvailableSeats -= b.NumberOfSeats
	if err := tx.SaveRide(ride); err != nil {
		return err
	}
	b.SeatsReserved = true
	return tx.AppendLedgerEntry(&models.SeatLedgerEntry{
		RideID:    ride.ID,
		BookingID: b.ID,
		Kind:      models.SeatLedgerReserve,
		Seats:     b.NumberOfSeats,
	})
}

// releaseSeats undoes a reservation. It is a no-op for bookings that hold
// no seats, so repeated calls release at most once.
func releaseSeats(tx store.Tx, ride *models.Ride, b *models.Booking) (bool, error) {
	if !b.HoldsSeats() {
		return false, nil
	}

	ride.AvailableSeats += b.NumberOfSeats
	if ride.AvailableSeats > ride.Capacity {
		ride.AvailableSeats = ride.Capacity
	}
	if err := tx.SaveRide(ride); err != nil {
		return false, err
	}
	b.SeatsReserved = false
	err := tx.AppendLedgerEntry(&models.SeatLedgerEntry{
		RideID:    ride.ID,
		BookingID: b.ID,
		Kind:      models.SeatLedgerRelease,
		Seats:     b.NumberOfSeats,
	})
	return err == nil, err
}

// SeatLedgerSummary is the audit view of a ride's reservations.
type SeatLedgerSummary struct {
	RideID         uint                     `json:"rideId"`
	Capacity       int                      `json:"capacity"`
	AvailableSeats int                      `json:"availableSeats"`
	ReserveCount   int                      `json:"reserveCount"`
	ReleaseCount   int                      `json:"releaseCount"`
	SeatsReserved  int                      `json:"seatsReserved"`
	SeatsReleased  int                      `json:"seatsReleased"`
	SeatsHeld      int                      `json:"seatsHeld"`
	HeldByBookings int                      `json:"heldByBookings"`
	Consistent     bool                     `json:"consistent"`
	Entries        []models.SeatLedgerEntry `json:"entries"`
}

// SummarizeLedger totals the ledger and cross-checks it against the bookings
// that currently hold seats. For an active ride the held seats must also
// account for every seat missing from availableSeats.
func SummarizeLedger(ride *models.Ride, entries []models.SeatLedgerEntry, bookings []models.Booking) *SeatLedgerSummary {
	s := &SeatLedgerSummary{
		RideID:         ride.ID,
		Capacity:       ride.Capacity,
		AvailableSeats: ride.AvailableSeats,
		Entries:        entries,
	}
	for _, e := range entries {
		switch e.Kind {
		case models.SeatLedgerReserve:
			s.ReserveCount++
			s.SeatsReserved += e.Seats
		case models.SeatLedgerRelease:
			s.ReleaseCount++
			s.SeatsReleased += e.Seats
		}
	}
	s.SeatsHeld = s.SeatsReserved - s.SeatsReleased

	for _, b := range bookings {
		if b.Status == models.BookingStatusAccepted || b.Status == models.BookingStatusConfirmed {
			s.HeldByBookings += b.NumberOfSeats
		}
	}

	s.Consistent = s.SeatsHeld == s.HeldByBookings &&
		ride.AvailableSeats >= 0 && ride.AvailableSeats <= ride.Capacity
	if ride.IsActive() {
		s.Consistent = s.Consistent && ride.Capacity-ride.AvailableSeats == s.SeatsHeld
	}
	return s
}
