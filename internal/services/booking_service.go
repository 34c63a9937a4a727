package services

import (
	"context"
	"fmt"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// FareFunc prices a booking. It is called once, when the booking is created.
type FareFunc func(ride *models.Ride, seats int, pickup, drop string) float64

// PerSeatFare charges the ride's per-seat price for every seat.
func PerSeatFare(ride *models.Ride, seats int, _, _ string) float64 {
	return utils.CalculateBookingFare(ride.PricePerSeat, seats)
}

// BookingService runs the booking state machine.
type BookingService struct {
	store    store.Store
	fare     FareFunc
	refunds  RefundQueue
	notifier Notifier
	currency string
	clock    Clock
	log      *logrus.Logger
}

func NewBookingService(s store.Store, fare FareFunc, refunds RefundQueue, notifier Notifier, currency string, clock Clock, log *logrus.Logger) *BookingService {
	if fare == nil {
		fare = PerSeatFare
	}
	return &BookingService{
		store:    s,
		fare:     fare,
		refunds:  refunds,
		notifier: notifier,
		currency: currency,
		clock:    clock,
		log:      log,
	}
}

type CreateBookingInput struct {
	RideID uint
	Seats  int
	Pickup string
	Drop   string
}

func (s *BookingService) Create(ctx context.Context, riderID uint, in CreateBookingInput) (*BookingView, error) {
	switch {
	case in.RideID == 0:
		return nil, apperrors.Validation("rideId", "ride id is required")
	case in.Seats < 1:
		return nil, apperrors.Validation("numberOfSeats", "at least one seat is required")
	case in.Pickup == "":
		return nil, apperrors.Validation("pickup", "pickup location is required")
	case in.Drop == "":
		return nil, apperrors.Validation("drop", "drop location is required")
	}
	today := s.clock.Today()

	var (
		ride    *models.Ride
		booking *models.Booking
	)
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ride, err = tx.LockRide(in.RideID)
		if err != nil {
			return err
		}
		if !ride.IsActive() || departed(ride, today) {
			return apperrors.ErrRideNotActive
		}
		if ride.DriverID == riderID {
			return apperrors.Forbidden("drivers cannot book their own ride")
		}
		if in.Seats > ride.AvailableSeats {
			return apperrors.ErrInsufficientSeats.
				WithDetail("availableSeats", ride.AvailableSeats).
				WithDetail("requestedSeats", in.Seats)
		}
		pickup, ok := ride.MatchPickupPoint(in.Pickup)
		if !ok {
			return apperrors.ErrInvalidLocation.WithDetail("field", "pickup").WithDetail("allowed", ride.PickupPoints)
		}
		drop, ok := ride.MatchDropPoint(in.Drop)
		if !ok {
			return apperrors.ErrInvalidLocation.WithDetail("field", "drop").WithDetail("allowed", ride.DropPoints)
		}

		booking = &models.Booking{
			RideID:        ride.ID,
			RiderID:       riderID,
			NumberOfSeats: in.Seats,
			Pickup:        pickup,
			Drop:          drop,
			FareAmount:    utils.RoundMoney(s.fare(ride, in.Seats, pickup, drop)),
			Status:        models.BookingStatusPending,
		}
		return tx.CreateBooking(booking)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"ride_id":    ride.ID,
		"rider_id":   riderID,
		"seats":      booking.NumberOfSeats,
		"fare":       booking.FareAmount,
	}).Info("booking requested")

	dispatch(ctx, s.notifier, []Event{{
		Type:      EventBookingRequested,
		UserID:    ride.DriverID,
		RideID:    ride.ID,
		BookingID: booking.ID,
		Title:     "New booking request",
		Body:      fmt.Sprintf("%d seat(s) requested from %s to %s.", booking.NumberOfSeats, booking.Pickup, booking.Drop),
		Data:      map[string]interface{}{"seats": booking.NumberOfSeats},
	}})

	view := NewBookingView(booking, ride, today)
	return &view, nil
}

// mutate runs fn with the booking's ride and the booking locked in that
// order. The booking is saved when fn returns nil.
func (s *BookingService) mutate(ctx context.Context, bookingID uint, fn func(tx store.Tx, ride *models.Ride, b *models.Booking) error) (*models.Ride, *models.Booking, error) {
	snapshot, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	var (
		ride    *models.Ride
		booking *models.Booking
	)
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ride, err = tx.LockRide(snapshot.RideID)
		if err != nil {
			return err
		}
		booking, err = tx.LockBooking(bookingID)
		if err != nil {
			return err
		}
		if err := fn(tx, ride, booking); err != nil {
			return err
		}
		return tx.SaveBooking(booking)
	})
	if err != nil {
		return nil, nil, err
	}
	return ride, booking, nil
}

// Accept commits capacity for a PENDING booking. Seats are re-checked under
// the ride lock, so concurrent accepts never overdraw the ride.
func (s *BookingService) Accept(ctx context.Context, driverID, bookingID uint) (*BookingView, error) {
	ride, b, err := s.mutate(ctx, bookingID, func(tx store.Tx, ride *models.Ride, b *models.Booking) error {
		if ride.DriverID != driverID {
			return apperrors.Forbidden("only the ride's driver can accept bookings")
		}
		if b.Status != models.BookingStatusPending {
			return apperrors.Transition(string(b.Status), "accept")
		}
		if !ride.IsActive() {
			return apperrors.ErrRideNotActive
		}
		if err := reserveSeats(tx, ride, b); err != nil {
			return err
		}
		b.Status = models.BookingStatusAccepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id":      b.ID,
		"ride_id":         ride.ID,
		"available_seats": ride.AvailableSeats,
	}).Info("booking accepted")
	dispatch(ctx, s.notifier, []Event{{
		Type:      EventBookingAccepted,
		UserID:    b.RiderID,
		RideID:    ride.ID,
		BookingID: b.ID,
		Title:     "Booking accepted",
		Body:      fmt.Sprintf("Your booking from %s to %s was accepted. Complete the payment to confirm.", b.Pickup, b.Drop),
	}})

	view := NewBookingView(b, ride, s.clock.Today())
	return &view, nil
}

func (s *BookingService) Decline(ctx context.Context, driverID, bookingID uint) (*BookingView, error) {
	ride, b, err := s.mutate(ctx, bookingID, func(tx store.Tx, ride *models.Ride, b *models.Booking) error {
		if ride.DriverID != driverID {
			return apperrors.Forbidden("only the ride's driver can decline bookings")
		}
		if b.Status != models.BookingStatusPending {
			return apperrors.Transition(string(b.Status), "decline")
		}
		b.Status = models.BookingStatusDeclined
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"booking_id": b.ID, "ride_id": ride.ID}).Info("booking declined")
	dispatch(ctx, s.notifier, []Event{{
		Type:      EventBookingDeclined,
		UserID:    b.RiderID,
		RideID:    ride.ID,
		BookingID: b.ID,
		Title:     "Booking declined",
		Body:      "The driver declined your booking request.",
	}})

	view := NewBookingView(b, ride, s.clock.Today())
	return &view, nil
}

// Cancel cancels a booking on behalf of its rider or the ride's driver.
// Reserved seats are released and paid bookings get a refund intent in the
// same transaction; the refund itself is sent after commit.
func (s *BookingService) Cancel(ctx context.Context, actorID, bookingID uint) (*BookingView, error) {
	today := s.clock.Today()

	var refund *models.RefundIntent
	ride, b, err := s.mutate(ctx, bookingID, func(tx store.Tx, ride *models.Ride, b *models.Booking) error {
		if actorID != b.RiderID && actorID != ride.DriverID {
			return apperrors.Forbidden("only the rider or the ride's driver can cancel this booking")
		}
		eff := EffectiveStatus(b, ride, today)
		if eff.IsTerminal() {
			return apperrors.Transition(string(eff), "cancel")
		}

		if _, err := releaseSeats(tx, ride, b); err != nil {
			return err
		}
		if b.Status == models.BookingStatusConfirmed {
			var err error
			if refund, err = recordRefund(tx, b, s.currency); err != nil {
				return err
			}
		}
		b.Status = models.BookingStatusCancelled
		by := actorID
		b.CancelledBy = &by
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"ride_id":    ride.ID,
		"actor":      actorID,
		"refund":     refund != nil,
	}).Info("booking cancelled")

	if refund != nil && s.refunds != nil {
		s.refunds.Dispatch(*refund)
	}

	recipient, who := ride.DriverID, "The rider"
	if actorID == ride.DriverID {
		recipient, who = b.RiderID, "The driver"
	}
	dispatch(ctx, s.notifier, []Event{{
		Type:      EventBookingCancelled,
		UserID:    recipient,
		RideID:    ride.ID,
		BookingID: b.ID,
		Title:     "Booking cancelled",
		Body:      who + " cancelled the booking.",
		Data:      map[string]interface{}{"refund": refund != nil},
	}})

	view := NewBookingView(b, ride, today)
	return &view, nil
}

// UpdateLocations changes pickup and drop of an open booking. The fare
// stays what it was when the booking was created.
func (s *BookingService) UpdateLocations(ctx context.Context, riderID, bookingID uint, pickup, drop string) (*BookingView, error) {
	if pickup == "" && drop == "" {
		return nil, apperrors.Validation("pickup", "pickup or drop is required")
	}
	today := s.clock.Today()

	ride, b, err := s.mutate(ctx, bookingID, func(tx store.Tx, ride *models.Ride, b *models.Booking) error {
		if b.RiderID != riderID {
			return apperrors.Forbidden("only the rider can change booking locations")
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusAccepted {
			return apperrors.Transition(string(b.Status), "update_locations")
		}
		if pickup != "" {
			p, ok := ride.MatchPickupPoint(pickup)
			if !ok {
				return apperrors.ErrInvalidLocation.WithDetail("field", "pickup").WithDetail("allowed", ride.PickupPoints)
			}
			b.Pickup = p
		}
		if drop != "" {
			d, ok := ride.MatchDropPoint(drop)
			if !ok {
				return apperrors.ErrInvalidLocation.WithDetail("field", "drop").WithDetail("allowed", ride.DropPoints)
			}
			b.Drop = d
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := NewBookingView(b, ride, today)
	return &view, nil
}

// Get returns a booking to its rider or the ride's driver.
func (s *BookingService) Get(ctx context.Context, actorID, bookingID uint) (*BookingView, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ride, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	if actorID != b.RiderID && actorID != ride.DriverID {
		return nil, apperrors.Forbidden("not a party to this booking")
	}
	view := NewBookingView(b, ride, s.clock.Today())
	return &view, nil
}

// ListRiderBookings pages through a rider's bookings, newest first.
func (s *BookingService) ListRiderBookings(ctx context.Context, riderID uint, pageToken string, limit int) (*Page[BookingView], error) {
	beforeID, err := decodePageToken(pageToken)
	if err != nil {
		return nil, err
	}
	limit = pageLimit(limit)

	bookings, err := s.store.ListRiderBookings(ctx, riderID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}
	next := ""
	if len(bookings) > limit {
		bookings = bookings[:limit]
		next = encodePageToken(bookings[limit-1].ID)
	}

	views, err := s.views(ctx, bookings)
	if err != nil {
		return nil, err
	}
	return &Page[BookingView]{Items: views, NextPageToken: next}, nil
}

// ListRideBookings returns every booking on one of the driver's rides.
func (s *BookingService) ListRideBookings(ctx context.Context, driverID, rideID uint) ([]BookingView, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, apperrors.Forbidden("only the ride's driver can list its bookings")
	}
	bookings, err := s.store.ListRideBookings(ctx, rideID)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	views := make([]BookingView, 0, len(bookings))
	for i := range bookings {
		views = append(views, NewBookingView(&bookings[i], ride, today))
	}
	return views, nil
}

func (s *BookingService) views(ctx context.Context, bookings []models.Booking) ([]BookingView, error) {
	ids := make([]uint, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.RideID)
	}
	rides, err := s.store.RidesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	views := make([]BookingView, 0, len(bookings))
	for i := range bookings {
		ride, ok := rides[bookings[i].RideID]
		if !ok {
			return nil, apperrors.Internal(fmt.Sprintf("ride %d of booking %d is missing", bookings[i].RideID, bookings[i].ID), nil)
		}
		views = append(views, NewBookingView(&bookings[i], ride, today))
	}
	return views, nil
}
