package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// RideService owns ride publishing, scheduling and cancellation.
type RideService struct {
	store       store.Store
	coordinator *Coordinator
	refunds     RefundQueue
	notifier    Notifier
	clock       Clock
	log         *logrus.Logger
}

func NewRideService(s store.Store, coordinator *Coordinator, refunds RefundQueue, notifier Notifier, clock Clock, log *logrus.Logger) *RideService {
	return &RideService{
		store:       s,
		coordinator: coordinator,
		refunds:     refunds,
		notifier:    notifier,
		clock:       clock,
		log:         log,
	}
}

type PublishRideInput struct {
	SourceCity      string
	DestinationCity string
	PickupPoints    []string
	DropPoints      []string
	Date            time.Time
	DepartureTime   string
	Capacity        int
	PricePerSeat    float64
}

type RescheduleInput struct {
	Date          time.Time
	DepartureTime string
	Reason        string
}

// RideCancellation is the post-cascade state returned by Cancel.
type RideCancellation struct {
	Ride          models.Ride   `json:"ride"`
	Bookings      []BookingView `json:"bookings"`
	SeatsReleased int           `json:"seatsReleased"`
	RefundsQueued int           `json:"refundsQueued"`
}

type RideSearch struct {
	SourceCity      string
	DestinationCity string
	Date            *time.Time
	PageToken       string
	Limit           int
}

func (s *RideService) Publish(ctx context.Context, driverID uint, in PublishRideInput) (*models.Ride, error) {
	today := s.clock.Today()

	source := strings.TrimSpace(in.SourceCity)
	destination := strings.TrimSpace(in.DestinationCity)
	switch {
	case source == "":
		return nil, apperrors.Validation("sourceCity", "source city is required")
	case destination == "":
		return nil, apperrors.Validation("destinationCity", "destination city is required")
	case strings.EqualFold(source, destination):
		return nil, apperrors.Validation("destinationCity", "destination must differ from source")
	case in.Capacity < 1:
		return nil, apperrors.Validation("capacity", "capacity must be at least 1")
	case in.PricePerSeat < 0:
		return nil, apperrors.Validation("pricePerSeat", "price per seat cannot be negative")
	case !utils.ValidDepartureTime(in.DepartureTime):
		return nil, apperrors.Validation("departureTime", "departure time must be HH:MM")
	}
	date := utils.NormalizeDate(in.Date)
	if date.Before(today) {
		return nil, apperrors.ErrInvalidSchedule.WithDetail("today", today.Format(utils.DateLayout))
	}
	pickups, err := routePoints("pickupPoints", in.PickupPoints)
	if err != nil {
		return nil, err
	}
	drops, err := routePoints("dropPoints", in.DropPoints)
	if err != nil {
		return nil, err
	}

	ride := &models.Ride{
		DriverID:        driverID,
		SourceCity:      source,
		DestinationCity: destination,
		PickupPoints:    pickups,
		DropPoints:      drops,
		Date:            date,
		DepartureTime:   in.DepartureTime,
		Capacity:        in.Capacity,
		AvailableSeats:  in.Capacity,
		PricePerSeat:    utils.RoundMoney(in.PricePerSeat),
		Status:          models.RideStatusActive,
	}

	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		vehicle, err := tx.GetVehicle(driverID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrVehicleRequired
		}
		if err != nil {
			return err
		}
		if vehicle.Seats > 0 && in.Capacity > vehicle.Seats {
			return apperrors.Validation("capacity", "capacity exceeds the vehicle's seats").
				WithDetail("vehicleSeats", vehicle.Seats)
		}
		return tx.CreateRide(ride)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"ride_id": ride.ID, "driver_id": driverID}).Info("ride published")
	return ride, nil
}

// routePoints trims and validates a list of named points.
func routePoints(field string, points []string) ([]string, error) {
	if len(points) == 0 {
		return nil, apperrors.Validation(field, "at least one point is required")
	}
	if len(points) > models.MaxRoutePoints {
		return nil, apperrors.Validation(field, "at most 4 points are allowed")
	}
	out := make([]string, 0, len(points))
	seen := map[string]bool{}
	for _, p := range points {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, apperrors.Validation(field, "points cannot be empty")
		}
		key := strings.ToLower(p)
		if seen[key] {
			return nil, apperrors.Validation(field, "points must be unique").WithDetail("point", p)
		}
		seen[key] = true
		out = append(out, p)
	}
	return out, nil
}

// Reschedule moves an active ride that has not departed yet. Seats and bookings are untouched; riders
// with open bookings are notified after commit.
func (s *RideService) Reschedule(ctx context.Context, driverID, rideID uint, in RescheduleInput) (*models.Ride, error) {
	if !utils.ValidDepartureTime(in.DepartureTime) {
		return nil, apperrors.Validation("departureTime", "departure time must be HH:MM")
	}
	today := s.clock.Today()
	date := utils.NormalizeDate(in.Date)
	if date.Before(today) {
		return nil, apperrors.ErrInvalidSchedule.WithDetail("today", today.Format(utils.DateLayout))
	}

	var (
		ride *models.Ride
		open []models.Booking
	)
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ride, err = tx.LockRide(rideID)
		if err != nil {
			return err
		}
		if ride.DriverID != driverID {
			return apperrors.Forbidden("only the ride's driver can reschedule it")
		}
		if !ride.IsActive() {
			return apperrors.ErrRideNotActive
		}
		// confirmed bookings of a departed ride already read as completed
		if departed(ride, today) {
			return apperrors.ErrRideDeparted
		}

		ride.Date = date
		ride.DepartureTime = in.DepartureTime
		ride.RescheduleReason = strings.TrimSpace(in.Reason)
		if err := tx.SaveRide(ride); err != nil {
			return err
		}

		open, err = tx.LockOpenBookings(ride.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":  ride.ID,
		"date":     ride.Date.Format(utils.DateLayout),
		"time":     ride.DepartureTime,
		"notified": len(open),
	}).Info("ride rescheduled")
	dispatch(ctx, s.notifier, rideRescheduledEvents(ride, open))
	return ride, nil
}

// Cancel cancels the ride and cascades into its bookings in the same
// transaction, so the response always reflects the post-cascade state.
func (s *RideService) Cancel(ctx context.Context, driverID, rideID uint) (*RideCancellation, error) {
	today := s.clock.Today()

	var (
		ride *models.Ride
		res  *CascadeResult
	)
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		var err error
		ride, err = tx.LockRide(rideID)
		if err != nil {
			return err
		}
		if ride.DriverID != driverID {
			return apperrors.Forbidden("only the ride's driver can cancel it")
		}
		if ride.Status == models.RideStatusCancelled {
			return apperrors.ErrAlreadyCancelled
		}
		if departed(ride, today) {
			return apperrors.ErrRideDeparted
		}

		res, err = s.coordinator.CascadeRideCancel(tx, ride, driverID)
		if err != nil {
			return err
		}
		ride.Status = models.RideStatusCancelled
		return tx.SaveRide(ride)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":        ride.ID,
		"bookings":       len(res.Bookings),
		"seats_released": res.SeatsReleased,
		"refunds":        len(res.Refunds),
	}).Info("ride cancelled")

	if s.refunds != nil && len(res.Refunds) > 0 {
		s.refunds.Dispatch(res.Refunds...)
	}
	dispatch(ctx, s.notifier, rideCancelledEvents(ride, res))

	out := &RideCancellation{
		Ride:          *ride,
		Bookings:      make([]BookingView, 0, len(res.Bookings)),
		SeatsReleased: res.SeatsReleased,
		RefundsQueued: len(res.Refunds),
	}
	for i := range res.Bookings {
		out.Bookings = append(out.Bookings, NewBookingView(&res.Bookings[i], ride, today))
	}
	return out, nil
}

func (s *RideService) Get(ctx context.Context, rideID uint) (*models.Ride, error) {
	return s.store.GetRide(ctx, rideID)
}

// ListDriverRides returns every ride of the driver.
func (s *RideService) ListDriverRides(ctx context.Context, driverID uint) ([]models.Ride, error) {
	return s.store.ListDriverRides(ctx, driverID)
}

// Search lists bookable rides from today on, oldest id first.
func (s *RideService) Search(ctx context.Context, q RideSearch) (*Page[models.Ride], error) {
	afterID, err := decodePageToken(q.PageToken)
	if err != nil {
		return nil, err
	}
	limit := pageLimit(q.Limit)

	query := models.RideQuery{
		SourceCity:      q.SourceCity,
		DestinationCity: q.DestinationCity,
		FromDate:        s.clock.Today(),
		AfterID:         afterID,
		Limit:           limit + 1,
	}
	if q.Date != nil {
		d := utils.NormalizeDate(*q.Date)
		query.Date = &d
	}

	rides, err := s.store.SearchRides(ctx, query)
	if err != nil {
		return nil, err
	}
	page := &Page[models.Ride]{Items: rides}
	if len(rides) > limit {
		page.Items = rides[:limit]
		page.NextPageToken = encodePageToken(page.Items[limit-1].ID)
	}
	return page, nil
}

// LedgerSummary returns the seat audit for one of the driver's rides.
func (s *RideService) LedgerSummary(ctx context.Context, driverID, rideID uint) (*SeatLedgerSummary, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, apperrors.Forbidden("only the ride's driver can audit its seats")
	}
	entries, err := s.store.LedgerEntries(ctx, rideID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.ListRideBookings(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return SummarizeLedger(ride, entries, bookings), nil
}
