package services

import (
	"fmt"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
)

// Coordinator propagates ride-level events into the ride's bookings.
type Coordinator struct {
	currency string
}

func NewCoordinator(currency string) *Coordinator {
	return &Coordinator{currency: currency}
}

// CascadeResult is what a ride cancellation did to its bookings.
type CascadeResult struct {
	Bookings      []models.Booking
	Refunds       []models.RefundIntent
	SeatsReleased int
}

// CascadeRideCancel cancels every open booking of a locked ride inside tx.
// Reserved seats are released once each and CONFIRMED bookings get a refund
// intent. Any error must abort tx so no partial cascade is committed.
func (c *Coordinator) CascadeRideCancel(tx store.Tx, ride *models.Ride, actorID uint) (*CascadeResult, error) {
	open, err := tx.LockOpenBookings(ride.ID)
	if err != nil {
		return nil, err
	}

	res := &CascadeResult{}
	for i := range open {
		b := &open[i]
		wasConfirmed := b.Status == models.BookingStatusConfirmed

		released, err := releaseSeats(tx, ride, b)
		if err != nil {
			return nil, fmt.Errorf("release booking %d: %w", b.ID, err)
		}
		if released {
			res.SeatsReleased += b.NumberOfSeats
		}

		if wasConfirmed {
			intent, err := recordRefund(tx, b, c.currency)
			if err != nil {
				return nil, fmt.Errorf("refund booking %d: %w", b.ID, err)
			}
			res.Refunds = append(res.Refunds, *intent)
		}

		b.Status = models.BookingStatusCancelled
		by := actorID
		b.CancelledBy = &by
		if err := tx.SaveBooking(b); err != nil {
			return nil, fmt.Errorf("cancel booking %d: %w", b.ID, err)
		}
		res.Bookings = append(res.Bookings, *b)
	}
	return res, nil
}

// recordRefund writes the refund intent for a paid booking, keyed by the
// original payment. The amount comes from the paid order as charged.
func recordRefund(tx store.Tx, b *models.Booking, currency string) (*models.RefundIntent, error) {
	orders, err := tx.PaymentOrders(b.ID)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Status != models.PaymentOrderPaid {
			continue
		}
		intent := &models.RefundIntent{
			BookingID:   b.ID,
			PaymentID:   o.GatewayPaymentID,
			AmountMinor: o.AmountMinor,
			Currency:    o.Currency,
			Status:      models.RefundPending,
		}
		if intent.Currency == "" {
			intent.Currency = currency
		}
		if err := tx.CreateRefundIntent(intent); err != nil {
			return nil, err
		}
		return intent, nil
	}
	return nil, apperrors.Internal(fmt.Sprintf("booking %d is confirmed without a paid order", b.ID), nil)
}

func rideCancelledEvents(ride *models.Ride, res *CascadeResult) []Event {
	events := make([]Event, 0, len(res.Bookings))
	for _, b := range res.Bookings {
		data := map[string]interface{}{"status": b.Status}
		body := fmt.Sprintf("Your ride from %s to %s on %s was cancelled by the driver.",
			ride.SourceCity, ride.DestinationCity, ride.Date.Format("02 Jan"))
		if b.PaymentID != "" {
			data["refund"] = true
			body += " A refund has been initiated."
		}
		events = append(events, Event{
			Type:      EventRideCancelled,
			UserID:    b.RiderID,
			RideID:    ride.ID,
			BookingID: b.ID,
			Title:     "Ride cancelled",
			Body:      body,
			Data:      data,
		})
	}
	return events
}

func rideRescheduledEvents(ride *models.Ride, bookings []models.Booking) []Event {
	events := make([]Event, 0, len(bookings))
	seen := map[uint]bool{}
	for _, b := range bookings {
		if seen[b.RiderID] {
			continue
		}
		seen[b.RiderID] = true
		events = append(events, Event{
			Type:      EventRideRescheduled,
			UserID:    b.RiderID,
			RideID:    ride.ID,
			BookingID: b.ID,
			Title:     "Ride rescheduled",
			Body: fmt.Sprintf("Your ride from %s to %s now departs %s at %s.",
				ride.SourceCity, ride.DestinationCity, ride.Date.Format("02 Jan"), ride.DepartureTime),
			Data: map[string]interface{}{
				"date":          ride.Date.Format("2006-01-02"),
				"departureTime": ride.DepartureTime,
				"reason":        ride.RescheduleReason,
			},
		})
	}
	return events
}
