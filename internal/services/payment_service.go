package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/payment"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// PaymentService runs the two-phase settlement of an ACCEPTED booking.
// Gateway calls never happen inside a database transaction; everything
// read before a gateway call is re-validated under lock afterwards.
type PaymentService struct {
	store    store.Store
	gateway  payment.Gateway
	refunds  RefundQueue
	notifier Notifier
	currency string
	clock    Clock
	log      *logrus.Logger
}

func NewPaymentService(s store.Store, gateway payment.Gateway, refunds RefundQueue, notifier Notifier, currency string, clock Clock, log *logrus.Logger) *PaymentService {
	return &PaymentService{
		store:    s,
		gateway:  gateway,
		refunds:  refunds,
		notifier: notifier,
		currency: currency,
		clock:    clock,
		log:      log,
	}
}

// OrderDescriptor is what a checkout client needs to start paying.
type OrderDescriptor struct {
	BookingID        uint   `json:"bookingId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
	ProviderKey      string `json:"providerKey"`
}

type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// checkPayable holds the createOrder preconditions. It runs once before the
// gateway call and again under lock before the order is stored.
func checkPayable(riderID uint, b *models.Booking, effective models.BookingStatus, orders []models.PaymentOrder) error {
	if b.RiderID != riderID {
		return apperrors.Forbidden("only the rider can pay for this booking")
	}
	for _, o := range orders {
		if o.Status == models.PaymentOrderPaid {
			return apperrors.ErrAlreadyPaid
		}
	}
	switch effective {
	case models.BookingStatusConfirmed, models.BookingStatusCompleted:
		return apperrors.ErrAlreadyPaid
	case models.BookingStatusAccepted:
	default:
		return apperrors.ErrNotAccepted.WithDetail("status", effective)
	}
	if b.FareAmount <= 0 {
		return apperrors.ErrNotPayable
	}
	return nil
}

func (s *PaymentService) lockPayable(tx store.Tx, riderID uint, snapshot *models.Booking) (*models.Ride, *models.Booking, error) {
	ride, err := tx.LockRide(snapshot.RideID)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.LockBooking(snapshot.ID)
	if err != nil {
		return nil, nil, err
	}
	orders, err := tx.PaymentOrders(b.ID)
	if err != nil {
		return nil, nil, err
	}
	today := s.clock.Today()
	if err := checkPayable(riderID, b, EffectiveStatus(b, ride, today), orders); err != nil {
		return nil, nil, err
	}
	if departed(ride, today) {
		return nil, nil, apperrors.ErrBookingLapsed
	}
	return ride, b, nil
}

// CreateOrder opens a gateway order for the booking's fare. The amount in
// minor units is computed here, once, and stored with the order.
func (s *PaymentService) CreateOrder(ctx context.Context, riderID, bookingID uint) (*OrderDescriptor, error) {
	snapshot, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var amountMinor int64
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		_, b, err := s.lockPayable(tx, riderID, snapshot)
		if err != nil {
			return err
		}
		amountMinor = utils.ToMinorUnits(b.FareAmount)
		return nil
	})
	if err != nil {
		return nil, err
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, amountMinor, s.currency, fmt.Sprintf("booking-%d", bookingID))
	if err != nil {
		s.log.WithError(err).WithField("booking_id", bookingID).Error("gateway order creation failed")
		return nil, apperrors.Internal("could not create payment order", err)
	}

	order := &models.PaymentOrder{
		BookingID:      bookingID,
		GatewayOrderID: gwOrder.ID,
		AmountMinor:    amountMinor,
		Currency:       s.currency,
		ProviderKey:    s.gateway.KeyID(),
		Status:         models.PaymentOrderCreated,
	}
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		if _, _, err := s.lockPayable(tx, riderID, snapshot); err != nil {
			return err
		}
		return tx.CreatePaymentOrder(order)
	})
	if err != nil {
		// the gateway order is simply abandoned
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id":   bookingID,
		"order_id":     order.GatewayOrderID,
		"amount_minor": order.AmountMinor,
	}).Info("payment order created")

	return &OrderDescriptor{
		BookingID:        bookingID,
		GatewayOrderID:   order.GatewayOrderID,
		AmountMinorUnits: order.AmountMinor,
		Currency:         order.Currency,
		ProviderKey:      order.ProviderKey,
	}, nil
}

// Verify checks a checkout callback and confirms the booking. A replay of
// an already applied payload returns the CONFIRMED booking unchanged.
func (s *PaymentService) Verify(ctx context.Context, riderID, bookingID uint, in VerifyInput) (*BookingView, error) {
	in.GatewayOrderID = strings.TrimSpace(in.GatewayOrderID)
	in.GatewayPaymentID = strings.TrimSpace(in.GatewayPaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	switch {
	case in.GatewayOrderID == "":
		return nil, apperrors.Validation("gatewayOrderId", "gateway order id is required")
	case in.GatewayPaymentID == "":
		return nil, apperrors.Validation("gatewayPaymentId", "gateway payment id is required")
	case in.Signature == "":
		return nil, apperrors.Validation("signature", "signature is required")
	}

	snapshot, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if snapshot.RiderID != riderID {
		return nil, apperrors.Forbidden("only the rider can pay for this booking")
	}

	order, err := s.store.FindPaymentOrder(ctx, in.GatewayOrderID)
	if errors.Is(err, apperrors.ErrNotFound) || (err == nil && order.BookingID != bookingID) {
		s.logTrust(bookingID, in, "order does not belong to booking")
		return nil, apperrors.ErrSignatureInvalid
	}
	if err != nil {
		return nil, err
	}

	if !s.gateway.VerifySignature(order.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
		s.logTrust(bookingID, in, "signature mismatch")
		s.markFailed(ctx, snapshot, order.ID, "signature mismatch")
		return nil, apperrors.ErrSignatureInvalid
	}

	if order.Status == models.PaymentOrderPaid && order.GatewayPaymentID == in.GatewayPaymentID {
		return s.currentView(ctx, bookingID)
	}

	gwPayment, err := s.gateway.FetchPayment(ctx, in.GatewayPaymentID)
	if errors.Is(err, payment.ErrNotFound) {
		s.logTrust(bookingID, in, "payment unknown to gateway")
		s.markFailed(ctx, snapshot, order.ID, "payment not found")
		return nil, apperrors.ErrGatewayRejected
	}
	if err != nil {
		return nil, apperrors.Internal("payment gateway unavailable", err)
	}
	if reason := paymentMismatch(order, gwPayment); reason != "" {
		s.logTrust(bookingID, in, reason)
		s.markFailed(ctx, snapshot, order.ID, reason)
		return nil, apperrors.ErrGatewayRejected
	}

	var (
		ride    *models.Ride
		booking *models.Booking
		outcome error
		replay  bool
		refund  *models.RefundIntent
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
		orders, err := tx.PaymentOrders(bookingID)
		if err != nil {
			return err
		}

		var current *models.PaymentOrder
		for i := range orders {
			if orders[i].ID == order.ID {
				current = &orders[i]
			}
		}
		if current == nil {
			return apperrors.ErrSignatureInvalid
		}
		if current.Status == models.PaymentOrderPaid && current.GatewayPaymentID == in.GatewayPaymentID {
			replay = true
			return nil
		}

		if booking.Status != models.BookingStatusAccepted {
			outcome = apperrors.ErrNotAccepted.WithDetail("status", booking.Status)
			if booking.Status == models.BookingStatusConfirmed {
				outcome = apperrors.ErrAlreadyPaid
			}
			if current.GatewayPaymentID == in.GatewayPaymentID {
				// this payment was already sent back
				return nil
			}
			// the money was captured for a booking that can no longer be
			// confirmed, so it goes straight back
			current.Status = models.PaymentOrderFailed
			current.GatewayPaymentID = in.GatewayPaymentID
			current.FailureReason = "booking no longer accepted"
			if err := tx.SavePaymentOrder(current); err != nil {
				return err
			}
			refund = &models.RefundIntent{
				BookingID:   booking.ID,
				PaymentID:   in.GatewayPaymentID,
				AmountMinor: current.AmountMinor,
				Currency:    current.Currency,
				Status:      models.RefundPending,
			}
			return tx.CreateRefundIntent(refund)
		}

		booking.Status = models.BookingStatusConfirmed
		booking.PaymentID = in.GatewayPaymentID
		if err := tx.SaveBooking(booking); err != nil {
			return err
		}

		current.Status = models.PaymentOrderPaid
		current.GatewayPaymentID = in.GatewayPaymentID
		current.FailureReason = ""
		if err := tx.SavePaymentOrder(current); err != nil {
			return err
		}
		for i := range orders {
			if orders[i].ID != current.ID && orders[i].Status == models.PaymentOrderCreated {
				orders[i].Status = models.PaymentOrderSuperseded
				if err := tx.SavePaymentOrder(&orders[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refund != nil && s.refunds != nil {
		s.refunds.Dispatch(*refund)
	}
	if outcome != nil {
		s.log.WithFields(logrus.Fields{"booking_id": bookingID, "payment_id": in.GatewayPaymentID}).
			WithError(outcome).Warn("payment captured for a booking that is not payable")
		return nil, outcome
	}

	view := NewBookingView(booking, ride, s.clock.Today())
	if replay {
		return &view, nil
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"order_id":   order.GatewayOrderID,
		"payment_id": in.GatewayPaymentID,
	}).Info("booking confirmed")
	dispatch(ctx, s.notifier, []Event{{
		Type:      EventBookingConfirmed,
		UserID:    ride.DriverID,
		RideID:    ride.ID,
		BookingID: booking.ID,
		Title:     "Booking confirmed",
		Body:      fmt.Sprintf("Payment received for %d seat(s).", booking.NumberOfSeats),
	}})
	return &view, nil
}

// paymentMismatch returns why a gateway payment cannot settle the order, or
// "" when it can.
func paymentMismatch(order *models.PaymentOrder, p *payment.Payment) string {
	switch {
	case p.OrderID != order.GatewayOrderID:
		return "payment belongs to another order"
	case p.AmountMinor != order.AmountMinor:
		return "amount mismatch"
	case !strings.EqualFold(p.Currency, order.Currency):
		return "currency mismatch"
	case !p.Settled():
		if p.ErrorReason != "" {
			return "payment " + p.Status + ": " + p.ErrorReason
		}
		return "payment " + p.Status
	}
	return ""
}

// markFailed flags a still-open order as failed. The booking stays ACCEPTED
// so the rider can start over with a new order.
func (s *PaymentService) markFailed(ctx context.Context, snapshot *models.Booking, orderID uint, reason string) {
	err := s.store.Transaction(ctx, func(tx store.Tx) error {
		if _, err := tx.LockRide(snapshot.RideID); err != nil {
			return err
		}
		if _, err := tx.LockBooking(snapshot.ID); err != nil {
			return err
		}
		orders, err := tx.PaymentOrders(snapshot.ID)
		if err != nil {
			return err
		}
		for i := range orders {
			if orders[i].ID == orderID && orders[i].Status == models.PaymentOrderCreated {
				orders[i].Status = models.PaymentOrderFailed
				orders[i].FailureReason = reason
				return tx.SavePaymentOrder(&orders[i])
			}
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("booking_id", snapshot.ID).Error("failed to mark payment order failed")
	}
}

func (s *PaymentService) currentView(ctx context.Context, bookingID uint) (*BookingView, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ride, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	view := NewBookingView(b, ride, s.clock.Today())
	return &view, nil
}

func (s *PaymentService) logTrust(bookingID uint, in VerifyInput, reason string) {
	s.log.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"order_id":   in.GatewayOrderID,
		"payment_id": in.GatewayPaymentID,
		"reason":     reason,
	}).Warn("payment verification rejected")
}
