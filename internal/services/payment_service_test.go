package services

import (
	"testing"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/payment"
)

func TestVerifyReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	b := f.book(t, ride.ID, riderA, 2)
	f.accept(t, b.ID)
	first, in := f.pay(t, riderA, b.ID)

	again, err := f.payments.Verify(f.ctx, riderA, b.ID, in)
	if err != nil {
		t.Fatalf("replayed Verify: %v", err)
	}
	if again.Status != models.BookingStatusConfirmed || again.PaymentID != first.PaymentID {
		t.Fatalf("replay returned %+v", again)
	}
	if f.events.count(EventBookingConfirmed) != 1 {
		t.Fatalf("replay notified again")
	}
	if got := f.ride(t, ride.ID).AvailableSeats; got != 2 {
		t.Fatalf("available = %d, want 2", got)
	}

	order, err := f.store.FindPaymentOrder(f.ctx, in.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != models.PaymentOrderPaid || order.GatewayPaymentID != in.GatewayPaymentID {
		t.Fatalf("order = %+v", order)
	}
}

func TestVerifyRejectsInvalidSignature(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	b := f.book(t, ride.ID, riderA, 1)
	f.accept(t, b.ID)

	order, err := f.payments.CreateOrder(f.ctx, riderA, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	paymentID, _, err := f.sandbox.Pay(order.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.payments.Verify(f.ctx, riderA, b.ID, VerifyInput{
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        "0000deadbeef",
	})
	assertCode(t, err, apperrors.ErrSignatureInvalid)
	if got := apperrors.HTTPStatus(err); got != 402 {
		t.Fatalf("status = %d, want 402", got)
	}

	if got := f.booking(t, b.ID).Status; got != models.BookingStatusAccepted {
		t.Fatalf("booking status = %s, want ACCEPTED", got)
	}
	stored, err := f.store.FindPaymentOrder(f.ctx, order.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.PaymentOrderFailed {
		t.Fatalf("order status = %s, want failed", stored.Status)
	}

	// the rider can start over
	if _, err := f.payments.CreateOrder(f.ctx, riderA, b.ID); err != nil {
		t.Fatalf("CreateOrder after failure: %v", err)
	}
}

func TestVerifyRejectsForeignOrder(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	mine := f.book(t, ride.ID, riderA, 1)
	theirs := f.book(t, ride.ID, riderB, 1)
	f.accept(t, mine.ID)
	f.accept(t, theirs.ID)

	theirOrder, err := f.payments.CreateOrder(f.ctx, riderB, theirs.ID)
	if err != nil {
		t.Fatal(err)
	}
	paymentID, sig, err := f.sandbox.Pay(theirOrder.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.payments.Verify(f.ctx, riderA, mine.ID, VerifyInput{
		GatewayOrderID:   theirOrder.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Signature:        sig,
	})
	assertCode(t, err, apperrors.ErrSignatureInvalid)

	_, err = f.payments.Verify(f.ctx, riderA, mine.ID, VerifyInput{GatewayOrderID: "order_unknown", GatewayPaymentID: paymentID, Signature: sig})
	assertCode(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyRejectsPaymentOfAnotherOrder(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 6, 100)
	cheap := f.book(t, ride.ID, riderA, 1)
	dear := f.book(t, ride.ID, riderB, 3)
	f.accept(t, cheap.ID)
	f.accept(t, dear.ID)

	cheapOrder, err := f.payments.CreateOrder(f.ctx, riderA, cheap.ID)
	if err != nil {
		t.Fatal(err)
	}
	dearOrder, err := f.payments.CreateOrder(f.ctx, riderB, dear.ID)
	if err != nil {
		t.Fatal(err)
	}
	otherPayment, _, err := f.sandbox.Pay(cheapOrder.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}

	// validly signed for the order, but the payment settled a different one
	_, err = f.payments.Verify(f.ctx, riderB, dear.ID, VerifyInput{
		GatewayOrderID:   dearOrder.GatewayOrderID,
		GatewayPaymentID: otherPayment,
		Signature:        payment.Sign(testSecret, dearOrder.GatewayOrderID, otherPayment),
	})
	assertCode(t, err, apperrors.ErrGatewayRejected)
	if got := f.booking(t, dear.ID).Status; got != models.BookingStatusAccepted {
		t.Fatalf("booking status = %s, want ACCEPTED", got)
	}
}

func TestVerifyRejectsDeclinedPayment(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	b := f.book(t, ride.ID, riderA, 1)
	f.accept(t, b.ID)

	order, err := f.payments.CreateOrder(f.ctx, riderA, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	paymentID, sig, err := f.sandbox.Decline(order.GatewayOrderID, "card declined")
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.payments.Verify(f.ctx, riderA, b.ID, VerifyInput{GatewayOrderID: order.GatewayOrderID, GatewayPaymentID: paymentID, Signature: sig})
	assertCode(t, err, apperrors.ErrGatewayRejected)

	stored, err := f.store.FindPaymentOrder(f.ctx, order.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.PaymentOrderFailed || stored.FailureReason == "" {
		t.Fatalf("order = %+v", stored)
	}
}

func TestCreateOrderPreconditions(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	b := f.book(t, ride.ID, riderA, 1)

	_, err := f.payments.CreateOrder(f.ctx, riderA, b.ID)
	assertCode(t, err, apperrors.ErrNotAccepted)

	f.accept(t, b.ID)
	_, err = f.payments.CreateOrder(f.ctx, riderB, b.ID)
	assertCode(t, err, apperrors.ErrForbidden)

	f.pay(t, riderA, b.ID)
	_, err = f.payments.CreateOrder(f.ctx, riderA, b.ID)
	assertCode(t, err, apperrors.ErrAlreadyPaid)
}

func TestCreateOrderRejectsFreeBooking(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 0)
	b := f.book(t, ride.ID, riderA, 1)
	f.accept(t, b.ID)

	_, err := f.payments.CreateOrder(f.ctx, riderA, b.ID)
	assertCode(t, err, apperrors.ErrNotPayable)
}

func TestCreateOrderOnLapsedBooking(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	b := f.book(t, ride.ID, riderA, 1)
	f.accept(t, b.ID)

	f.clock.advance(3 * 24 * time.Hour)

	_, err := f.payments.CreateOrder(f.ctx, riderA, b.ID)
	assertCode(t, err, apperrors.ErrBookingLapsed)
}

func TestLatePaymentOnCancelledBookingIsRefunded(t *testing.T) {
	f := newFixture(t)
	ride := f.publish(t, 4, 150)
	b := f.book(t, ride.ID, riderA, 2)
	f.accept(t, b.ID)

	order, err := f.payments.CreateOrder(f.ctx, riderA, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.bookings.Cancel(f.ctx, riderA, b.ID); err != nil {
		t.Fatal(err)
	}

	paymentID, sig, err := f.sandbox.Pay(order.GatewayOrderID)
	if err != nil {
		t.Fatal(err)
	}
	in := VerifyInput{GatewayOrderID: order.GatewayOrderID, GatewayPaymentID: paymentID, Signature: sig}
	_, err = f.payments.Verify(f.ctx, riderA, b.ID, in)
	assertCode(t, err, apperrors.ErrNotAccepted)
	f.drain(t)

	if got := f.booking(t, b.ID).Status; got != models.BookingStatusCancelled {
		t.Fatalf("booking status = %s", got)
	}
	refunds := f.sandbox.Refunds()
	if len(refunds) != 1 || refunds[0].PaymentID != paymentID || refunds[0].AmountMinor != 30000 {
		t.Fatalf("refunds = %+v", refunds)
	}

	// the payment now reads as refunded at the gateway, so a replay of the
	// same callback is rejected without a second refund
	_, err = f.payments.Verify(f.ctx, riderA, b.ID, in)
	assertCode(t, err, apperrors.ErrGatewayRejected)
	f.drain(t)
	if got := len(f.sandbox.Refunds()); got != 1 {
		t.Fatalf("refunds = %d, want 1", got)
	}
}

func TestVerifyValidatesInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.payments.Verify(f.ctx, riderA, 1, VerifyInput{GatewayOrderID: "order_x", Signature: "abc"})
	assertCode(t, err, &apperrors.Error{Code: apperrors.CodeValidation})
}
