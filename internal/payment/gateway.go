// Package payment talks to the card/UPI gateway that settles bookings.
package payment

import (
	"context"
	"errors"
	"fmt"
)

// Payment statuses reported by the gateway.
const (
	StatusCreated    = "created"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
}

type Payment struct {
	ID          string
	OrderID     string
	AmountMinor int64
	Currency    string
	Status      string
	ErrorReason string
}

// Settled reports whether the gateway holds the rider's money for this payment.
func (p *Payment) Settled() bool {
	return p.Status == StatusCaptured || p.Status == StatusAuthorized
}

type Refund struct {
	ID          string
	PaymentID   string
	AmountMinor int64
	Status      string
}

// Gateway is the subset of the provider API the settlement protocol needs.
type Gateway interface {
	// KeyID is the public key handed to checkout clients.
	KeyID() string
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error)
	// VerifySignature checks the checkout callback signature server-side.
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	Refund(ctx context.Context, paymentID string, amountMinor int64, receipt string) (*Refund, error)
}

// ErrNotFound is returned when the gateway does not know an order or payment.
var ErrNotFound = errors.New("payment: not found")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment gateway error %d %s: %s", e.StatusCode, e.Code, e.Description)
}
