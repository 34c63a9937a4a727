package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SandboxGateway is an in-process gateway for development and tests. It
// signs callbacks with the same scheme as the real provider.
type SandboxGateway struct {
	keyID  string
	secret string

	mu       sync.Mutex
	orders   map[string]*Order
	payments map[string]*Payment
	refunds  map[string]*Refund
}

func NewSandboxGateway(keyID, secret string) *SandboxGateway {
	return &SandboxGateway{
		keyID:    keyID,
		secret:   secret,
		orders:   map[string]*Order{},
		payments: map[string]*Payment{},
		refunds:  map[string]*Refund{},
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func (g *SandboxGateway) KeyID() string { return g.keyID }

func (g *SandboxGateway) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	o := &Order{
		ID:          newID("order"),
		AmountMinor: amountMinor,
		Currency:    currency,
		Receipt:     receipt,
		Status:      StatusCreated,
	}
	g.mu.Lock()
	g.orders[o.ID] = o
	g.mu.Unlock()
	cp := *o
	return &cp, nil
}

func (g *SandboxGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(g.secret, orderID, paymentID, signature)
}

func (g *SandboxGateway) FetchPayment(_ context.Context, paymentID string) (*Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (g *SandboxGateway) Refund(_ context.Context, paymentID string, amountMinor int64, _ string) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status == StatusRefunded {
		return nil, &APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "payment already refunded"}
	}
	if amountMinor > p.AmountMinor {
		return nil, &APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "refund exceeds payment"}
	}
	p.Status = StatusRefunded
	r := &Refund{ID: newID("rfnd"), PaymentID: paymentID, AmountMinor: amountMinor, Status: "processed"}
	g.refunds[r.ID] = r
	cp := *r
	return &cp, nil
}

// Pay simulates a successful checkout for an order, returning the payment id
// and the signature the client would post back.
func (g *SandboxGateway) Pay(orderID string) (paymentID, signature string, err error) {
	return g.settle(orderID, StatusCaptured, "")
}

// Decline simulates a failed checkout. The callback is still validly signed.
func (g *SandboxGateway) Decline(orderID, reason string) (paymentID, signature string, err error) {
	return g.settle(orderID, StatusFailed, reason)
}

func (g *SandboxGateway) settle(orderID, status, reason string) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return "", "", ErrNotFound
	}
	p := &Payment{
		ID:          newID("pay"),
		OrderID:     o.ID,
		AmountMinor: o.AmountMinor,
		Currency:    o.Currency,
		Status:      status,
		ErrorReason: reason,
	}
	g.payments[p.ID] = p
	if status == StatusCaptured {
		o.Status = "paid"
	}
	return p.ID, Sign(g.secret, o.ID, p.ID), nil
}

// Refunds returns the refunds issued so far.
func (g *SandboxGateway) Refunds() []Refund {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Refund, 0, len(g.refunds))
	for _, r := range g.refunds {
		out = append(out, *r)
	}
	return out
}
