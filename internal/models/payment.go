package models

import "time"

type PaymentOrderStatus string

const (
	PaymentOrderCreated    PaymentOrderStatus = "created"
	PaymentOrderPaid       PaymentOrderStatus = "paid"
	PaymentOrderFailed     PaymentOrderStatus = "failed"
	PaymentOrderSuperseded PaymentOrderStatus = "superseded"
)

// PaymentOrder correlates a booking with one gateway order. AmountMinor is
// fixed when the order is created and is never derived again.
type PaymentOrder struct {
	ID               uint               `gorm:"primaryKey" json:"id"`
	BookingID        uint               `gorm:"not null;index" json:"bookingId"`
	GatewayOrderID   string             `gorm:"not null;uniqueIndex" json:"gatewayOrderId"`
	AmountMinor      int64              `gorm:"not null" json:"amountMinor"`
	Currency         string             `gorm:"not null" json:"currency"`
	ProviderKey      string             `gorm:"not null" json:"providerKey"`
	Status           PaymentOrderStatus `gorm:"not null;default:'created'" json:"status"`
	GatewayPaymentID string             `gorm:"index" json:"gatewayPaymentId,omitempty"`
	FailureReason    string             `json:"failureReason,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// TableName specifies the table name
func (PaymentOrder) TableName() string {
	return "payment_orders"
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// RefundIntent records that money captured for a booking is owed back to
// the rider, at most once per gateway payment. It is written in the
// cancelling transaction and settled asynchronously.
type RefundIntent struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	BookingID       uint         `gorm:"not null;index" json:"bookingId"`
	PaymentID       string       `gorm:"not null;uniqueIndex" json:"paymentId"`
	AmountMinor     int64        `gorm:"not null" json:"amountMinor"`
	Currency        string       `gorm:"not null" json:"currency"`
	Status          RefundStatus `gorm:"not null;default:'pending';index" json:"status"`
	Attempts        int          `gorm:"not null;default:0" json:"attempts"`
	GatewayRefundID string       `json:"gatewayRefundId,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// TableName specifies the table name
func (RefundIntent) TableName() string {
	return "refund_intents"
}
