package models

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusAccepted  BookingStatus = "ACCEPTED"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusDeclined  BookingStatus = "DECLINED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition can leave the status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusDeclined, BookingStatusCancelled:
		return true
	}
	return false
}

// OpenBookingStatuses are the statuses a ride cancellation or reschedule
// still has to deal with.
var OpenBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusAccepted,
	BookingStatusConfirmed,
}

// Booking is a rider's request for seats on a ride.
type Booking struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	RideID        uint          `gorm:"not null;index" json:"rideId"`
	RiderID       uint          `gorm:"not null;index" json:"riderId"`
	NumberOfSeats int           `gorm:"not null" json:"numberOfSeats"`
	Pickup        string        `gorm:"not null" json:"pickup"`
	Drop          string        `gorm:"column:drop_point;not null" json:"drop"`
	FareAmount    float64       `gorm:"not null" json:"fareAmount"`
	Status        BookingStatus `gorm:"not null;default:'PENDING';index" json:"status"`
	SeatsReserved bool          `gorm:"not null;default:false" json:"-"`
	PaymentID     string        `json:"paymentId,omitempty"`
	CancelledBy   *uint         `json:"cancelledBy,omitempty"`
	Version       int           `gorm:"not null;default:1" json:"-"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TableName specifies the table name
func (Booking) TableName() string {
	return "bookings"
}

// HoldsSeats reports whether the booking currently counts against the ride's
// available seats.
func (b *Booking) HoldsSeats() bool {
	return b.SeatsReserved
}
