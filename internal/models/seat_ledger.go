package models

import "time"

type SeatLedgerKind string

const (
	SeatLedgerReserve SeatLedgerKind = "reserve"
	SeatLedgerRelease SeatLedgerKind = "release"
)

// SeatLedgerEntry is the audit trail of every seat reservation and release.
// The unique (booking_id, kind) index allows at most one of each per booking.
type SeatLedgerEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RideID    uint           `gorm:"not null;index" json:"rideId"`
	BookingID uint           `gorm:"not null;uniqueIndex:idx_seat_ledger_booking_kind" json:"bookingId"`
	Kind      SeatLedgerKind `gorm:"not null;uniqueIndex:idx_seat_ledger_booking_kind" json:"kind"`
	Seats     int            `gorm:"not null" json:"seats"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TableName specifies the table name
func (SeatLedgerEntry) TableName() string {
	return "seat_ledger_entries"
}
