package models

import (
	"strings"
	"time"
)

type RideStatus string

const (
	RideStatusActive    RideStatus = "ACTIVE"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// MaxRoutePoints caps the named pickup and drop points a ride may declare.
const MaxRoutePoints = 4

// Ride is a driver-published trip with a finite number of seats.
type Ride struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	DriverID         uint       `gorm:"not null;index" json:"driverId"`
	SourceCity       string     `gorm:"not null" json:"sourceCity"`
	DestinationCity  string     `gorm:"not null" json:"destinationCity"`
	PickupPoints     []string   `gorm:"serializer:json;not null" json:"pickupPoints"`
	DropPoints       []string   `gorm:"serializer:json;not null" json:"dropPoints"`
	Date             time.Time  `gorm:"type:date;not null;index" json:"date"`
	DepartureTime    string     `gorm:"not null" json:"departureTime"`
	Capacity         int        `gorm:"not null" json:"capacity"`
	AvailableSeats   int        `gorm:"not null" json:"availableSeats"`
	PricePerSeat     float64    `gorm:"not null" json:"pricePerSeat"`
	Status           RideStatus `gorm:"not null;default:'ACTIVE';index" json:"status"`
	RescheduleReason string     `json:"rescheduleReason,omitempty"`
	Version          int        `gorm:"not null;default:1" json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// TableName specifies the table name
func (Ride) TableName() string {
	return "rides"
}

// IsActive reports whether the ride still accepts bookings.
func (r *Ride) IsActive() bool {
	return r.Status == RideStatusActive
}

// MatchPickupPoint returns the ride's spelling of a pickup point, matching
// case-insensitively.
func (r *Ride) MatchPickupPoint(name string) (string, bool) {
	return matchPoint(r.PickupPoints, name)
}

// MatchDropPoint returns the ride's spelling of a drop point.
func (r *Ride) MatchDropPoint(name string) (string, bool) {
	return matchPoint(r.DropPoints, name)
}

func matchPoint(points []string, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, p := range points {
		if strings.EqualFold(strings.TrimSpace(p), name) {
			return p, true
		}
	}
	return "", false
}

// Clone returns a copy of the ride that shares no slices with r.
func (r Ride) Clone() Ride {
	r.PickupPoints = append([]string(nil), r.PickupPoints...)
	r.DropPoints = append([]string(nil), r.DropPoints...)
	return r
}

// RideQuery filters the public ride search.
type RideQuery struct {
	SourceCity      string
	DestinationCity string
	Date            *time.Time
	FromDate        time.Time
	AfterID         uint
	Limit           int
}
