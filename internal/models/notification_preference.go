package models

import (
	"time"
)

// NotificationPreference represents user notification preferences
type NotificationPreference struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// General push notification toggle
	PushEnabled bool `gorm:"column:push_enabled;default:true" json:"pushEnabled"`

	// Booking requests, acceptances, declines, cancellations and payments
	BookingAlerts bool `gorm:"column:booking_alerts;default:true" json:"bookingAlerts"`
	// Reschedules and cancellations of a ride the user is booked on
	RideStatusAlerts bool `gorm:"column:ride_status_alerts;default:true" json:"rideStatusAlerts"`
}

// TableName specifies the table name for NotificationPreference
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// DefaultPreferences returns default notification preferences for a new user
func DefaultPreferences(userID uint) *NotificationPreference {
	return &NotificationPreference{
		UserID:           userID,
		PushEnabled:      true,
		BookingAlerts:    true,
		RideStatusAlerts: true,
	}
}
