package models

import "time"

// VehicleProfile is the vehicle a driver offers seats in. A driver must have
// one before publishing a ride.
type VehicleProfile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	DriverID  uint      `gorm:"uniqueIndex;not null" json:"driverId"`
	Make      string    `gorm:"not null" json:"make"`
	Model     string    `gorm:"not null" json:"model"`
	Color     string    `json:"color"`
	Plate     string    `gorm:"not null" json:"plate"`
	Seats     int       `gorm:"not null" json:"seats"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (VehicleProfile) TableName() string {
	return "vehicle_profiles"
}
