package database

import (
	"github.com/chachabrian/poolit-backend/internal/models"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.VehicleProfile{},
		&models.NotificationPreference{},
		&models.Ride{},
		&models.Booking{},
		&models.SeatLedgerEntry{},
		&models.PaymentOrder{},
		&models.RefundIntent{},
	)
	if err != nil {
		return err
	}

	// Constraints AutoMigrate cannot express
	constraints := []struct {
		table, name, check string
	}{
		{"rides", "rides_seats_check", "available_seats >= 0 AND available_seats <= capacity"},
		{"rides", "rides_capacity_check", "capacity >= 1"},
		{"rides", "rides_status_check", "status IN ('ACTIVE', 'CANCELLED')"},
		{"bookings", "bookings_seats_check", "number_of_seats >= 1"},
		{"bookings", "bookings_status_check", "status IN ('PENDING', 'ACCEPTED', 'CONFIRMED', 'DECLINED', 'CANCELLED')"},
		{"seat_ledger_entries", "seat_ledger_seats_check", "seats >= 1"},
		{"users", "users_user_type_check", "user_type IN ('rider', 'driver')"},
	}
	for _, c := range constraints {
		if err := db.Exec(`ALTER TABLE ` + c.table + ` DROP CONSTRAINT IF EXISTS ` + c.name).Error; err != nil {
			return err
		}
		if err := db.Exec(`ALTER TABLE ` + c.table + ` ADD CONSTRAINT ` + c.name + ` CHECK (` + c.check + `)`).Error; err != nil {
			return err
		}
	}

	return nil
}
