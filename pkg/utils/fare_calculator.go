package utils

import "math"

// CalculateBookingFare returns the fare for a number of seats at the ride's
// per-seat price, rounded to 2 decimal places.
func CalculateBookingFare(pricePerSeat float64, seats int) float64 {
	if seats <= 0 || pricePerSeat <= 0 {
		return 0
	}
	return RoundMoney(pricePerSeat * float64(seats))
}

// RoundMoney rounds a rupee amount to 2 decimal places.
func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ToMinorUnits converts a rupee amount into paise. Call it once per amount:
// converting an already-converted value compounds rounding drift.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts paise back to rupees for display.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
