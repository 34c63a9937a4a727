package store

import (
	"context"

	"github.com/chachabrian/poolit-backend/internal/models"
)

// Store is the persistence boundary of the booking engine. Reads outside a
// transaction are snapshots and must be re-validated under lock before any
// write depends on them.
type Store interface {
	// Transaction runs fn atomically. Any error returned by fn rolls back
	// every write made through tx.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	GetRide(ctx context.Context, id uint) (*models.Ride, error)
	RidesByIDs(ctx context.Context, ids []uint) (map[uint]*models.Ride, error)
	ListDriverRides(ctx context.Context, driverID uint) ([]models.Ride, error)
	SearchRides(ctx context.Context, q models.RideQuery) ([]models.Ride, error)

	GetBooking(ctx context.Context, id uint) (*models.Booking, error)
	// ListRiderBookings returns a rider's bookings newest first. beforeID of 0
	// starts from the newest.
	ListRiderBookings(ctx context.Context, riderID, beforeID uint, limit int) ([]models.Booking, error)
	ListRideBookings(ctx context.Context, rideID uint) ([]models.Booking, error)
	LedgerEntries(ctx context.Context, rideID uint) ([]models.SeatLedgerEntry, error)

	GetVehicle(ctx context.Context, driverID uint) (*models.VehicleProfile, error)
	SaveVehicle(ctx context.Context, v *models.VehicleProfile) error

	FindPaymentOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error)

	GetRefundIntent(ctx context.Context, id uint) (*models.RefundIntent, error)
	ListRefundIntents(ctx context.Context, statuses ...models.RefundStatus) ([]models.RefundIntent, error)
	// ClaimRefundIntent bumps the attempt counter if it still equals
	// attempts and the intent is unsettled. It reports whether the caller
	// won the claim and may call the gateway.
	ClaimRefundIntent(ctx context.Context, id uint, attempts int) (bool, error)
	SaveRefundIntent(ctx context.Context, r *models.RefundIntent) error
}

// Tx is the write side of a Store transaction. Rides are always locked
// before bookings. SaveRide and SaveBooking are compare-and-swap on the
// row version and return apperrors.ErrConcurrentUpdate when it moved.
type Tx interface {
	LockRide(id uint) (*models.Ride, error)
	LockBooking(id uint) (*models.Booking, error)
	// LockOpenBookings locks every PENDING, ACCEPTED and CONFIRMED booking
	// of a ride.
	LockOpenBookings(rideID uint) ([]models.Booking, error)

	GetVehicle(driverID uint) (*models.VehicleProfile, error)

	CreateRide(r *models.Ride) error
	SaveRide(r *models.Ride) error
	CreateBooking(b *models.Booking) error
	SaveBooking(b *models.Booking) error

	AppendLedgerEntry(e *models.SeatLedgerEntry) error

	PaymentOrders(bookingID uint) ([]models.PaymentOrder, error)
	CreatePaymentOrder(o *models.PaymentOrder) error
	SavePaymentOrder(o *models.PaymentOrder) error

	CreateRefundIntent(r *models.RefundIntent) error
}

// RecipientDirectory resolves where a user's push notifications go.
type RecipientDirectory interface {
	PushTarget(ctx context.Context, userID uint) (token string, prefs *models.NotificationPreference, err error)
}

// Accounts stores users and their notification settings. It sits outside
// the transactional booking engine.
type Accounts interface {
	// CreateUser returns apperrors.ErrAlreadyExists when the email or
	// username is taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uint, username, phone string) (*models.User, error)
	SetPushToken(ctx context.Context, id uint, token string) error

	// Preferences returns the defaults when none are stored.
	Preferences(ctx context.Context, userID uint) (*models.NotificationPreference, error)
	SavePreferences(ctx context.Context, p *models.NotificationPreference) error
}
