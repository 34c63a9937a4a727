package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the postgres implementation of store.Store.
type GormStore struct {
	db *gorm.DB
}

var (
	_ store.Store              = (*GormStore)(nil)
	_ store.Tx                 = (*gormTx)(nil)
	_ store.RecipientDirectory = (*GormStore)(nil)
)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for the CRUD handlers that do not go
// through the booking engine.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) GetRide(ctx context.Context, id uint) (*models.Ride, error) {
	var ride models.Ride
	if err := s.db.WithContext(ctx).First(&ride, id).Error; err != nil {
		return nil, translate(err, "ride")
	}
	return &ride, nil
}

func (s *GormStore) RidesByIDs(ctx context.Context, ids []uint) (map[uint]*models.Ride, error) {
	out := make(map[uint]*models.Ride, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rides []models.Ride
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rides).Error; err != nil {
		return nil, translate(err, "ride")
	}
	for i := range rides {
		out[rides[i].ID] = &rides[i]
	}
	return out, nil
}

func (s *GormStore) ListDriverRides(ctx context.Context, driverID uint) ([]models.Ride, error) {
	var rides []models.Ride
	err := s.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("date DESC, id DESC").
		Find(&rides).Error
	if err != nil {
		return nil, translate(err, "ride")
	}
	return rides, nil
}

func (s *GormStore) SearchRides(ctx context.Context, q models.RideQuery) ([]models.Ride, error) {
	query := s.db.WithContext(ctx).
		Where("status = ?", models.RideStatusActive).
		Where("available_seats > 0").
		Where("date >= ?", q.FromDate)

	if q.SourceCity != "" {
		query = query.Where("LOWER(source_city) = ?", strings.ToLower(strings.TrimSpace(q.SourceCity)))
	}
	if q.DestinationCity != "" {
		query = query.Where("LOWER(destination_city) = ?", strings.ToLower(strings.TrimSpace(q.DestinationCity)))
	}
	if q.Date != nil {
		query = query.Where("date = ?", *q.Date)
	}
	if q.AfterID > 0 {
		query = query.Where("id > ?", q.AfterID)
	}

	var rides []models.Ride
	if err := query.Order("id ASC").Limit(q.Limit).Find(&rides).Error; err != nil {
		return nil, translate(err, "ride")
	}
	return rides, nil
}

func (s *GormStore) GetBooking(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, translate(err, "booking")
	}
	return &booking, nil
}

func (s *GormStore) ListRiderBookings(ctx context.Context, riderID, beforeID uint, limit int) ([]models.Booking, error) {
	query := s.db.WithContext(ctx).Where("rider_id = ?", riderID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	var bookings []models.Booking
	if err := query.Order("id DESC").Limit(limit).Find(&bookings).Error; err != nil {
		return nil, translate(err, "booking")
	}
	return bookings, nil
}

func (s *GormStore) ListRideBookings(ctx context.Context, rideID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.db.WithContext(ctx).Where("ride_id = ?", rideID).Order("id ASC").Find(&bookings).Error; err != nil {
		return nil, translate(err, "booking")
	}
	return bookings, nil
}

func (s *GormStore) LedgerEntries(ctx context.Context, rideID uint) ([]models.SeatLedgerEntry, error) {
	var entries []models.SeatLedgerEntry
	if err := s.db.WithContext(ctx).Where("ride_id = ?", rideID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, translate(err, "ledger entry")
	}
	return entries, nil
}

func (s *GormStore) GetVehicle(ctx context.Context, driverID uint) (*models.VehicleProfile, error) {
	return findVehicle(s.db.WithContext(ctx), driverID)
}

func (s *GormStore) SaveVehicle(ctx context.Context, v *models.VehicleProfile) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "driver_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"make", "model", "color", "plate", "seats", "updated_at"}),
	}).Create(v).Error
	return translate(err, "vehicle profile")
}

func (s *GormStore) FindPaymentOrder(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := s.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, translate(err, "payment order")
	}
	return &order, nil
}

func (s *GormStore) GetRefundIntent(ctx context.Context, id uint) (*models.RefundIntent, error) {
	var intent models.RefundIntent
	if err := s.db.WithContext(ctx).First(&intent, id).Error; err != nil {
		return nil, translate(err, "refund intent")
	}
	return &intent, nil
}

func (s *GormStore) ListRefundIntents(ctx context.Context, statuses ...models.RefundStatus) ([]models.RefundIntent, error) {
	query := s.db.WithContext(ctx)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var intents []models.RefundIntent
	if err := query.Order("id ASC").Find(&intents).Error; err != nil {
		return nil, translate(err, "refund intent")
	}
	return intents, nil
}

func (s *GormStore) ClaimRefundIntent(ctx context.Context, id uint, attempts int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.RefundIntent{}).
		Where("id = ? AND attempts = ? AND status <> ?", id, attempts, models.RefundSucceeded).
		Updates(map[string]interface{}{
			"attempts":   attempts + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, translate(res.Error, "refund intent")
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) SaveRefundIntent(ctx context.Context, r *models.RefundIntent) error {
	return translate(s.db.WithContext(ctx).Save(r).Error, "refund intent")
}

// PushTarget returns the user's device token and notification preferences.
// Users without stored preferences get the defaults.
func (s *GormStore) PushTarget(ctx context.Context, userID uint) (string, *models.NotificationPreference, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "fcm_token").First(&user, userID).Error; err != nil {
		return "", nil, translate(err, "user")
	}

	var prefs models.NotificationPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return user.FCMToken, models.DefaultPreferences(userID), nil
	case err != nil:
		return "", nil, translate(err, "notification preferences")
	}
	return user.FCMToken, &prefs, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) locking() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockRide(id uint) (*models.Ride, error) {
	var ride models.Ride
	if err := t.locking().First(&ride, id).Error; err != nil {
		return nil, translate(err, "ride")
	}
	return &ride, nil
}

func (t *gormTx) LockBooking(id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := t.locking().First(&booking, id).Error; err != nil {
		return nil, translate(err, "booking")
	}
	return &booking, nil
}

func (t *gormTx) LockOpenBookings(rideID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := t.locking().
		Where("ride_id = ? AND status IN ?", rideID, models.OpenBookingStatuses).
		Order("id ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, translate(err, "booking")
	}
	return bookings, nil
}

func (t *gormTx) GetVehicle(driverID uint) (*models.VehicleProfile, error) {
	return findVehicle(t.db, driverID)
}

func (t *gormTx) CreateRide(r *models.Ride) error {
	r.Version = 1
	return translate(t.db.Create(r).Error, "ride")
}

func (t *gormTx) SaveRide(r *models.Ride) error {
	now := time.Now()
	res := t.db.Model(&models.Ride{}).
		Where("id = ? AND version = ?", r.ID, r.Version).
		Updates(map[string]interface{}{
			"date":              r.Date,
			"departure_time":    r.DepartureTime,
			"available_seats":   r.AvailableSeats,
			"status":            r.Status,
			"reschedule_reason": r.RescheduleReason,
			"version":           r.Version + 1,
			"updated_at":        now,
		})
	if err := checkCAS(res, "ride"); err != nil {
		return err
	}
	r.Version++
	r.UpdatedAt = now
	return nil
}

func (t *gormTx) CreateBooking(b *models.Booking) error {
	b.Version = 1
	return translate(t.db.Create(b).Error, "booking")
}

func (t *gormTx) SaveBooking(b *models.Booking) error {
	now := time.Now()
	res := t.db.Model(&models.Booking{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]interface{}{
			"pickup":         b.Pickup,
			"drop_point":     b.Drop,
			"status":         b.Status,
			"seats_reserved": b.SeatsReserved,
			"payment_id":     b.PaymentID,
			"cancelled_by":   b.CancelledBy,
			"version":        b.Version + 1,
			"updated_at":     now,
		})
	if err := checkCAS(res, "booking"); err != nil {
		return err
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

func (t *gormTx) AppendLedgerEntry(e *models.SeatLedgerEntry) error {
	return translate(t.db.Create(e).Error, "ledger entry")
}

func (t *gormTx) PaymentOrders(bookingID uint) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	if err := t.db.Where("booking_id = ?", bookingID).Order("id ASC").Find(&orders).Error; err != nil {
		return nil, translate(err, "payment order")
	}
	return orders, nil
}

func (t *gormTx) CreatePaymentOrder(o *models.PaymentOrder) error {
	return translate(t.db.Create(o).Error, "payment order")
}

func (t *gormTx) SavePaymentOrder(o *models.PaymentOrder) error {
	return translate(t.db.Save(o).Error, "payment order")
}

func (t *gormTx) CreateRefundIntent(r *models.RefundIntent) error {
	return translate(t.db.Create(r).Error, "refund intent")
}

func findVehicle(db *gorm.DB, driverID uint) (*models.VehicleProfile, error) {
	var v models.VehicleProfile
	if err := db.Where("driver_id = ?", driverID).First(&v).Error; err != nil {
		return nil, translate(err, "vehicle profile")
	}
	return &v, nil
}

func checkCAS(res *gorm.DB, resource string) error {
	if res.Error != nil {
		return translate(res.Error, resource)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConcurrentUpdate.WithDetail("resource", resource)
	}
	return nil
}

// translate maps gorm errors onto the application taxonomy.
func translate(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(resource)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Wrap(apperrors.ErrConcurrentUpdate, err)
	default:
		return apperrors.Internal("database error", err)
	}
}
