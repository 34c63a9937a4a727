package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
)

// Store is an in-process store.Store for tests. Transactions are serialised and
// work on a copy of the state that replaces the live state only when fn
// succeeds, so a failed transaction leaves nothing behind. fn must only use
// tx: calling back into the Store from inside fn deadlocks.
type Store struct {
	mu    sync.Mutex
	state *memState

	// BeforeWrite, when set, runs before every transactional write. A non-nil
	// return aborts the write and, unless fn swallows it, the transaction.
	BeforeWrite func(op string, v interface{}) error
}

var (
	_ store.Store              = (*Store)(nil)
	_ store.Tx                 = (*memTx)(nil)
	_ store.RecipientDirectory = (*Store)(nil)
)

type memState struct {
	seq      map[string]uint
	rides    map[uint]models.Ride
	bookings map[uint]models.Booking
	ledger   []models.SeatLedgerEntry
	orders   map[uint]models.PaymentOrder
	refunds  map[uint]models.RefundIntent
	vehicles map[uint]models.VehicleProfile // keyed by driver id
	users    map[uint]models.User
	prefs    map[uint]models.NotificationPreference // keyed by user id
}

func New() *Store {
	return &Store{state: &memState{
		seq:      map[string]uint{},
		rides:    map[uint]models.Ride{},
		bookings: map[uint]models.Booking{},
		orders:   map[uint]models.PaymentOrder{},
		refunds:  map[uint]models.RefundIntent{},
		vehicles: map[uint]models.VehicleProfile{},
		users:    map[uint]models.User{},
		prefs:    map[uint]models.NotificationPreference{},
	}}
}

func (st *memState) clone() *memState {
	cp := &memState{
		seq:      make(map[string]uint, len(st.seq)),
		rides:    make(map[uint]models.Ride, len(st.rides)),
		bookings: make(map[uint]models.Booking, len(st.bookings)),
		ledger:   append([]models.SeatLedgerEntry(nil), st.ledger...),
		orders:   make(map[uint]models.PaymentOrder, len(st.orders)),
		refunds:  make(map[uint]models.RefundIntent, len(st.refunds)),
		vehicles: make(map[uint]models.VehicleProfile, len(st.vehicles)),
		users:    make(map[uint]models.User, len(st.users)),
		prefs:    make(map[uint]models.NotificationPreference, len(st.prefs)),
	}
	for k, v := range st.seq {
		cp.seq[k] = v
	}
	for k, v := range st.rides {
		cp.rides[k] = v.Clone()
	}
	for k, v := range st.bookings {
		cp.bookings[k] = cloneBooking(v)
	}
	for k, v := range st.orders {
		cp.orders[k] = v
	}
	for k, v := range st.refunds {
		cp.refunds[k] = v
	}
	for k, v := range st.vehicles {
		cp.vehicles[k] = v
	}
	for k, v := range st.users {
		cp.users[k] = v
	}
	for k, v := range st.prefs {
		cp.prefs[k] = v
	}
	return cp
}

func (st *memState) next(table string) uint {
	st.seq[table]++
	return st.seq[table]
}

func cloneBooking(b models.Booking) models.Booking {
	if b.CancelledBy != nil {
		by := *b.CancelledBy
		b.CancelledBy = &by
	}
	return b
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work, hook: s.BeforeWrite}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) read() (*memState, func()) {
	s.mu.Lock()
	return s.state, s.mu.Unlock
}

func (s *Store) GetRide(_ context.Context, id uint) (*models.Ride, error) {
	st, done := s.read()
	defer done()
	r, ok := st.rides[id]
	if !ok {
		return nil, apperrors.NotFound("ride")
	}
	r = r.Clone()
	return &r, nil
}

func (s *Store) RidesByIDs(_ context.Context, ids []uint) (map[uint]*models.Ride, error) {
	st, done := s.read()
	defer done()
	out := make(map[uint]*models.Ride, len(ids))
	for _, id := range ids {
		if r, ok := st.rides[id]; ok {
			r = r.Clone()
			out[id] = &r
		}
	}
	return out, nil
}

func (s *Store) ListDriverRides(_ context.Context, driverID uint) ([]models.Ride, error) {
	st, done := s.read()
	defer done()
	rides := []models.Ride{}
	for _, r := range st.rides {
		if r.DriverID == driverID {
			rides = append(rides, r.Clone())
		}
	}
	sort.Slice(rides, func(i, j int) bool {
		if !rides[i].Date.Equal(rides[j].Date) {
			return rides[i].Date.After(rides[j].Date)
		}
		return rides[i].ID > rides[j].ID
	})
	return rides, nil
}

func (s *Store) SearchRides(_ context.Context, q models.RideQuery) ([]models.Ride, error) {
	st, done := s.read()
	defer done()
	rides := []models.Ride{}
	for _, r := range st.rides {
		switch {
		case r.Status != models.RideStatusActive, r.AvailableSeats <= 0:
			continue
		case r.Date.Before(q.FromDate):
			continue
		case q.SourceCity != "" && !strings.EqualFold(r.SourceCity, strings.TrimSpace(q.SourceCity)):
			continue
		case q.DestinationCity != "" && !strings.EqualFold(r.DestinationCity, strings.TrimSpace(q.DestinationCity)):
			continue
		case q.Date != nil && !r.Date.Equal(*q.Date):
			continue
		case r.ID <= q.AfterID:
			continue
		}
		rides = append(rides, r.Clone())
	}
	sort.Slice(rides, func(i, j int) bool { return rides[i].ID < rides[j].ID })
	if q.Limit > 0 && len(rides) > q.Limit {
		rides = rides[:q.Limit]
	}
	return rides, nil
}

func (s *Store) GetBooking(_ context.Context, id uint) (*models.Booking, error) {
	st, done := s.read()
	defer done()
	b, ok := st.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking")
	}
	b = cloneBooking(b)
	return &b, nil
}

func (s *Store) ListRiderBookings(_ context.Context, riderID, beforeID uint, limit int) ([]models.Booking, error) {
	st, done := s.read()
	defer done()
	bookings := []models.Booking{}
	for _, b := range st.bookings {
		if b.RiderID == riderID && (beforeID == 0 || b.ID < beforeID) {
			bookings = append(bookings, cloneBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID > bookings[j].ID })
	if limit > 0 && len(bookings) > limit {
		bookings = bookings[:limit]
	}
	return bookings, nil
}

func (s *Store) ListRideBookings(_ context.Context, rideID uint) ([]models.Booking, error) {
	st, done := s.read()
	defer done()
	return rideBookings(st, rideID, nil), nil
}

func rideBookings(st *memState, rideID uint, statuses []models.BookingStatus) []models.Booking {
	bookings := []models.Booking{}
	for _, b := range st.bookings {
		if b.RideID != rideID {
			continue
		}
		if statuses != nil && !hasStatus(statuses, b.Status) {
			continue
		}
		bookings = append(bookings, cloneBooking(b))
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].ID < bookings[j].ID })
	return bookings
}

func hasStatus(list []models.BookingStatus, s models.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Store) LedgerEntries(_ context.Context, rideID uint) ([]models.SeatLedgerEntry, error) {
	st, done := s.read()
	defer done()
	entries := []models.SeatLedgerEntry{}
	for _, e := range st.ledger {
		if e.RideID == rideID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Store) GetVehicle(_ context.Context, driverID uint) (*models.VehicleProfile, error) {
	st, done := s.read()
	defer done()
	return memVehicle(st, driverID)
}

func memVehicle(st *memState, driverID uint) (*models.VehicleProfile, error) {
	v, ok := st.vehicles[driverID]
	if !ok {
		return nil, apperrors.NotFound("vehicle profile")
	}
	return &v, nil
}

func (s *Store) SaveVehicle(_ context.Context, v *models.VehicleProfile) error {
	st, done := s.read()
	defer done()
	now := time.Now()
	if existing, ok := st.vehicles[v.DriverID]; ok {
		v.ID = existing.ID
		v.CreatedAt = existing.CreatedAt
	} else {
		v.ID = st.next("vehicles")
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	st.vehicles[v.DriverID] = *v
	return nil
}

func (s *Store) FindPaymentOrder(_ context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	st, done := s.read()
	defer done()
	for _, o := range st.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return &o, nil
		}
	}
	return nil, apperrors.NotFound("payment order")
}

func (s *Store) GetRefundIntent(_ context.Context, id uint) (*models.RefundIntent, error) {
	st, done := s.read()
	defer done()
	r, ok := st.refunds[id]
	if !ok {
		return nil, apperrors.NotFound("refund intent")
	}
	return &r, nil
}

func (s *Store) ListRefundIntents(_ context.Context, statuses ...models.RefundStatus) ([]models.RefundIntent, error) {
	st, done := s.read()
	defer done()
	intents := []models.RefundIntent{}
	for _, r := range st.refunds {
		if len(statuses) == 0 || hasRefundStatus(statuses, r.Status) {
			intents = append(intents, r)
		}
	}
	sort.Slice(intents, func(i, j int) bool { return intents[i].ID < intents[j].ID })
	return intents, nil
}

func hasRefundStatus(list []models.RefundStatus, s models.RefundStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Store) ClaimRefundIntent(_ context.Context, id uint, attempts int) (bool, error) {
	st, done := s.read()
	defer done()
	r, ok := st.refunds[id]
	if !ok || r.Attempts != attempts || r.Status == models.RefundSucceeded {
		return false, nil
	}
	r.Attempts++
	r.UpdatedAt = time.Now()
	st.refunds[id] = r
	return true, nil
}

func (s *Store) SaveRefundIntent(_ context.Context, r *models.RefundIntent) error {
	st, done := s.read()
	defer done()
	if _, ok := st.refunds[r.ID]; !ok {
		return apperrors.NotFound("refund intent")
	}
	r.UpdatedAt = time.Now()
	st.refunds[r.ID] = *r
	return nil
}

func (s *Store) PushTarget(_ context.Context, userID uint) (string, *models.NotificationPreference, error) {
	st, done := s.read()
	defer done()
	u, ok := st.users[userID]
	if !ok {
		return "", nil, apperrors.NotFound("user")
	}
	if p, ok := st.prefs[userID]; ok {
		return u.FCMToken, &p, nil
	}
	return u.FCMToken, models.DefaultPreferences(userID), nil
}

// PutUser stores a user as-is, assigning an id when missing.
func (s *Store) PutUser(u *models.User) {
	st, done := s.read()
	defer done()
	if u.ID == 0 {
		u.ID = st.next("users")
	}
	st.users[u.ID] = *u
}

func (s *Store) PutPreferences(p *models.NotificationPreference) {
	st, done := s.read()
	defer done()
	st.prefs[p.UserID] = *p
}

type memTx struct {
	st   *memState
	hook func(op string, v interface{}) error
}

func (t *memTx) before(op string, v interface{}) error {
	if t.hook == nil {
		return nil
	}
	return t.hook(op, v)
}

func (t *memTx) LockRide(id uint) (*models.Ride, error) {
	r, ok := t.st.rides[id]
	if !ok {
		return nil, apperrors.NotFound("ride")
	}
	r = r.Clone()
	return &r, nil
}

func (t *memTx) LockBooking(id uint) (*models.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking")
	}
	b = cloneBooking(b)
	return &b, nil
}

func (t *memTx) LockOpenBookings(rideID uint) ([]models.Booking, error) {
	return rideBookings(t.st, rideID, models.OpenBookingStatuses), nil
}

func (t *memTx) GetVehicle(driverID uint) (*models.VehicleProfile, error) {
	return memVehicle(t.st, driverID)
}

func (t *memTx) CreateRide(r *models.Ride) error {
	if err := t.before("CreateRide", r); err != nil {
		return err
	}
	now := time.Now()
	r.ID = t.st.next("rides")
	r.Version = 1
	r.CreatedAt, r.UpdatedAt = now, now
	t.st.rides[r.ID] = r.Clone()
	return nil
}

func (t *memTx) SaveRide(r *models.Ride) error {
	if err := t.before("SaveRide", r); err != nil {
		return err
	}
	cur, ok := t.st.rides[r.ID]
	if !ok {
		return apperrors.NotFound("ride")
	}
	if cur.Version != r.Version {
		return apperrors.ErrConcurrentUpdate.WithDetail("resource", "ride")
	}
	if r.AvailableSeats < 0 || r.AvailableSeats > cur.Capacity {
		return apperrors.Internal("seat constraint violated", nil).
			WithDetail("availableSeats", r.AvailableSeats)
	}
	r.Version++
	r.UpdatedAt = time.Now()
	r.Capacity = cur.Capacity
	t.st.rides[r.ID] = r.Clone()
	return nil
}

func (t *memTx) CreateBooking(b *models.Booking) error {
	if err := t.before("CreateBooking", b); err != nil {
		return err
	}
	now := time.Now()
	b.ID = t.st.next("bookings")
	b.Version = 1
	b.CreatedAt, b.UpdatedAt = now, now
	t.st.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (t *memTx) SaveBooking(b *models.Booking) error {
	if err := t.before("SaveBooking", b); err != nil {
		return err
	}
	cur, ok := t.st.bookings[b.ID]
	if !ok {
		return apperrors.NotFound("booking")
	}
	if cur.Version != b.Version {
		return apperrors.ErrConcurrentUpdate.WithDetail("resource", "booking")
	}
	b.Version++
	b.UpdatedAt = time.Now()
	// fare and seat count are fixed at creation
	b.FareAmount = cur.FareAmount
	b.NumberOfSeats = cur.NumberOfSeats
	t.st.bookings[b.ID] = cloneBooking(*b)
	return nil
}

func (t *memTx) AppendLedgerEntry(e *models.SeatLedgerEntry) error {
	if err := t.before("AppendLedgerEntry", e); err != nil {
		return err
	}
	for _, existing := range t.st.ledger {
		if existing.BookingID == e.BookingID && existing.Kind == e.Kind {
			return apperrors.ErrConcurrentUpdate.WithDetail("resource", "ledger entry")
		}
	}
	e.ID = t.st.next("ledger")
	e.CreatedAt = time.Now()
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *memTx) PaymentOrders(bookingID uint) ([]models.PaymentOrder, error) {
	orders := []models.PaymentOrder{}
	for _, o := range t.st.orders {
		if o.BookingID == bookingID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (t *memTx) CreatePaymentOrder(o *models.PaymentOrder) error {
	if err := t.before("CreatePaymentOrder", o); err != nil {
		return err
	}
	for _, existing := range t.st.orders {
		if existing.GatewayOrderID == o.GatewayOrderID {
			return apperrors.ErrConcurrentUpdate.WithDetail("resource", "payment order")
		}
	}
	now := time.Now()
	o.ID = t.st.next("orders")
	o.CreatedAt, o.UpdatedAt = now, now
	t.st.orders[o.ID] = *o
	return nil
}

func (t *memTx) SavePaymentOrder(o *models.PaymentOrder) error {
	if err := t.before("SavePaymentOrder", o); err != nil {
		return err
	}
	if _, ok := t.st.orders[o.ID]; !ok {
		return apperrors.NotFound("payment order")
	}
	o.UpdatedAt = time.Now()
	t.st.orders[o.ID] = *o
	return nil
}

func (t *memTx) CreateRefundIntent(r *models.RefundIntent) error {
	if err := t.before("CreateRefundIntent", r); err != nil {
		return err
	}
	for _, existing := range t.st.refunds {
		if existing.PaymentID == r.PaymentID {
			return apperrors.ErrConcurrentUpdate.WithDetail("resource", "refund intent")
		}
	}
	now := time.Now()
	r.ID = t.st.next("refunds")
	r.CreatedAt, r.UpdatedAt = now, now
	t.st.refunds[r.ID] = *r
	return nil
}
