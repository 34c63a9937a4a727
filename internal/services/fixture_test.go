package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/database/memstore"
	"github.com/chachabrian/poolit-backend/internal/logger"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/payment"
)

const (
	driverID uint = 1
	riderA   uint = 10
	riderB   uint = 11
	riderC   uint = 12

	testSecret = "test-secret"
)

var (
	testToday = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	rideDay   = time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) to(userID uint) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// flakyGateway fails the first failRefunds refund calls.
type flakyGateway struct {
	*payment.SandboxGateway
	failRefunds int32
}

func (g *flakyGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, receipt string) (*payment.Refund, error) {
	if atomic.AddInt32(&g.failRefunds, -1) >= 0 {
		return nil, &payment.APIError{StatusCode: 502, Code: "SERVER_ERROR", Description: "upstream unavailable"}
	}
	return g.SandboxGateway.Refund(ctx, paymentID, amountMinor, receipt)
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	sandbox  *payment.SandboxGateway
	clock    *testClock
	events   *recorder
	refunds  *RefundDispatcher
	rides    *RideService
	bookings *BookingService
	payments *PaymentService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	fare    FareFunc
	gateway func(*payment.SandboxGateway) payment.Gateway
}

func withFare(fare FareFunc) fixtureOption {
	return func(c *fixtureConfig) { c.fare = fare }
}

func withGateway(wrap func(*payment.SandboxGateway) payment.Gateway) fixtureOption {
	return func(c *fixtureConfig) { c.gateway = wrap }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	log := logger.Discard()
	st := memstore.New()
	sandbox := payment.NewSandboxGateway("rzp_test_key", testSecret)
	var gw payment.Gateway = sandbox
	if cfg.gateway != nil {
		gw = cfg.gateway(sandbox)
	}

	tc := &testClock{now: testToday}
	clock := Clock{Now: tc.Now, Location: time.UTC}
	events := &recorder{}
	refunds := NewRefundDispatcher(st, gw, events, log)

	f := &fixture{
		ctx:      context.Background(),
		store:    st,
		sandbox:  sandbox,
		clock:    tc,
		events:   events,
		refunds:  refunds,
		rides:    NewRideService(st, NewCoordinator("INR"), refunds, events, clock, log),
		bookings: NewBookingService(st, cfg.fare, refunds, events, "INR", clock, log),
		payments: NewPaymentService(st, gw, refunds, events, "INR", clock, log),
	}

	if err := st.SaveVehicle(f.ctx, &models.VehicleProfile{DriverID: driverID, Make: "Maruti", Model: "Ertiga", Plate: "KA01AB1234", Seats: 6}); err != nil {
		t.Fatalf("SaveVehicle: %v", err)
	}
	return f
}

func (f *fixture) publish(t *testing.T, capacity int, price float64) *models.Ride {
	t.Helper()
	ride, err := f.rides.Publish(f.ctx, driverID, PublishRideInput{
		SourceCity:      "Bengaluru",
		DestinationCity: "Mysuru",
		PickupPoints:    []string{"Majestic", "Silk Board"},
		DropPoints:      []string{"Mysuru Palace", "Infosys Campus"},
		Date:            rideDay,
		DepartureTime:   "07:30",
		Capacity:        capacity,
		PricePerSeat:    price,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return ride
}

func (f *fixture) book(t *testing.T, rideID, riderID uint, seats int) *BookingView {
	t.Helper()
	b, err := f.bookings.Create(f.ctx, riderID, CreateBookingInput{
		RideID: rideID,
		Seats:  seats,
		Pickup: "Majestic",
		Drop:   "Mysuru Palace",
	})
	if err != nil {
		t.Fatalf("Create booking: %v", err)
	}
	return b
}

func (f *fixture) accept(t *testing.T, bookingID uint) *BookingView {
	t.Helper()
	b, err := f.bookings.Accept(f.ctx, driverID, bookingID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return b
}

// pay runs a full sandbox checkout for the booking.
func (f *fixture) pay(t *testing.T, riderID, bookingID uint) (*BookingView, VerifyInput) {
	t.Helper()
	order, err := f.payments.CreateOrder(f.ctx, riderID, bookingID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	paymentID, sig, err := f.sandbox.Pay(order.GatewayOrderID)
	if err != nil {
		t.Fatalf("sandbox Pay: %v", err)
	}
	in := VerifyInput{GatewayOrderID: order.GatewayOrderID, GatewayPaymentID: paymentID, Signature: sig}
	b, err := f.payments.Verify(f.ctx, riderID, bookingID, in)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return b, in
}

func (f *fixture) ride(t *testing.T, id uint) *models.Ride {
	t.Helper()
	r, err := f.store.GetRide(f.ctx, id)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	return r
}

func (f *fixture) booking(t *testing.T, id uint) *models.Booking {
	t.Helper()
	b, err := f.store.GetBooking(f.ctx, id)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	return b
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()
	if err := f.refunds.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func assertCode(t *testing.T, err error, want *apperrors.Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Code)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}

// assertSeatBalance checks available seats against the bookings that hold
// seats and the ledger.
func (f *fixture) assertSeatBalance(t *testing.T, rideID uint) {
	t.Helper()
	ride := f.ride(t, rideID)
	bookings, err := f.store.ListRideBookings(f.ctx, rideID)
	if err != nil {
		t.Fatalf("ListRideBookings: %v", err)
	}
	held := 0
	for _, b := range bookings {
		if b.HoldsSeats() {
			held += b.NumberOfSeats
		}
	}
	if ride.AvailableSeats < 0 || ride.AvailableSeats > ride.Capacity {
		t.Fatalf("availableSeats %d outside [0,%d]", ride.AvailableSeats, ride.Capacity)
	}
	if ride.IsActive() && ride.Capacity-ride.AvailableSeats != held {
		t.Fatalf("capacity %d - available %d != held %d", ride.Capacity, ride.AvailableSeats, held)
	}
	entries, err := f.store.LedgerEntries(f.ctx, rideID)
	if err != nil {
		t.Fatalf("LedgerEntries: %v", err)
	}
	if sum := SummarizeLedger(ride, entries, bookings); !sum.Consistent {
		t.Fatalf("ledger inconsistent: %+v", sum)
	}
}
