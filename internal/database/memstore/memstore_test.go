package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
)

func seedRide(t *testing.T, s *Store, capacity int) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		DriverID:        1,
		SourceCity:      "Pune",
		DestinationCity: "Mumbai",
		PickupPoints:    []string{"Hinjewadi"},
		DropPoints:      []string{"Dadar"},
		Date:            time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC),
		DepartureTime:   "08:00",
		Capacity:        capacity,
		AvailableSeats:  capacity,
		PricePerSeat:    300,
		Status:          models.RideStatusActive,
	}
	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		return tx.CreateRide(ride)
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestRollsBackFailedTransaction(t *testing.T) {
	s := New()
	ride := seedRide(t, s, 4)

	boom := errors.New("boom")
	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		r, err := tx.LockRide(ride.ID)
		if err != nil {
			return err
		}
		r.AvailableSeats = 1
		if err := tx.SaveRide(r); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := s.GetRide(context.Background(), ride.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AvailableSeats != 4 || got.Version != 1 {
		t.Fatalf("rolled back state leaked: seats=%d version=%d", got.AvailableSeats, got.Version)
	}
}

func TestSaveRideRejectsStaleVersion(t *testing.T) {
	s := New()
	ride := seedRide(t, s, 2)

	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		stale := ride.Clone()
		fresh, _ := tx.LockRide(ride.ID)
		fresh.AvailableSeats = 1
		if err := tx.SaveRide(fresh); err != nil {
			return err
		}
		stale.AvailableSeats = 0
		return tx.SaveRide(&stale)
	})
	if !errors.Is(err, apperrors.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
}

func TestSaveRideEnforcesSeatBounds(t *testing.T) {
	s := New()
	ride := seedRide(t, s, 2)

	for _, seats := range []int{-1, 3} {
		err := s.Transaction(context.Background(), func(tx store.Tx) error {
			r, _ := tx.LockRide(ride.ID)
			r.AvailableSeats = seats
			return tx.SaveRide(r)
		})
		if err == nil {
			t.Errorf("availableSeats=%d was accepted", seats)
		}
	}
}

func TestLedgerAllowsOneEntryPerKind(t *testing.T) {
	s := New()
	ride := seedRide(t, s, 2)

	entry := func(kind models.SeatLedgerKind) error {
		return s.Transaction(context.Background(), func(tx store.Tx) error {
			return tx.AppendLedgerEntry(&models.SeatLedgerEntry{RideID: ride.ID, BookingID: 9, Kind: kind, Seats: 2})
		})
	}
	if err := entry(models.SeatLedgerReserve); err != nil {
		t.Fatal(err)
	}
	if err := entry(models.SeatLedgerRelease); err != nil {
		t.Fatal(err)
	}
	if err := entry(models.SeatLedgerReserve); !errors.Is(err, apperrors.ErrConcurrentUpdate) {
		t.Fatalf("second reserve: expected ErrConcurrentUpdate, got %v", err)
	}

	entries, _ := s.LedgerEntries(context.Background(), ride.ID)
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
}

func TestBeforeWriteHook(t *testing.T) {
	s := New()
	injected := errors.New("injected")
	s.BeforeWrite = func(op string, v interface{}) error {
		if op == "CreateRide" {
			return injected
		}
		return nil
	}
	err := s.Transaction(context.Background(), func(tx store.Tx) error {
		return tx.CreateRide(&models.Ride{Capacity: 1, AvailableSeats: 1})
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	rides, _ := s.ListDriverRides(context.Background(), 0)
	if len(rides) != 0 {
		t.Fatalf("ride persisted despite failed write")
	}
}

func TestSearchAndPaging(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		seedRide(t, s, 2)
	}
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	page, _ := s.SearchRides(context.Background(), models.RideQuery{SourceCity: "pune", FromDate: from, Limit: 2})
	if len(page) != 2 || page[0].ID != 1 || page[1].ID != 2 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	rest, _ := s.SearchRides(context.Background(), models.RideQuery{SourceCity: "pune", FromDate: from, AfterID: 2, Limit: 2})
	if len(rest) != 1 || rest[0].ID != 3 {
		t.Fatalf("unexpected second page: %+v", rest)
	}
	none, _ := s.SearchRides(context.Background(), models.RideQuery{SourceCity: "Delhi", FromDate: from, Limit: 2})
	if len(none) != 0 {
		t.Fatalf("expected no Delhi rides, got %d", len(none))
	}
}

func TestClaimRefundIntent(t *testing.T) {
	s := New()
	intent := &models.RefundIntent{BookingID: 1, PaymentID: "pay_1", AmountMinor: 100, Status: models.RefundPending}
	if err := s.Transaction(context.Background(), func(tx store.Tx) error {
		return tx.CreateRefundIntent(intent)
	}); err != nil {
		t.Fatal(err)
	}

	ok, _ := s.ClaimRefundIntent(context.Background(), intent.ID, 0)
	if !ok {
		t.Fatal("first claim should win")
	}
	ok, _ = s.ClaimRefundIntent(context.Background(), intent.ID, 0)
	if ok {
		t.Fatal("stale claim should lose")
	}
}
