package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventBookingRequested EventType = "booking_requested"
	EventBookingAccepted  EventType = "booking_accepted"
	EventBookingDeclined  EventType = "booking_declined"
	EventBookingCancelled EventType = "booking_cancelled"
	EventBookingConfirmed EventType = "booking_confirmed"
	EventRideRescheduled  EventType = "ride_rescheduled"
	EventRideCancelled    EventType = "ride_cancelled"
	EventRefundProcessed  EventType = "refund_processed"
)

// Event is a booking lifecycle notification addressed to one user.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    uint                   `json:"userId"`
	RideID    uint                   `json:"rideId,omitempty"`
	BookingID uint                   `json:"bookingId,omitempty"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	SentAt    time.Time              `json:"sentAt"`
}

// IsRideStatus reports whether the event concerns the ride rather than one
// booking. Used to pick the matching notification preference.
func (e Event) IsRideStatus() bool {
	return e.Type == EventRideRescheduled || e.Type == EventRideCancelled
}

// Notifier delivers events. Delivery is best effort: the booking engine never
// waits on it for correctness.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type NotifierFunc func(ctx context.Context, event Event)

func (f NotifierFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// MultiNotifier fans an event out to every channel.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

// AsyncNotifier hands events to a background goroutine so callers return
// immediately.
type AsyncNotifier struct {
	next    Notifier
	log     *logrus.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncNotifier(next Notifier, log *logrus.Logger) *AsyncNotifier {
	return &AsyncNotifier{next: next, log: log, timeout: 10 * time.Second}
}

func (a *AsyncNotifier) Notify(_ context.Context, event Event) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.WithFields(logrus.Fields{"event": event.Type, "user_id": event.UserID}).
					Errorf("notifier panic: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.next.Notify(ctx, event)
	}()
}

// Wait blocks until every queued event was handed to the next notifier.
func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}

func dispatch(ctx context.Context, n Notifier, events []Event) {
	if n == nil {
		return
	}
	now := time.Now()
	for _, e := range events {
		if e.SentAt.IsZero() {
			e.SentAt = now
		}
		n.Notify(ctx, e)
	}
}
