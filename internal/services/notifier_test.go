package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/chachabrian/poolit-backend/internal/database/memstore"
	"github.com/chachabrian/poolit-backend/internal/logger"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/gorilla/websocket"
)

func TestMultiNotifierFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := MultiNotifier{a, nil, b}
	m.Notify(context.Background(), Event{Type: EventBookingAccepted, UserID: 3})
	if a.count(EventBookingAccepted) != 1 || b.count(EventBookingAccepted) != 1 {
		t.Fatal("event not delivered to every notifier")
	}
}

func TestAsyncNotifierSurvivesPanics(t *testing.T) {
	rec := &recorder{}
	calls := 0
	var mu sync.Mutex
	next := NotifierFunc(func(ctx context.Context, e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
		if e.UserID == 0 {
			panic("no recipient")
		}
		rec.Notify(ctx, e)
	})
	async := NewAsyncNotifier(next, logger.Discard())

	dispatch(context.Background(), async, []Event{
		{Type: EventBookingDeclined, UserID: 0},
		{Type: EventBookingDeclined, UserID: 4},
	})
	async.Wait()

	if calls != 2 || rec.count(EventBookingDeclined) != 1 {
		t.Fatalf("calls = %d delivered = %d", calls, rec.count(EventBookingDeclined))
	}
	if rec.events[0].SentAt.IsZero() {
		t.Fatal("dispatch did not stamp SentAt")
	}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*messaging.Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, m)
	return "projects/poolit/messages/1", nil
}

func TestPushNotifierHonoursPreferences(t *testing.T) {
	st := memstore.New()
	for id, token := range map[uint]string{1: "tok-1", 2: "tok-2", 3: ""} {
		u := &models.User{Username: "user", FCMToken: token}
		u.ID = id
		st.PutUser(u)
	}
	st.PutPreferences(&models.NotificationPreference{UserID: 2, PushEnabled: true, BookingAlerts: false, RideStatusAlerts: true})

	sender := &fakeSender{}
	push := NewPushNotifier(st, sender, logger.Discard())
	ctx := context.Background()

	push.Notify(ctx, Event{Type: EventBookingAccepted, UserID: 1, RideID: 7, BookingID: 9, Title: "Booking accepted", Data: map[string]interface{}{"seats": 2}})
	push.Notify(ctx, Event{Type: EventBookingAccepted, UserID: 2})
	push.Notify(ctx, Event{Type: EventRideCancelled, UserID: 2, RideID: 7})
	push.Notify(ctx, Event{Type: EventBookingAccepted, UserID: 3})
	push.Notify(ctx, Event{Type: EventBookingAccepted, UserID: 99})

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.sent))
	}
	first := sender.sent[0]
	if first.Token != "tok-1" || first.Data["bookingId"] != "9" || first.Data["seats"] != "2" || first.Notification.Title != "Booking accepted" {
		t.Fatalf("unexpected message %+v", first)
	}
	if sender.sent[1].Token != "tok-2" || sender.sent[1].Data["type"] != string(EventRideCancelled) {
		t.Fatalf("unexpected message %+v", sender.sent[1])
	}

	// send failures are swallowed
	sender.err = errors.New("unavailable")
	push.Notify(ctx, Event{Type: EventBookingAccepted, UserID: 1})
}

func TestHubDeliversToAddressedUser(t *testing.T) {
	hub := NewHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r, 42, "rider")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectedClients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Notify(ctx, Event{Type: EventBookingAccepted, UserID: 7})
	hub.Notify(ctx, Event{Type: EventBookingConfirmed, UserID: 42, BookingID: 5})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != string(EventBookingConfirmed) || msg.Data.BookingID != 5 {
		t.Fatalf("received %s", data)
	}
}
