package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/chachabrian/poolit-backend/internal/database/memstore"
	"github.com/chachabrian/poolit-backend/internal/logger"
	"github.com/chachabrian/poolit-backend/internal/payment"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "handler-secret"

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	store   *memstore.Store
	refunds *services.RefundDispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	st := memstore.New()
	sandbox := payment.NewSandboxGateway("rzp_test_key", "sandbox-secret")
	clock := services.Clock{Location: time.UTC}
	quiet := services.NotifierFunc(func(context.Context, services.Event) {})
	refunds := services.NewRefundDispatcher(st, sandbox, quiet, log)

	uploads := t.TempDir()
	archive, err := services.NewLocalArchive(uploads, "http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}

	router := NewRouter(Deps{
		Store:     st,
		Accounts:  st,
		Rides:     services.NewRideService(st, services.NewCoordinator("INR"), refunds, quiet, clock, log),
		Bookings:  services.NewBookingService(st, nil, refunds, quiet, "INR", clock, log),
		Payments:  services.NewPaymentService(st, sandbox, refunds, quiet, "INR", clock, log),
		Receipts:  services.NewReceiptService(st, archive, "INR", clock, log),
		Sandbox:   sandbox,
		JWTSecret: testJWTSecret,
		UploadDir: uploads,
		Log:       log,
	})
	return &testServer{t: t, router: router, store: st, refunds: refunds}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// expect asserts the status and decodes the body into out when given.
func (s *testServer) expect(w *httptest.ResponseRecorder, status int, out interface{}) {
	s.t.Helper()
	if w.Code != status {
		s.t.Fatalf("status = %d, want %d: %s", w.Code, status, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			s.t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
}

func (s *testServer) register(username, userType string) string {
	s.t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	s.expect(s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
		"userType": userType,
	}), http.StatusCreated, &resp)
	return resp.Token
}

type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details"`
}

type idBody struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func rideDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func (s *testServer) publish(driver string, capacity int) uint {
	s.t.Helper()
	s.expect(s.do(http.MethodPut, "/api/users/vehicle", driver, gin.H{
		"make": "Toyota", "model": "Innova", "plate": "MH12AB1234", "seats": 6,
	}), http.StatusOK, nil)

	var ride idBody
	s.expect(s.do(http.MethodPost, "/api/rides", driver, gin.H{
		"sourceCity":      "Pune",
		"destinationCity": "Mumbai",
		"pickupPoints":    []string{"Hinjewadi", "Wakad"},
		"dropPoints":      []string{"Dadar"},
		"date":            rideDate(3),
		"departureTime":   "07:00",
		"capacity":        capacity,
		"pricePerSeat":    450,
	}), http.StatusCreated, &ride)
	return ride.ID
}

func TestBookingToReceiptOverHTTP(t *testing.T) {
	s := newTestServer(t)
	driver := s.register("dev", "driver")
	rider := s.register("ria", "rider")
	rideID := s.publish(driver, 3)

	var booking idBody
	s.expect(s.do(http.MethodPost, "/api/bookings", rider, gin.H{
		"rideId": rideID, "numberOfSeats": 2, "pickup": "wakad", "drop": "Dadar",
	}), http.StatusCreated, &booking)
	if booking.Status != "PENDING" {
		t.Fatalf("booking status = %s", booking.Status)
	}
	base := "/api/bookings/" + itoa(booking.ID)

	s.expect(s.do(http.MethodPost, base+"/accept", rider, nil), http.StatusForbidden, nil)
	s.expect(s.do(http.MethodPost, base+"/accept", driver, nil), http.StatusOK, nil)

	var order services.OrderDescriptor
	s.expect(s.do(http.MethodPost, base+"/payment-order", rider, nil), http.StatusCreated, &order)
	if order.AmountMinorUnits != 90000 || order.Currency != "INR" || order.ProviderKey != "rzp_test_key" {
		t.Fatalf("order = %+v", order)
	}

	var callback VerifyPaymentRequest
	s.expect(s.do(http.MethodPost, "/api/payments/sandbox/"+order.GatewayOrderID+"/pay", rider, nil), http.StatusOK, &callback)

	var confirmed idBody
	s.expect(s.do(http.MethodPost, base+"/payment/verify", rider, callback), http.StatusOK, &confirmed)
	if confirmed.Status != "CONFIRMED" {
		t.Fatalf("after verify status = %s", confirmed.Status)
	}
	// replayed callbacks are harmless
	s.expect(s.do(http.MethodPost, base+"/payment/verify", rider, callback), http.StatusOK, &confirmed)

	w := s.do(http.MethodGet, base+"/receipt", rider, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("receipt status = %d type = %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("receipt body is not a PDF")
	}

	// the archived copy cannot be found by walking booking ids
	s.expect(s.do(http.MethodGet, "/uploads/receipts/receipt-"+itoa(booking.ID)+".pdf", "", nil), http.StatusNotFound, nil)
	archived := strings.TrimPrefix(w.Header().Get("X-Receipt-URL"), "http://localhost:8080")
	if !strings.HasPrefix(archived, "/uploads/receipts/") || strings.Contains(archived, "receipt-") {
		t.Fatalf("archived receipt url = %q", w.Header().Get("X-Receipt-URL"))
	}
	s.expect(s.do(http.MethodGet, archived, "", nil), http.StatusOK, nil)

	var page struct {
		Items []idBody `json:"items"`
	}
	s.expect(s.do(http.MethodGet, "/api/bookings", rider, nil), http.StatusOK, &page)
	if len(page.Items) != 1 || page.Items[0].ID != booking.ID {
		t.Fatalf("rider bookings = %+v", page.Items)
	}

	var ledger services.SeatLedgerSummary
	s.expect(s.do(http.MethodGet, "/api/rides/"+itoa(rideID)+"/ledger", driver, nil), http.StatusOK, &ledger)
	if ledger.AvailableSeats != 1 || !ledger.Consistent {
		t.Fatalf("ledger = %+v", ledger)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	driver := s.register("dan", "driver")
	rider := s.register("rae", "rider")
	rideID := s.publish(driver, 2)

	var e errorBody
	s.expect(s.do(http.MethodPost, "/api/bookings", rider, gin.H{
		"rideId": rideID, "numberOfSeats": 3, "pickup": "Hinjewadi", "drop": "Dadar",
	}), http.StatusConflict, &e)
	if e.Code != "InsufficientSeats" || e.Details["availableSeats"] != float64(2) {
		t.Fatalf("insufficient seats body = %+v", e)
	}

	s.expect(s.do(http.MethodPost, "/api/bookings", rider, gin.H{
		"rideId": rideID, "numberOfSeats": 1, "pickup": "Airport", "drop": "Dadar",
	}), http.StatusBadRequest, &e)
	if e.Code != "InvalidLocation" {
		t.Fatalf("invalid location code = %s", e.Code)
	}

	s.expect(s.do(http.MethodPost, "/api/rides", rider, gin.H{}), http.StatusForbidden, nil)
	s.expect(s.do(http.MethodGet, "/api/rides/abc", rider, nil), http.StatusBadRequest, nil)
	s.expect(s.do(http.MethodGet, "/api/rides/999", rider, nil), http.StatusNotFound, nil)
	s.expect(s.do(http.MethodGet, "/api/rides?source=Pune&destination=Mumbai&pageToken=bogus", rider, nil), http.StatusBadRequest, nil)
	s.expect(s.do(http.MethodGet, "/api/bookings", "", nil), http.StatusUnauthorized, nil)

	var booking idBody
	s.expect(s.do(http.MethodPost, "/api/bookings", rider, gin.H{
		"rideId": rideID, "numberOfSeats": 1, "pickup": "Hinjewadi", "drop": "Dadar",
	}), http.StatusCreated, &booking)
	base := "/api/bookings/" + itoa(booking.ID)
	e = errorBody{}
	s.expect(s.do(http.MethodPost, base+"/payment-order", rider, nil), http.StatusConflict, &e)
	if e.Code != "NotAccepted" {
		t.Fatalf("code = %s", e.Code)
	}

	s.expect(s.do(http.MethodPost, base+"/accept", driver, nil), http.StatusOK, nil)
	var order services.OrderDescriptor
	s.expect(s.do(http.MethodPost, base+"/payment-order", rider, nil), http.StatusCreated, &order)

	// tampered signatures get a generic 402
	var trust errorBody
	s.expect(s.do(http.MethodPost, base+"/payment/verify", rider, VerifyPaymentRequest{
		GatewayOrderID: order.GatewayOrderID, GatewayPaymentID: "pay_forged", Signature: "00",
	}), http.StatusPaymentRequired, &trust)
	if trust.Code != "SignatureInvalid" || trust.Error != "payment verification failed" || trust.Details != nil {
		t.Fatalf("trust error body = %+v", trust)
	}

	// malformed bodies are rejected before reaching the services
	for _, tc := range []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPost, "/api/bookings", gin.H{"rideId": rideID, "numberOfSeats": 0, "pickup": "Hinjewadi", "drop": "Dadar"}},
		{http.MethodPost, "/api/bookings", gin.H{"rideId": rideID, "numberOfSeats": 1, "drop": "Dadar"}},
		{http.MethodPatch, base + "/locations", gin.H{}},
		{http.MethodPost, base + "/payment/verify", gin.H{"gatewayOrderId": order.GatewayOrderID}},
	} {
		var v errorBody
		s.expect(s.do(tc.method, tc.path, rider, tc.body), http.StatusBadRequest, &v)
		if v.Code != "Validation" {
			t.Fatalf("%s %s code = %s", tc.method, tc.path, v.Code)
		}
	}
}

func TestAuthAndAccountRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.register("nila", "rider")

	s.expect(s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "nila2", "email": "NILA@example.com", "password": "secret123", "userType": "rider",
	}), http.StatusConflict, nil)
	s.expect(s.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "x", "email": "x@example.com", "password": "secret123", "userType": "admin",
	}), http.StatusBadRequest, nil)

	s.expect(s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nila@example.com", "password": "wrong"}), http.StatusUnauthorized, nil)
	s.expect(s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com", "password": "secret123"}), http.StatusUnauthorized, nil)
	var login struct {
		Token string `json:"token"`
	}
	s.expect(s.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "nila@example.com", "password": "secret123"}), http.StatusOK, &login)
	if login.Token == "" {
		t.Fatal("no token issued")
	}

	var profile struct {
		Username    string `json:"username"`
		PhoneNumber string `json:"phoneNumber"`
	}
	s.expect(s.do(http.MethodPut, "/api/users/profile", token, gin.H{"phoneNumber": "+91 90000 11111"}), http.StatusOK, &profile)
	if profile.Username != "nila" || profile.PhoneNumber != "+91 90000 11111" {
		t.Fatalf("profile = %+v", profile)
	}

	s.expect(s.do(http.MethodPut, "/api/users/vehicle", token, gin.H{
		"make": "Honda", "model": "City", "plate": "TN01", "seats": 4,
	}), http.StatusForbidden, nil)
	s.expect(s.do(http.MethodGet, "/api/users/vehicle", token, nil), http.StatusNotFound, nil)

	var prefs struct {
		PushEnabled      bool `json:"pushEnabled"`
		BookingAlerts    bool `json:"bookingAlerts"`
		RideStatusAlerts bool `json:"rideStatusAlerts"`
	}
	s.expect(s.do(http.MethodPut, "/api/notifications/preferences", token, gin.H{"bookingAlerts": false}), http.StatusOK, &prefs)
	if !prefs.PushEnabled || prefs.BookingAlerts || !prefs.RideStatusAlerts {
		t.Fatalf("prefs = %+v", prefs)
	}
	s.expect(s.do(http.MethodGet, "/api/notifications/preferences", token, nil), http.StatusOK, &prefs)
	if prefs.BookingAlerts {
		t.Fatal("preference update not persisted")
	}

	s.expect(s.do(http.MethodPost, "/api/notifications/register-token", token, gin.H{"fcmToken": "device-1"}), http.StatusOK, nil)
	user, err := s.store.UserByEmail(context.Background(), "nila@example.com")
	if err != nil || user.FCMToken != "device-1" {
		t.Fatalf("token not stored: %+v %v", user, err)
	}
}

func TestCancelRideOverHTTP(t *testing.T) {
	s := newTestServer(t)
	driver := s.register("dina", "driver")
	rider := s.register("ravi", "rider")
	rideID := s.publish(driver, 4)

	var booking idBody
	s.expect(s.do(http.MethodPost, "/api/bookings", rider, gin.H{
		"rideId": rideID, "numberOfSeats": 2, "pickup": "Hinjewadi", "drop": "Dadar",
	}), http.StatusCreated, &booking)
	s.expect(s.do(http.MethodPost, "/api/bookings/"+itoa(booking.ID)+"/accept", driver, nil), http.StatusOK, nil)

	s.expect(s.do(http.MethodPost, "/api/rides/"+itoa(rideID)+"/reschedule", driver, gin.H{
		"date": rideDate(4), "departureTime": "08:30", "reason": "traffic",
	}), http.StatusOK, nil)

	var res services.RideCancellation
	s.expect(s.do(http.MethodPost, "/api/rides/"+itoa(rideID)+"/cancel", driver, nil), http.StatusOK, &res)
	if res.SeatsReleased != 2 || res.Ride.AvailableSeats != 4 || len(res.Bookings) != 1 {
		t.Fatalf("cancellation = %+v", res)
	}

	var e errorBody
	s.expect(s.do(http.MethodPost, "/api/rides/"+itoa(rideID)+"/cancel", driver, nil), http.StatusConflict, &e)
	if e.Code != "AlreadyCancelled" {
		t.Fatalf("code = %s", e.Code)
	}
	s.refunds.Drain(context.Background())
}
