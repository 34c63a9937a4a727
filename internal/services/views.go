package services

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/pkg/utils"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Clock supplies "today" in the business time zone.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Today is midnight UTC of the current calendar date in Location.
func (c Clock) Today() time.Time {
	return utils.CalendarDate(c.now(), c.Location)
}

// departed reports whether the ride's date is strictly before today.
func departed(ride *models.Ride, today time.Time) bool {
	return utils.NormalizeDate(ride.Date).Before(today)
}

// EffectiveStatus is the status a booking is presented with. A CONFIRMED
// booking whose ride date has passed reads as COMPLETED; nothing is written.
func EffectiveStatus(b *models.Booking, ride *models.Ride, today time.Time) models.BookingStatus {
	if b.Status == models.BookingStatusConfirmed && departed(ride, today) {
		return models.BookingStatusCompleted
	}
	return b.Status
}

// BookingView is how every read path returns a booking.
type BookingView struct {
	models.Booking
	// Status shadows the stored status with the effective one.
	Status           models.BookingStatus `json:"status"`
	StoredStatus     models.BookingStatus `json:"storedStatus"`
	RideDate         time.Time            `json:"rideDate"`
	DepartureTime    string               `json:"departureTime"`
	Lapsed           bool                 `json:"lapsed"`
	CanRate          bool                 `json:"canRate"`
	ReceiptAvailable bool                 `json:"receiptAvailable"`
}

// NewBookingView derives every presentation flag from EffectiveStatus.
func NewBookingView(b *models.Booking, ride *models.Ride, today time.Time) BookingView {
	eff := EffectiveStatus(b, ride, today)
	past := departed(ride, today)
	return BookingView{
		Booking:          *b,
		Status:           eff,
		StoredStatus:     b.Status,
		RideDate:         utils.NormalizeDate(ride.Date),
		DepartureTime:    ride.DepartureTime,
		Lapsed:           past && (eff == models.BookingStatusPending || eff == models.BookingStatusAccepted),
		CanRate:          eff == models.BookingStatusCompleted,
		ReceiptAvailable: eff == models.BookingStatusConfirmed || eff == models.BookingStatusCompleted,
	}
}

// Page is one slice of a paged listing. An empty NextPageToken means the
// listing is complete.
type Page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

const pageTokenPrefix = "c1:"

func encodePageToken(lastID uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pageTokenPrefix + strconv.FormatUint(uint64(lastID), 10)))
}

func decodePageToken(token string) (uint, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || !strings.HasPrefix(string(raw), pageTokenPrefix) {
		return 0, apperrors.Validation("pageToken", "invalid page token")
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(string(raw), pageTokenPrefix), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("pageToken", "invalid page token")
	}
	return uint(id), nil
}

func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}
