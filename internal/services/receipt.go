package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/google/uuid"
	"github.com/phpdave11/gofpdf"
	"github.com/sirupsen/logrus"
)

// Receipt is a rendered booking receipt.
type Receipt struct {
	Number   string
	Filename string
	Data     []byte
	// Key is the archive key of this render. It is random and never derived
	// from the booking.
	Key string
	URL string
}

// ReceiptService renders PDF receipts for paid bookings and keeps a copy in
// the archive.
type ReceiptService struct {
	store    store.Store
	archive  Archive
	currency string
	clock    Clock
	log      *logrus.Logger
}

func NewReceiptService(s store.Store, archive Archive, currency string, clock Clock, log *logrus.Logger) *ReceiptService {
	return &ReceiptService{store: s, archive: archive, currency: currency, clock: clock, log: log}
}

// Generate renders the receipt of a CONFIRMED or COMPLETED booking for its
// rider or the ride's driver. Archiving is best effort.
func (s *ReceiptService) Generate(ctx context.Context, userID, bookingID uint) (*Receipt, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	ride, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	if b.RiderID != userID && ride.DriverID != userID {
		return nil, apperrors.Forbidden("only the rider or the driver can view this receipt")
	}

	view := NewBookingView(b, ride, s.clock.Today())
	if !view.ReceiptAvailable {
		return nil, apperrors.Transition(string(view.Status), "receipt")
	}

	number := fmt.Sprintf("PL-%06d", b.ID)
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+number, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "POOLIT RIDE RECEIPT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		"Receipt No : " + number,
		"Issued     : " + time.Now().In(s.location()).Format("2006-01-02 15:04"),
		"Status     : " + string(view.Status),
		"",
		fmt.Sprintf("Route      : %s -> %s", ride.SourceCity, ride.DestinationCity),
		fmt.Sprintf("Date       : %s %s", view.RideDate.Format(utils.DateLayout), view.DepartureTime),
		"Pickup     : " + b.Pickup,
		"Drop       : " + b.Drop,
		fmt.Sprintf("Seats      : %d", b.NumberOfSeats),
		"Payment ID : " + orDash(b.PaymentID),
	}
	for _, l := range lines {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, fmt.Sprintf("Total paid: %s %.2f", s.currency, b.FareAmount))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, fmt.Sprintf("Fare for %d seat(s) at %.2f per seat.", b.NumberOfSeats, ride.PricePerSeat), "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperrors.Internal("render receipt", err)
	}

	receipt := &Receipt{
		Number:   number,
		Filename: fmt.Sprintf("receipt-%d.pdf", b.ID),
		Data:     buf.Bytes(),
	}

	if s.archive != nil {
		key := "receipts/" + uuid.NewString() + ".pdf"
		url, err := s.archive.Put(ctx, key, "application/pdf", receipt.Data)
		if err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("receipt archive failed")
		} else {
			receipt.Key, receipt.URL = key, url
		}
	}
	return receipt, nil
}

func (s *ReceiptService) location() *time.Location {
	if s.clock.Location == nil {
		return time.UTC
	}
	return s.clock.Location
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
