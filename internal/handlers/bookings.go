package handlers

import (
	"net/http"
	"strconv"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/gin-gonic/gin"
)

type CreateBookingRequest struct {
	RideID        uint   `json:"rideId" binding:"required"`
	NumberOfSeats int    `json:"numberOfSeats" binding:"required,min=1"`
	Pickup        string `json:"pickup" binding:"required"`
	Drop          string `json:"drop" binding:"required"`
}

type UpdateLocationsRequest struct {
	Pickup string `json:"pickup" binding:"required_without=Drop"`
	Drop   string `json:"drop" binding:"required_without=Pickup"`
}

// CreateBooking requests seats on a ride. Seats are only held once the
// driver accepts.
func CreateBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		view, err := bookings.Create(c.Request.Context(), middleware.UserID(c), services.CreateBookingInput{
			RideID: req.RideID,
			Seats:  req.NumberOfSeats,
			Pickup: req.Pickup,
			Drop:   req.Drop,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

// GetRiderBookings pages through the caller's bookings, newest first.
func GetRiderBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, apperrors.Validation("limit", "must be a number"))
				return
			}
			limit = n
		}

		page, err := bookings.ListRiderBookings(c.Request.Context(), middleware.UserID(c), c.Query("pageToken"), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func GetBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		view, err := bookings.Get(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func bookingTransition(apply func(c *gin.Context, actorID, bookingID uint) (*services.BookingView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		view, err := apply(c, middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// AcceptBooking is the driver accepting a PENDING request.
func AcceptBooking(bookings *services.BookingService) gin.HandlerFunc {
	return bookingTransition(func(c *gin.Context, actorID, bookingID uint) (*services.BookingView, error) {
		return bookings.Accept(c.Request.Context(), actorID, bookingID)
	})
}

func DeclineBooking(bookings *services.BookingService) gin.HandlerFunc {
	return bookingTransition(func(c *gin.Context, actorID, bookingID uint) (*services.BookingView, error) {
		return bookings.Decline(c.Request.Context(), actorID, bookingID)
	})
}

// CancelBooking may be called by the rider or the ride's driver.
func CancelBooking(bookings *services.BookingService) gin.HandlerFunc {
	return bookingTransition(func(c *gin.Context, actorID, bookingID uint) (*services.BookingView, error) {
		return bookings.Cancel(c.Request.Context(), actorID, bookingID)
	})
}

// UpdateBookingLocations changes pickup and drop. The fare is not recomputed.
func UpdateBookingLocations(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req UpdateLocationsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		view, err := bookings.UpdateLocations(c.Request.Context(), middleware.UserID(c), id, req.Pickup, req.Drop)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
