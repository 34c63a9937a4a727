package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/gin-gonic/gin"
)

type PublishRideRequest struct {
	SourceCity      string   `json:"sourceCity" binding:"required"`
	DestinationCity string   `json:"destinationCity" binding:"required"`
	PickupPoints    []string `json:"pickupPoints" binding:"required"`
	DropPoints      []string `json:"dropPoints" binding:"required"`
	Date            string   `json:"date" binding:"required"`
	DepartureTime   string   `json:"departureTime" binding:"required"`
	Capacity        int      `json:"capacity" binding:"required"`
	PricePerSeat    float64  `json:"pricePerSeat" binding:"min=0"`
}

type RescheduleRequest struct {
	Date          string `json:"date" binding:"required"`
	DepartureTime string `json:"departureTime" binding:"required"`
	Reason        string `json:"reason" binding:"max=500"`
}

func parseDate(field, value string) (time.Time, error) {
	d, err := utils.ParseDate(value)
	if err != nil {
		return time.Time{}, apperrors.Validation(field, err.Error())
	}
	return d, nil
}

// PublishRide handles the creation of a new ride by a driver
func PublishRide(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.UserType(c) != string(models.UserTypeDriver) {
			respondError(c, apperrors.Forbidden("only drivers can publish rides"))
			return
		}

		var req PublishRideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		date, err := parseDate("date", req.Date)
		if err != nil {
			respondError(c, err)
			return
		}

		ride, err := rides.Publish(c.Request.Context(), middleware.UserID(c), services.PublishRideInput{
			SourceCity:      req.SourceCity,
			DestinationCity: req.DestinationCity,
			PickupPoints:    req.PickupPoints,
			DropPoints:      req.DropPoints,
			Date:            date,
			DepartureTime:   req.DepartureTime,
			Capacity:        req.Capacity,
			PricePerSeat:    req.PricePerSeat,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ride)
	}
}

// SearchRides lists active rides on a route from today onwards.
func SearchRides(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := services.RideSearch{
			SourceCity:      c.Query("source"),
			DestinationCity: c.Query("destination"),
			PageToken:       c.Query("pageToken"),
		}
		if raw := c.Query("date"); raw != "" {
			d, err := parseDate("date", raw)
			if err != nil {
				respondError(c, err)
				return
			}
			q.Date = &d
		}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, apperrors.Validation("limit", "must be a number"))
				return
			}
			q.Limit = n
		}

		page, err := rides.Search(c.Request.Context(), q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func GetDriverRides(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := rides.ListDriverRides(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rides": list})
	}
}

func GetRide(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		ride, err := rides.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ride)
	}
}

// RescheduleRide moves a ride to a new date and time. Bookings are kept.
func RescheduleRide(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		date, err := parseDate("date", req.Date)
		if err != nil {
			respondError(c, err)
			return
		}

		ride, err := rides.Reschedule(c.Request.Context(), middleware.UserID(c), id, services.RescheduleInput{
			Date:          date,
			DepartureTime: req.DepartureTime,
			Reason:        req.Reason,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ride)
	}
}

// CancelRide cancels the ride and every open booking on it.
func CancelRide(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		res, err := rides.Cancel(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func GetRideBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		list, err := bookings.ListRideBookings(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"bookings": list})
	}
}

func GetRideLedger(rides *services.RideService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		sum, err := rides.LedgerSummary(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}
