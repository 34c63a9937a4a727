package handlers

import (
	"net/http"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/gin-gonic/gin"
)

// GetProfile retrieves the user's profile
func GetProfile(accounts store.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := accounts.GetUser(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, userJSON(user))
	}
}

// UpdateProfile changes username and phone. Omitted fields are kept.
func UpdateProfile(accounts store.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username    string `json:"username" binding:"omitempty,min=3,max=50"`
			PhoneNumber string `json:"phoneNumber" binding:"omitempty,max=20"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		user, err := accounts.UpdateProfile(c.Request.Context(), middleware.UserID(c), input.Username, input.PhoneNumber)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, userJSON(user))
	}
}

type VehicleInput struct {
	Make  string `json:"make" binding:"required"`
	Model string `json:"model" binding:"required"`
	Color string `json:"color"`
	Plate string `json:"plate" binding:"required"`
	Seats int    `json:"seats" binding:"required,min=1,max=8"`
}

// GetVehicle returns the caller's vehicle profile.
func GetVehicle(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := s.GetVehicle(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// PutVehicle creates or replaces the caller's vehicle profile. Drivers only.
func PutVehicle(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.UserType(c) != string(models.UserTypeDriver) {
			respondError(c, apperrors.Forbidden("only drivers can register a vehicle"))
			return
		}
		var input VehicleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		v := &models.VehicleProfile{
			DriverID: middleware.UserID(c),
			Make:     input.Make,
			Model:    input.Model,
			Color:    input.Color,
			Plate:    input.Plate,
			Seats:    input.Seats,
		}
		if err := s.SaveVehicle(c.Request.Context(), v); err != nil {
			respondError(c, err)
			return
		}
		// an upsert leaves id and createdAt unset on update
		saved, err := s.GetVehicle(c.Request.Context(), v.DriverID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, saved)
	}
}
