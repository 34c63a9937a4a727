package handlers

import (
	"net/http"

	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/gin-gonic/gin"
)

// GetNotificationPreferences retrieves user's notification preferences
func GetNotificationPreferences(accounts store.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefs, err := accounts.Preferences(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}

// UpdateNotificationPreferences applies a partial update. Omitted toggles
// keep their stored value.
func UpdateNotificationPreferences(accounts store.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PushEnabled      *bool `json:"pushEnabled"`
			BookingAlerts    *bool `json:"bookingAlerts"`
			RideStatusAlerts *bool `json:"rideStatusAlerts"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		prefs, err := accounts.Preferences(ctx, middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if input.PushEnabled != nil {
			prefs.PushEnabled = *input.PushEnabled
		}
		if input.BookingAlerts != nil {
			prefs.BookingAlerts = *input.BookingAlerts
		}
		if input.RideStatusAlerts != nil {
			prefs.RideStatusAlerts = *input.RideStatusAlerts
		}

		if err := accounts.SavePreferences(ctx, prefs); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}

// RegisterFCMToken registers or updates a user's FCM token
func RegisterFCMToken(accounts store.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		if err := accounts.SetPushToken(c.Request.Context(), middleware.UserID(c), input.FCMToken); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "FCM token registered successfully"})
	}
}

// RemoveFCMToken stops push delivery to the user's device.
func RemoveFCMToken(accounts store.Accounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := accounts.SetPushToken(c.Request.Context(), middleware.UserID(c), ""); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "FCM token removed successfully"})
	}
}
