package handlers

import (
	"errors"
	"net/http"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/payment"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/gin-gonic/gin"
)

type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// CreatePaymentOrder opens a gateway order for an ACCEPTED booking.
func CreatePaymentOrder(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		order, err := payments.CreateOrder(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

// VerifyPayment applies the checkout callback. Replays return the
// confirmed booking.
func VerifyPayment(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req VerifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		view, err := payments.Verify(c.Request.Context(), middleware.UserID(c), id, services.VerifyInput{
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.Signature,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// SandboxCheckout stands in for the hosted checkout when the sandbox
// gateway is configured. It returns the signed callback payload the mobile
// app would receive.
func SandboxCheckout(s store.Store, sandbox *payment.SandboxGateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		order, err := s.FindPaymentOrder(ctx, c.Param("orderId"))
		if err != nil {
			respondError(c, err)
			return
		}
		b, err := s.GetBooking(ctx, order.BookingID)
		if err != nil {
			respondError(c, err)
			return
		}
		if b.RiderID != middleware.UserID(c) {
			respondError(c, apperrors.Forbidden("not your payment order"))
			return
		}

		var paymentID, signature string
		if reason := c.Query("decline"); reason != "" {
			paymentID, signature, err = sandbox.Decline(order.GatewayOrderID, reason)
		} else {
			paymentID, signature, err = sandbox.Pay(order.GatewayOrderID)
		}
		if errors.Is(err, payment.ErrNotFound) {
			respondError(c, apperrors.NotFound("payment order"))
			return
		}
		if err != nil {
			respondError(c, apperrors.Internal("sandbox checkout failed", err))
			return
		}
		c.JSON(http.StatusOK, VerifyPaymentRequest{
			GatewayOrderID:   order.GatewayOrderID,
			GatewayPaymentID: paymentID,
			Signature:        signature,
		})
	}
}
