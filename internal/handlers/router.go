package handlers

import (
	"net/http"

	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/payment"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	Store     store.Store
	Accounts  store.Accounts
	Rides     *services.RideService
	Bookings  *services.BookingService
	Payments  *services.PaymentService
	Receipts  *services.ReceiptService
	Hub       *services.Hub
	Sandbox   *payment.SandboxGateway // nil unless the sandbox gateway is in use
	JWTSecret string
	UploadDir string
	Log       *logrus.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(d.Log), gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	config.ExposeHeaders = []string{middleware.RequestIDHeader, "X-Receipt-URL"}
	r.Use(cors.New(config))

	if err := r.SetTrustedProxies(nil); err != nil {
		d.Log.WithError(err).Warn("failed to set trusted proxies")
	}
	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir)
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "NotFound"})
	})

	auth := middleware.AuthMiddleware(d.JWTSecret)

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", Register(d.Accounts, d.JWTSecret))
			authGroup.POST("/login", Login(d.Accounts, d.JWTSecret))
		}

		if d.Hub != nil {
			api.GET("/ws", auth, WebSocketHandler(d.Hub))
		}

		protected := api.Group("/")
		protected.Use(auth)
		{
			users := protected.Group("/users")
			{
				users.GET("/profile", GetProfile(d.Accounts))
				users.PUT("/profile", UpdateProfile(d.Accounts))
				users.GET("/vehicle", GetVehicle(d.Store))
				users.PUT("/vehicle", PutVehicle(d.Store))
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("/preferences", GetNotificationPreferences(d.Accounts))
				notifications.PUT("/preferences", UpdateNotificationPreferences(d.Accounts))
				notifications.POST("/register-token", RegisterFCMToken(d.Accounts))
				notifications.DELETE("/remove-token", RemoveFCMToken(d.Accounts))
			}

			rides := protected.Group("/rides")
			{
				rides.POST("", PublishRide(d.Rides))
				rides.GET("", SearchRides(d.Rides))
				rides.GET("/driver", GetDriverRides(d.Rides))
				rides.GET("/:id", GetRide(d.Rides))
				rides.POST("/:id/reschedule", RescheduleRide(d.Rides))
				rides.POST("/:id/cancel", CancelRide(d.Rides))
				rides.GET("/:id/bookings", GetRideBookings(d.Bookings))
				rides.GET("/:id/ledger", GetRideLedger(d.Rides))
			}

			bookings := protected.Group("/bookings")
			{
				bookings.POST("", CreateBooking(d.Bookings))
				bookings.GET("", GetRiderBookings(d.Bookings))
				bookings.GET("/:id", GetBooking(d.Bookings))
				bookings.POST("/:id/accept", AcceptBooking(d.Bookings))
				bookings.POST("/:id/decline", DeclineBooking(d.Bookings))
				bookings.POST("/:id/cancel", CancelBooking(d.Bookings))
				bookings.PATCH("/:id/locations", UpdateBookingLocations(d.Bookings))
				bookings.POST("/:id/payment-order", CreatePaymentOrder(d.Payments))
				bookings.POST("/:id/payment/verify", VerifyPayment(d.Payments))
				if d.Receipts != nil {
					bookings.GET("/:id/receipt", DownloadReceipt(d.Receipts))
				}
			}

			if d.Sandbox != nil {
				protected.POST("/payments/sandbox/:orderId/pay", SandboxCheckout(d.Store, d.Sandbox))
			}
		}
	}
	return r
}
