package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chachabrian/poolit-backend/internal/config"
	"github.com/chachabrian/poolit-backend/internal/database"
	"github.com/chachabrian/poolit-backend/internal/handlers"
	"github.com/chachabrian/poolit-backend/internal/logger"
	"github.com/chachabrian/poolit-backend/internal/payment"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "text").WithError(err).Fatal("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	st := database.NewGormStore(db)

	var (
		gateway payment.Gateway
		sandbox *payment.SandboxGateway
	)
	switch cfg.Payment.Provider {
	case "razorpay":
		gateway = payment.NewRazorpayGateway(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, &http.Client{Timeout: 20 * time.Second})
	default:
		sandbox = payment.NewSandboxGateway(cfg.Payment.KeyID, cfg.Payment.KeySecret)
		gateway = sandbox
		log.Warn("Using the sandbox payment gateway")
	}

	// Initialize WebSocket hub
	hub := services.NewHub(log)
	go hub.Run(ctx)

	// Local clients get events straight from the hub unless redis fans them
	// out across instances.
	var notifiers services.MultiNotifier
	if cfg.RedisURL != "" {
		rdb, err := services.InitRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize Redis")
		}
		defer rdb.Close()
		notifiers = append(notifiers, services.NewRedisPublisher(rdb, log))
		go hub.RelayFrom(ctx, rdb)
	} else {
		notifiers = append(notifiers, hub)
	}

	fcm, err := services.InitFirebase(ctx, cfg.FirebaseCredentials)
	if err != nil {
		log.WithError(err).Warn("Firebase initialization failed, push notifications disabled")
	} else if fcm != nil {
		notifiers = append(notifiers, services.NewPushNotifier(st, fcm, log))
	}
	notifier := services.NewAsyncNotifier(notifiers, log)

	archive, err := services.NewArchive(cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	clock := services.Clock{Location: cfg.Location}
	currency := cfg.Payment.Currency
	refunds := services.NewRefundDispatcher(st, gateway, notifier, log)
	go refunds.Run(ctx, cfg.RefundRetryInterval)

	deps := handlers.Deps{
		Store:     st,
		Accounts:  st,
		Rides:     services.NewRideService(st, services.NewCoordinator(currency), refunds, notifier, clock, log),
		Bookings:  services.NewBookingService(st, services.PerSeatFare, refunds, notifier, currency, clock, log),
		Payments:  services.NewPaymentService(st, gateway, refunds, notifier, currency, clock, log),
		Receipts:  services.NewReceiptService(st, archive, currency, clock, log),
		Hub:       hub,
		Sandbox:   sandbox,
		JWTSecret: cfg.JWTSecret,
		Log:       log,
	}
	if !cfg.Storage.UseS3() {
		deps.UploadDir = cfg.Storage.UploadDir
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown did not complete")
	}
	if err := refunds.Drain(shutdownCtx); err != nil {
		log.WithError(err).Warn("Refund dispatches still in flight; they will be retried on next start")
	}
	notifier.Wait()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
