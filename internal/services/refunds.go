package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/payment"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

// RefundQueue accepts committed refund intents for settlement.
type RefundQueue interface {
	Dispatch(intents ...models.RefundIntent)
}

const (
	// MaxRefundAttempts stops retrying an intent; it then needs manual
	// reconciliation.
	MaxRefundAttempts = 5
	refundCallTimeout = 30 * time.Second
)

// RefundDispatcher sends refund intents to the gateway after the cancelling
// transaction committed, and records each outcome on the intent.
type RefundDispatcher struct {
	store    store.Store
	gateway  payment.Gateway
	notifier Notifier
	log      *logrus.Logger

	// intents still pending after this long are assumed abandoned by a
	// crashed dispatch and are picked up by RetryFailed
	staleAfter time.Duration

	wg sync.WaitGroup
}

func NewRefundDispatcher(s store.Store, gateway payment.Gateway, notifier Notifier, log *logrus.Logger) *RefundDispatcher {
	return &RefundDispatcher{
		store:      s,
		gateway:    gateway,
		notifier:   notifier,
		log:        log,
		staleAfter: 2 * time.Minute,
	}
}

// Dispatch settles each intent in its own goroutine. It never blocks the
// caller on the gateway.
func (d *RefundDispatcher) Dispatch(intents ...models.RefundIntent) {
	for _, intent := range intents {
		d.wg.Add(1)
		go func(intent models.RefundIntent) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), refundCallTimeout)
			defer cancel()
			if err := d.settle(ctx, intent); err != nil {
				d.log.WithError(err).WithField("refund_id", intent.ID).Error("refund dispatch failed")
			}
		}(intent)
	}
}

// settle claims the intent and calls the gateway. Losing the claim means
// another dispatcher is already on it.
func (d *RefundDispatcher) settle(ctx context.Context, intent models.RefundIntent) error {
	won, err := d.store.ClaimRefundIntent(ctx, intent.ID, intent.Attempts)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	intent.Attempts++

	fields := logrus.Fields{
		"refund_id":    intent.ID,
		"booking_id":   intent.BookingID,
		"payment_id":   intent.PaymentID,
		"amount_minor": intent.AmountMinor,
		"attempt":      intent.Attempts,
	}

	refund, err := d.gateway.Refund(ctx, intent.PaymentID, intent.AmountMinor, fmt.Sprintf("refund-%d", intent.BookingID))
	if err != nil {
		intent.Status = models.RefundFailed
		intent.LastError = err.Error()
		d.log.WithFields(fields).WithError(err).Warn("refund rejected by gateway")
	} else {
		intent.Status = models.RefundSucceeded
		intent.GatewayRefundID = refund.ID
		intent.LastError = ""
		d.log.WithFields(fields).WithField("gateway_refund_id", refund.ID).Info("refund issued")
	}

	if err := d.store.SaveRefundIntent(ctx, &intent); err != nil {
		return fmt.Errorf("record refund outcome: %w", err)
	}

	if intent.Status == models.RefundSucceeded {
		if b, err := d.store.GetBooking(ctx, intent.BookingID); err == nil {
			dispatch(ctx, d.notifier, []Event{{
				Type:      EventRefundProcessed,
				UserID:    b.RiderID,
				RideID:    b.RideID,
				BookingID: b.ID,
				Title:     "Refund issued",
				Body:      fmt.Sprintf("A refund of %.2f %s is on its way.", utils.FromMinorUnits(intent.AmountMinor), intent.Currency),
			}})
		}
	}
	return nil
}

// RetryFailed re-attempts failed intents and pending ones that look
// abandoned. It returns how many intents settled in this pass.
func (d *RefundDispatcher) RetryFailed(ctx context.Context) (int, error) {
	intents, err := d.store.ListRefundIntents(ctx, models.RefundPending, models.RefundFailed)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-d.staleAfter)
	settled := 0
	for _, intent := range intents {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if intent.Attempts >= MaxRefundAttempts {
			continue
		}
		if intent.Status == models.RefundPending && intent.UpdatedAt.After(cutoff) {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, refundCallTimeout)
		err := d.settle(callCtx, intent)
		cancel()
		if err != nil {
			d.log.WithError(err).WithField("refund_id", intent.ID).Error("refund retry failed")
			continue
		}
		if cur, err := d.store.GetRefundIntent(ctx, intent.ID); err == nil && cur.Status == models.RefundSucceeded {
			settled++
		}
	}
	return settled, nil
}

// Run retries on every tick until ctx is done.
func (d *RefundDispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := d.RetryFailed(ctx); err != nil {
				d.log.WithError(err).Error("refund retry pass failed")
			} else if n > 0 {
				d.log.WithField("settled", n).Info("refund retry pass")
			}
		}
	}
}

// Drain waits for in-flight dispatches or for ctx to end.
func (d *RefundDispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
