package services

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// InitFirebase returns an FCM client, or nil when no service account is
// configured and push is disabled.
func InitFirebase(ctx context.Context, serviceAccountPath string) (*messaging.Client, error) {
	if serviceAccountPath == "" {
		return nil, nil
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return client, nil
}

// MessageSender is the part of *messaging.Client the push notifier uses.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushNotifier sends events as FCM notifications, honouring the recipient's
// notification preferences.
type PushNotifier struct {
	directory store.RecipientDirectory
	sender    MessageSender
	log       *logrus.Logger
}

func NewPushNotifier(directory store.RecipientDirectory, sender MessageSender, log *logrus.Logger) *PushNotifier {
	return &PushNotifier{directory: directory, sender: sender, log: log}
}

func (p *PushNotifier) Notify(ctx context.Context, event Event) {
	fields := logrus.Fields{"event": event.Type, "user_id": event.UserID}

	token, prefs, err := p.directory.PushTarget(ctx, event.UserID)
	if err != nil {
		p.log.WithError(err).WithFields(fields).Warn("push recipient lookup failed")
		return
	}
	if token == "" || !wantsPush(prefs, event) {
		return
	}

	if _, err := p.sender.Send(ctx, pushMessage(token, event)); err != nil {
		p.log.WithError(err).WithFields(fields).Warn("push send failed")
		return
	}
	p.log.WithFields(fields).Debug("push sent")
}

func wantsPush(prefs *models.NotificationPreference, event Event) bool {
	if prefs == nil {
		return true
	}
	if !prefs.PushEnabled {
		return false
	}
	if event.IsRideStatus() {
		return prefs.RideStatusAlerts
	}
	return prefs.BookingAlerts
}

func pushMessage(token string, event Event) *messaging.Message {
	data := map[string]string{
		"type": string(event.Type),
	}
	if event.RideID != 0 {
		data["rideId"] = fmt.Sprint(event.RideID)
	}
	if event.BookingID != 0 {
		data["bookingId"] = fmt.Sprint(event.BookingID)
	}
	for k, v := range event.Data {
		data[k] = fmt.Sprint(v)
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: event.Title,
			Body:  event.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:    "poolit_bookings",
				Sound:        "default",
				DefaultSound: true,
				Tag:          string(event.Type),
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default", MutableContent: true},
			},
		},
	}
}
