package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"
	"time"

	"dispatch-backend/internal/events"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMService pushes route changes to the driver's device through Firebase Cloud Messaging
type FCMService struct {
	client  *messaging.Client
	drivers DriverLookup
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string, drivers DriverLookup) (*FCMService, error) {
	return newFCMService(option.WithCredentialsFile(credentialsFile), drivers)
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials.
// Useful on hosts where a credentials file cannot be uploaded.
func NewFCMServiceFromBase64(credentialsBase64 string, drivers DriverLookup) (*FCMService, error) {
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}
	return newFCMService(option.WithCredentialsJSON(credentialsJSON), drivers)
}

func newFCMService(opt option.ClientOption, drivers DriverLookup) (*FCMService, error) {
	ctx := context.Background()

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, drivers: drivers}, nil
}

// Notify implements events.Notifier. Only route_refreshed reaches the device; everything
// else already arrives over the driver's websocket.
func (s *FCMService) Notify(_ context.Context, ev events.Event) {
	if ev.Type != events.RouteRefreshed || ev.DriverID == "" {
		return
	}
	data, ok := ev.Data.(events.RouteData)
	if !ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.SendRouteRefreshedNotification(ctx, ev.DriverID, data); err != nil {
			log.Printf("⚠️  FCM route refresh push failed for driver %s: %v", ev.DriverID, err)
		}
	}()
}

// SendRouteRefreshedNotification tells the driver their stop order changed
func (s *FCMService) SendRouteRefreshedNotification(ctx context.Context, driverID string, data events.RouteData) error {
	driver, err := s.drivers.GetByID(ctx, driverID)
	if err != nil {
		return fmt.Errorf("error loading driver: %w", err)
	}
	if driver.FCMToken == nil || *driver.FCMToken == "" {
		return nil
	}

	message := &messaging.Message{
		Token: *driver.FCMToken,
		Notification: &messaging.Notification{
			Title: "Route Updated",
			Body:  fmt.Sprintf("Your route was re-optimized. %d deliveries remaining.", len(data.DeliveryIDs)),
		},
		Data: map[string]string{
			"type":                "route_refreshed",
			"optimization_method": data.Method,
			"total_deliveries":    strconv.Itoa(len(data.DeliveryIDs)),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Printf("✅ FCM notification sent successfully: %s", response)
	return nil
}
