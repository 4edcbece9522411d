package platform

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FCMConfig holds the Firebase credentials and the device registration token
// this engine instance delivers to
type FCMConfig struct {
	CredentialsPath string
	DeviceToken     string
}

// FCMNotifier delivers notifications through Firebase Cloud Messaging
type FCMNotifier struct {
	client *messaging.Client
	config FCMConfig
	logger *zap.Logger
}

// NewFCMNotifier creates an FCM-backed platform notifier
func NewFCMNotifier(ctx context.Context, cfg FCMConfig, logger *zap.Logger) (*FCMNotifier, error) {
	// Check if credentials file exists
	if _, err := os.Stat(cfg.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("Firebase credentials file not found at %s", cfg.CredentialsPath)
	}

	// Initialize Firebase app
	opt := option.WithCredentialsFile(cfg.CredentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	// Get messaging client
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Firebase messaging client: %w", err)
	}

	return &FCMNotifier{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Send pushes the notification to the configured device token. FCM has no
// future-delivery support, so the engine invokes Send at the adapted time.
func (f *FCMNotifier) Send(ctx context.Context, req Request) (string, error) {
	data := make(map[string]string, len(req.Data)+2)
	for k, v := range req.Data {
		data[k] = v
	}
	data["notification_id"] = req.NotificationID
	if req.VibrationPattern != "" {
		data["vibration_pattern"] = req.VibrationPattern
	}

	sound := req.SoundProfile
	if sound == "" {
		sound = "default"
	}

	message := &messaging.Message{
		Token: f.config.DeviceToken,
		Notification: &messaging.Notification{
			Title: req.Title,
			Body:  req.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Priority: messaging.PriorityHigh,
				Sound:    sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: req.Title,
						Body:  req.Body,
					},
					Sound: sound,
				},
			},
		},
	}

	response, err := f.client.Send(ctx, message)
	if err != nil {
		f.logger.Error("Failed to send push notification",
			zap.String("notification_id", req.NotificationID),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to send push notification: %w", err)
	}

	f.logger.Info("Push notification sent",
		zap.String("notification_id", req.NotificationID),
		zap.String("fcm_response", response),
	)
	return response, nil
}

// Cancel is a no-op for FCM: nothing is scheduled platform-side, delivery
// happens only when the engine calls Send
func (f *FCMNotifier) Cancel(ctx context.Context, platformID string) error {
	return nil
}
