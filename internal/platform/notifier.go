package platform

import (
	"context"
	"time"
)

// Request is the pass-through payload handed to the platform notification
// API. Content, sound and vibration selection happen upstream; the engine
// only decides when Send is invoked.
type Request struct {
	NotificationID   string            `json:"notification_id"`
	Title            string            `json:"title"`
	Body             string            `json:"body"`
	DeliverAt        time.Time         `json:"deliver_at"`
	SoundProfile     string            `json:"sound_profile,omitempty"`
	VibrationPattern string            `json:"vibration_pattern,omitempty"`
	Actions          []string          `json:"actions,omitempty"`
	Data             map[string]string `json:"data,omitempty"`
}

// Notifier is the boundary to the platform notification API. Send displays
// the notification now and returns the platform's identifier; Cancel is
// best-effort and idempotent.
type Notifier interface {
	Send(ctx context.Context, req Request) (string, error)
	Cancel(ctx context.Context, platformID string) error
}
