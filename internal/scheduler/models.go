package scheduler

import (
	"time"

	"github.com/wakewise/notification-engine/internal/devicectx"
	"github.com/wakewise/notification-engine/internal/patterns"
)

// NotificationType classifies what kind of notification is being scheduled
type NotificationType string

const (
	TypeAlarm        NotificationType = "alarm"
	TypeReminder     NotificationType = "reminder"
	TypeOptimization NotificationType = "optimization"
	TypeInsight      NotificationType = "insight"
	TypeEmergency    NotificationType = "emergency"
)

// Priority represents notification urgency. Escalation moves a notification
// up this ladder one step at a time; urgent is terminal.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// priorityLadder orders priorities for escalation bumps
var priorityLadder = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// Bump returns the next priority up the ladder; urgent stays urgent
func (p Priority) Bump() Priority {
	for i, step := range priorityLadder {
		if step == p && i+1 < len(priorityLadder) {
			return priorityLadder[i+1]
		}
	}
	return p
}

// State represents the lifecycle state of an adaptive notification
type State string

const (
	// StateScheduled means a delivery timer is armed for the adapted time
	StateScheduled State = "scheduled"
	// StateDelivered means the platform displayed the notification and the
	// escalation window is open
	StateDelivered State = "delivered"
	// StateResolved means the user responded within the escalation window
	StateResolved State = "resolved"
	// StateExhausted means all escalation levels were spent without a
	// response, or platform delivery failed. Terminal, reported not retried.
	StateExhausted State = "exhausted"
	// StateCancelled means the caller cancelled before delivery
	StateCancelled State = "cancelled"
)

// terminal reports whether no further transitions are allowed from s
func (s State) terminal() bool {
	return s == StateResolved || s == StateExhausted || s == StateCancelled
}

// AdaptiveNotification is the engine's record of one scheduled notification
type AdaptiveNotification struct {
	ID               string                        `json:"id" db:"id"`
	Type             NotificationType              `json:"type" db:"type"`
	Priority         Priority                      `json:"priority" db:"priority"`
	Title            string                        `json:"title" db:"title"`
	Body             string                        `json:"body" db:"body"`
	SoundProfile     string                        `json:"sound_profile,omitempty" db:"sound_profile"`
	VibrationPattern string                        `json:"vibration_pattern,omitempty" db:"vibration_pattern"`
	Actions          []string                      `json:"actions,omitempty"`
	ScheduledAt      time.Time                     `json:"scheduled_at" db:"scheduled_at"`
	AdaptedAt        time.Time                     `json:"adapted_at" db:"adapted_at"`
	Context          devicectx.NotificationContext `json:"context"`
	State            State                         `json:"state" db:"state"`
	EscalationLevel  int                           `json:"escalation_level" db:"escalation_level"`
	MaxEscalations   int                           `json:"max_escalations" db:"max_escalations"`
	Delivered        bool                          `json:"delivered" db:"delivered"`
	DeliveryAttempts int                           `json:"delivery_attempts" db:"delivery_attempts"`
	AdaptationTrace  []string                      `json:"adaptation_trace,omitempty"`
	UserResponse     patterns.ResponseKind         `json:"user_response,omitempty" db:"user_response"`
	ResponseLatency  time.Duration                 `json:"response_latency,omitempty" db:"response_latency_ms"`
	PlatformID       string                        `json:"platform_id,omitempty" db:"platform_id"`
	CreatedAt        time.Time                     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time                     `json:"updated_at" db:"updated_at"`
}

// ScheduleRequest is the inbound request to schedule a notification
type ScheduleRequest struct {
	Type             NotificationType `json:"type" validate:"required,oneof=alarm reminder optimization insight emergency"`
	Priority         Priority         `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Title            string           `json:"title" validate:"required"`
	Body             string           `json:"body"`
	ScheduledAt      time.Time        `json:"scheduled_at" validate:"required"`
	SoundProfile     string           `json:"sound_profile,omitempty"`
	VibrationPattern string           `json:"vibration_pattern,omitempty"`
	Actions          []string         `json:"actions,omitempty"`
}

// maxEscalationsByType bounds the escalation ladder per notification type
var maxEscalationsByType = map[NotificationType]int{
	TypeAlarm:        5,
	TypeReminder:     2,
	TypeOptimization: 1,
	TypeInsight:      0,
	TypeEmergency:    1,
}

// escalationDelaysByType holds the level-indexed re-delivery delays. Levels
// beyond the table length reuse the last entry.
var escalationDelaysByType = map[NotificationType][]time.Duration{
	TypeAlarm:        {5 * time.Minute, 10 * time.Minute, 15 * time.Minute},
	TypeReminder:     {30 * time.Minute, 60 * time.Minute},
	TypeOptimization: {4 * time.Hour},
	TypeInsight:      {24 * time.Hour},
	TypeEmergency:    {2 * time.Minute},
}

// MaxEscalationsFor returns the escalation bound for a type
func MaxEscalationsFor(t NotificationType) int {
	return maxEscalationsByType[t]
}

// EscalationDelayFor returns the delay before escalating past the given
// level, clamping to the last table entry
func EscalationDelayFor(t NotificationType, level int) time.Duration {
	delays := escalationDelaysByType[t]
	if len(delays) == 0 {
		return 0
	}
	if level >= len(delays) {
		level = len(delays) - 1
	}
	if level < 0 {
		level = 0
	}
	return delays[level]
}
