package scheduler

import (
	"time"

	"github.com/wakewise/notification-engine/internal/patterns"
)

// Escalation state machine:
//
//	Scheduled -> Delivered -> Resolved                 (user responded)
//	Scheduled -> Delivered -> Scheduled(level+1)       (window expired, levels left)
//	Scheduled -> Delivered -> Exhausted                (window expired, levels spent)
//	Scheduled -> Exhausted                             (platform delivery failed)
//	Scheduled -> Cancelled                             (caller cancelled)
//
// All transition helpers assume the scheduler's lock is held; they only
// mutate the record and report what the caller must do next.

// markDelivered moves a scheduled notification into the open escalation
// window and returns the window duration for the current level
func (n *AdaptiveNotification) markDelivered(platformID string, now time.Time) time.Duration {
	n.State = StateDelivered
	n.Delivered = true
	n.DeliveryAttempts++
	n.PlatformID = platformID
	n.UpdatedAt = now
	return EscalationDelayFor(n.Type, n.EscalationLevel)
}

// markResolved records the user response; set-once, and only while the
// escalation window is open. A notification that was never delivered, already
// answered, or already terminal has no window to respond within.
func (n *AdaptiveNotification) markResolved(kind patterns.ResponseKind, latency time.Duration, now time.Time) bool {
	if n.State != StateDelivered || n.UserResponse != "" {
		return false
	}
	n.State = StateResolved
	n.UserResponse = kind
	n.ResponseLatency = latency
	n.UpdatedAt = now
	return true
}

// canEscalate reports whether an expired window should produce another
// delivery rather than exhaustion
func (n *AdaptiveNotification) canEscalate(cfg Config) bool {
	return cfg.ProgressiveEscalation &&
		n.State == StateDelivered &&
		n.UserResponse == "" &&
		n.EscalationLevel < n.MaxEscalations
}

// escalate bumps the level and priority and re-enters Scheduled. The new
// delivery time is the expiry moment plus the level-indexed delay; callers
// re-arm the delivery timer and re-index the hour bucket.
func (n *AdaptiveNotification) escalate(now time.Time) time.Time {
	delay := EscalationDelayFor(n.Type, n.EscalationLevel)
	n.EscalationLevel++
	n.Priority = n.Priority.Bump()
	n.State = StateScheduled
	n.AdaptedAt = now.Add(delay)
	n.UpdatedAt = now
	return n.AdaptedAt
}

// markExhausted ends the lifecycle without a response. Terminal; reported
// through status queries, never retried.
func (n *AdaptiveNotification) markExhausted(now time.Time) {
	n.State = StateExhausted
	n.UpdatedAt = now
}

// markCancelled ends the lifecycle at the caller's request
func (n *AdaptiveNotification) markCancelled(now time.Time) {
	n.State = StateCancelled
	n.UpdatedAt = now
}
