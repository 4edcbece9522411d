package scheduler

import (
	"fmt"
	"time"

	"github.com/wakewise/notification-engine/internal/devicectx"
	"github.com/wakewise/notification-engine/internal/patterns"
)

// Adjustment magnitudes. Heuristics carried over from the product's tuning;
// kept as named constants rather than scattered literals.
const (
	dndDelay              = 30 * time.Minute
	batteryDelay          = 15 * time.Minute
	batteryThreshold      = 20
	movingPull            = 5 * time.Minute
	workOptimizationDelay = 30 * time.Minute
	homeInsightPull       = 10 * time.Minute
	patternMinSamples     = 5
	patternClamp          = 30 * time.Minute
)

// activityDeltas maps (activity, type) to a delivery-time delta. Alarms are
// never shifted by activity; sleeping users do not see deferrable types until
// later; idle users get non-alarm types pulled slightly earlier.
var activityDeltas = map[devicectx.Activity]map[NotificationType]time.Duration{
	devicectx.ActivityActive: {},
	devicectx.ActivityIdle: {
		TypeReminder:     -5 * time.Minute,
		TypeOptimization: -10 * time.Minute,
		TypeInsight:      -10 * time.Minute,
	},
	devicectx.ActivitySleeping: {
		TypeReminder:     30 * time.Minute,
		TypeOptimization: 60 * time.Minute,
		TypeInsight:      60 * time.Minute,
	},
	devicectx.ActivityDriving: {
		TypeReminder:     15 * time.Minute,
		TypeOptimization: 30 * time.Minute,
		TypeInsight:      30 * time.Minute,
	},
	devicectx.ActivityMeeting: {
		TypeReminder:     20 * time.Minute,
		TypeOptimization: 45 * time.Minute,
		TypeInsight:      30 * time.Minute,
	},
}

// ActivityDelta returns the delivery-time delta for an activity/type pair
func ActivityDelta(activity devicectx.Activity, t NotificationType) time.Duration {
	return activityDeltas[activity][t]
}

// TimingInput carries everything the calculator needs about one notification
type TimingInput struct {
	Type        NotificationType
	Priority    Priority
	ScheduledAt time.Time
	Context     devicectx.NotificationContext
}

// Calculator computes adapted delivery times. It is pure: all state it reads
// arrives through Compute's arguments.
type Calculator struct {
	patterns *patterns.Store
}

// NewCalculator creates a timing calculator backed by the given pattern store
func NewCalculator(store *patterns.Store) *Calculator {
	return &Calculator{patterns: store}
}

// Compute applies the ordered adjustment rules to the requested time and
// returns the adapted time plus a human-readable trace of the rules that
// fired. countInHour reports how many scheduled-but-undelivered notifications
// already occupy a given clock-hour bucket. An empty trace means the adapted
// time equals the scheduled time.
func (c *Calculator) Compute(in TimingInput, cfg Config, countInHour func(time.Time) int) (time.Time, []string) {
	adapted := in.ScheduledAt
	trace := []string{}

	if !cfg.AdaptiveEnabled {
		return adapted, trace
	}

	// Rule 1: quiet hours. Urgent notifications pass through only when the
	// emergency override is on.
	window := quietWindowFromConfig(cfg)
	if window.contains(adapted) && !(in.Priority == PriorityUrgent && cfg.EmergencyOverride) {
		adapted = window.endAfter(adapted)
		trace = append(trace, fmt.Sprintf("quiet_hours: deferred to %s", adapted.Format("Jan 2 15:04")))
	}

	// Rule 2: do-not-disturb
	if cfg.RespectDoNotDisturb && in.Context.DoNotDisturb && in.Priority != PriorityUrgent {
		adapted = adapted.Add(dndDelay)
		trace = append(trace, fmt.Sprintf("dnd: active, delayed %s", dndDelay))
	}

	// Rule 3: battery optimization, never for alarms
	if cfg.BatteryOptimization && in.Context.BatteryLevel < batteryThreshold && !in.Context.Charging && in.Type != TypeAlarm {
		adapted = adapted.Add(batteryDelay)
		trace = append(trace, fmt.Sprintf("battery: %d%% and discharging, delayed %s", in.Context.BatteryLevel, batteryDelay))
	}

	// Rule 4: activity
	if delta := ActivityDelta(in.Context.Activity, in.Type); delta != 0 {
		adapted = adapted.Add(delta)
		trace = append(trace, fmt.Sprintf("activity: %s, shifted %s", in.Context.Activity, formatDelta(delta)))
	}

	// Rule 5: location
	if cfg.LocationAware {
		switch {
		case in.Context.Location == devicectx.LocationMoving && in.Type != TypeAlarm:
			adapted = adapted.Add(-movingPull)
			trace = append(trace, fmt.Sprintf("location: moving, pulled %s earlier for connectivity", movingPull))
		case in.Context.Location == devicectx.LocationWork && in.Type == TypeOptimization:
			adapted = adapted.Add(workOptimizationDelay)
			trace = append(trace, fmt.Sprintf("location: at work, optimization delayed %s", workOptimizationDelay))
		case in.Context.Location == devicectx.LocationHome && in.Type == TypeInsight:
			adapted = adapted.Add(-homeInsightPull)
			trace = append(trace, fmt.Sprintf("location: at home, insight pulled %s earlier", homeInsightPull))
		}
	}

	// Rule 6: learned behavior patterns. Needs a minimum sample count; a
	// missing bucket simply does not fire. Never delays an urgent alarm and
	// never pulls ahead of what the activity/location rules allowed.
	if p, ok := c.patterns.Lookup(string(in.Type), in.Context.TimeOfDay); ok && p.Samples >= patternMinSamples {
		adj := p.AvgResponseLatency - p.AvgDeliveryDelay
		if adj > patternClamp {
			adj = patternClamp
		}
		if adj < -patternClamp {
			adj = -patternClamp
		}
		if adj > 0 && in.Type == TypeAlarm && in.Priority == PriorityUrgent {
			adj = 0
		}
		if adj < 0 {
			floor := in.ScheduledAt
			if adapted.Before(floor) {
				floor = adapted
			}
			if candidate := adapted.Add(adj); candidate.Before(floor) {
				adj = floor.Sub(adapted)
			}
		}
		if adj != 0 {
			adapted = adapted.Add(adj)
			trace = append(trace, fmt.Sprintf("pattern: %d samples, shifted %s", p.Samples, formatDelta(adj)))
		}
	}

	// Rule 7: hourly rate limit, applied to the time the earlier rules
	// produced. Urgent alarms are exempt.
	if countInHour != nil && !(in.Type == TypeAlarm && in.Priority == PriorityUrgent) {
		if offset := RateLimitOffset(adapted, cfg.MaxNotificationsPerHour, countInHour); offset > 0 {
			adapted = adapted.Add(offset)
			trace = append(trace, fmt.Sprintf("rate_limit: hour full, pushed to %s", adapted.Format("15:04")))
		}
	}

	return adapted, trace
}

// formatDelta renders a signed duration for trace entries
func formatDelta(d time.Duration) string {
	if d < 0 {
		return fmt.Sprintf("-%s", -d)
	}
	return fmt.Sprintf("+%s", d)
}
