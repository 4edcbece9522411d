package scheduler

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config controls how the engine adapts delivery times. It is mutable at
// runtime through UpdateConfig; updates are validated as a whole and applied
// atomically or not at all.
type Config struct {
	AdaptiveEnabled         bool   `json:"adaptive_enabled" mapstructure:"adaptive_enabled"`
	RespectDoNotDisturb     bool   `json:"respect_do_not_disturb" mapstructure:"respect_do_not_disturb"`
	BatteryOptimization     bool   `json:"battery_optimization" mapstructure:"battery_optimization"`
	LocationAware           bool   `json:"location_aware" mapstructure:"location_aware"`
	ProgressiveEscalation   bool   `json:"progressive_escalation" mapstructure:"progressive_escalation"`
	MaxNotificationsPerHour int    `json:"max_notifications_per_hour" mapstructure:"max_notifications_per_hour" validate:"gte=1"`
	QuietHoursStart         string `json:"quiet_hours_start" mapstructure:"quiet_hours_start" validate:"datetime=15:04"`
	QuietHoursEnd           string `json:"quiet_hours_end" mapstructure:"quiet_hours_end" validate:"datetime=15:04"`
	EmergencyOverride       bool   `json:"emergency_override" mapstructure:"emergency_override"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		AdaptiveEnabled:         true,
		RespectDoNotDisturb:     true,
		BatteryOptimization:     true,
		LocationAware:           true,
		ProgressiveEscalation:   true,
		MaxNotificationsPerHour: 4,
		QuietHoursStart:         "22:00",
		QuietHoursEnd:           "07:00",
		EmergencyOverride:       true,
	}
}

// Validate checks the config. A quiet-hours window wrapping midnight is
// valid; a per-hour cap below one is not.
func (c Config) Validate(v *validator.Validate) error {
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid scheduling config: %w", err)
	}
	return nil
}

// ConfigPatch is a partial config update. Nil fields keep their current
// values.
type ConfigPatch struct {
	AdaptiveEnabled         *bool   `json:"adaptive_enabled,omitempty"`
	RespectDoNotDisturb     *bool   `json:"respect_do_not_disturb,omitempty"`
	BatteryOptimization     *bool   `json:"battery_optimization,omitempty"`
	LocationAware           *bool   `json:"location_aware,omitempty"`
	ProgressiveEscalation   *bool   `json:"progressive_escalation,omitempty"`
	MaxNotificationsPerHour *int    `json:"max_notifications_per_hour,omitempty"`
	QuietHoursStart         *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd           *string `json:"quiet_hours_end,omitempty"`
	EmergencyOverride       *bool   `json:"emergency_override,omitempty"`
}

// Apply merges the patch onto base and returns the result
func (p ConfigPatch) Apply(base Config) Config {
	merged := base
	if p.AdaptiveEnabled != nil {
		merged.AdaptiveEnabled = *p.AdaptiveEnabled
	}
	if p.RespectDoNotDisturb != nil {
		merged.RespectDoNotDisturb = *p.RespectDoNotDisturb
	}
	if p.BatteryOptimization != nil {
		merged.BatteryOptimization = *p.BatteryOptimization
	}
	if p.LocationAware != nil {
		merged.LocationAware = *p.LocationAware
	}
	if p.ProgressiveEscalation != nil {
		merged.ProgressiveEscalation = *p.ProgressiveEscalation
	}
	if p.MaxNotificationsPerHour != nil {
		merged.MaxNotificationsPerHour = *p.MaxNotificationsPerHour
	}
	if p.QuietHoursStart != nil {
		merged.QuietHoursStart = *p.QuietHoursStart
	}
	if p.QuietHoursEnd != nil {
		merged.QuietHoursEnd = *p.QuietHoursEnd
	}
	if p.EmergencyOverride != nil {
		merged.EmergencyOverride = *p.EmergencyOverride
	}
	return merged
}

// quietWindow is a daily time window expressed in minutes since midnight.
// start == end means the window is empty.
type quietWindow struct {
	start int
	end   int
}

// quietWindowFromConfig parses the configured quiet hours. Config validation
// guarantees the format, so parse errors collapse to an empty window.
func quietWindowFromConfig(c Config) quietWindow {
	start, err1 := minuteOfDay(c.QuietHoursStart)
	end, err2 := minuteOfDay(c.QuietHoursEnd)
	if err1 != nil || err2 != nil {
		return quietWindow{}
	}
	return quietWindow{start: start, end: end}
}

// contains reports whether t falls inside the window, handling windows that
// wrap midnight
func (w quietWindow) contains(t time.Time) bool {
	if w.start == w.end {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

// endAfter returns the first window end at or after t
func (w quietWindow) endAfter(t time.Time) time.Time {
	end := time.Date(t.Year(), t.Month(), t.Day(), w.end/60, w.end%60, 0, 0, t.Location())
	if !end.After(t) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func minuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
