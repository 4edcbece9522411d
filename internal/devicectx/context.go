package devicectx

import (
	"time"
)

// Activity represents the user activity class reported by the device
type Activity string

const (
	ActivityActive   Activity = "active"
	ActivityIdle     Activity = "idle"
	ActivitySleeping Activity = "sleeping"
	ActivityDriving  Activity = "driving"
	ActivityMeeting  Activity = "meeting"
)

// Location represents the coarse location class of the device
type Location string

const (
	LocationHome    Location = "home"
	LocationWork    Location = "work"
	LocationMoving  Location = "moving"
	LocationUnknown Location = "unknown"
)

// Connectivity represents the network state of the device
type Connectivity string

const (
	ConnectivityOnline  Connectivity = "online"
	ConnectivityOffline Connectivity = "offline"
)

// TimeOfDay represents a coarse time-of-day bucket
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"   // 06:00 - 12:00
	TimeOfDayAfternoon TimeOfDay = "afternoon" // 12:00 - 18:00
	TimeOfDayEvening   TimeOfDay = "evening"   // 18:00 - 22:00
	TimeOfDayNight     TimeOfDay = "night"     // 22:00 - 06:00
)

// NotificationContext is an immutable snapshot of device and environment
// signals captured at scheduling time
type NotificationContext struct {
	Activity     Activity     `json:"activity"`
	BatteryLevel int          `json:"battery_level"` // 0-100
	Charging     bool         `json:"charging"`
	DoNotDisturb bool         `json:"do_not_disturb"`
	Location     Location     `json:"location"`
	TimeOfDay    TimeOfDay    `json:"time_of_day"`
	Connectivity Connectivity `json:"connectivity"`
	CapturedAt   time.Time    `json:"captured_at"`
}

// BucketFor returns the time-of-day bucket containing t
func BucketFor(t time.Time) TimeOfDay {
	switch hour := t.Hour(); {
	case hour >= 6 && hour < 12:
		return TimeOfDayMorning
	case hour >= 12 && hour < 18:
		return TimeOfDayAfternoon
	case hour >= 18 && hour < 22:
		return TimeOfDayEvening
	default:
		return TimeOfDayNight
	}
}

// DefaultContext returns a conservative snapshot used before the first
// successful sample
func DefaultContext(now time.Time) NotificationContext {
	return NotificationContext{
		Activity:     ActivityActive,
		BatteryLevel: 100,
		Charging:     false,
		DoNotDisturb: false,
		Location:     LocationUnknown,
		TimeOfDay:    BucketFor(now),
		Connectivity: ConnectivityOnline,
		CapturedAt:   now,
	}
}
