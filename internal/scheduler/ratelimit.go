package scheduler

import (
	"time"
)

// RateLimitOffset is a pure rate-limit query: given a proposed delivery time,
// the hourly cap and a count of scheduled-but-undelivered notifications per
// clock-hour bucket, it returns how far the proposal must be pushed to land
// in the next free hour. Zero means the proposal fits. The caller applies the
// offset; nothing is mutated here.
func RateLimitOffset(proposed time.Time, maxPerHour int, countInHour func(time.Time) int) time.Duration {
	if maxPerHour < 1 {
		return 0
	}
	if countInHour(proposed) < maxPerHour {
		return 0
	}
	nextHour := proposed.Truncate(time.Hour).Add(time.Hour)
	return nextHour.Sub(proposed)
}

// hourIndex tracks how many scheduled-but-undelivered notifications occupy
// each clock-hour bucket. The scheduler updates it under its own lock
// whenever an adapted time changes or an entry leaves the schedule.
type hourIndex struct {
	counts map[int64]int
}

func newHourIndex() *hourIndex {
	return &hourIndex{counts: make(map[int64]int)}
}

func hourBucket(t time.Time) int64 {
	return t.Truncate(time.Hour).Unix()
}

func (h *hourIndex) add(t time.Time) {
	h.counts[hourBucket(t)]++
}

func (h *hourIndex) remove(t time.Time) {
	bucket := hourBucket(t)
	if h.counts[bucket] > 1 {
		h.counts[bucket]--
		return
	}
	delete(h.counts, bucket)
}

func (h *hourIndex) count(t time.Time) int {
	return h.counts[hourBucket(t)]
}
