package patterns

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wakewise/notification-engine/internal/devicectx"
)

// ResponseKind classifies how the user handled a delivered notification
type ResponseKind string

const (
	ResponseDismissed ResponseKind = "dismissed"
	ResponseSnoozed   ResponseKind = "snoozed"
	ResponseIgnored   ResponseKind = "ignored"
)

// Key identifies a behavior pattern bucket
type Key struct {
	Type      string              `json:"type"`
	TimeOfDay devicectx.TimeOfDay `json:"time_of_day"`
}

// String renders the key in the form used for persistence
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Type, k.TimeOfDay)
}

// Pattern holds the rolling response statistics for one bucket. Averages are
// maintained incrementally so memory stays proportional to the number of
// buckets, not the number of notifications.
type Pattern struct {
	Samples            int64         `json:"samples"`
	AvgResponseLatency time.Duration `json:"avg_response_latency"`
	AvgDeliveryDelay   time.Duration `json:"avg_delivery_delay"`
	DismissRate        float64       `json:"dismiss_rate"`
	SnoozeRate         float64       `json:"snooze_rate"`
	IgnoreRate         float64       `json:"ignore_rate"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// Observation is one recorded response event
type Observation struct {
	Type            string
	TimeOfDay       devicectx.TimeOfDay
	Response        ResponseKind
	ResponseLatency time.Duration
	DeliveryDelay   time.Duration // adapted time minus originally scheduled time
}

// Store accumulates behavior patterns per (type, time-of-day) bucket
type Store struct {
	mu      sync.RWMutex
	buckets map[Key]*Pattern
	logger  *zap.Logger
}

// NewStore creates an empty behavior pattern store
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		buckets: make(map[Key]*Pattern),
		logger:  logger,
	}
}

// Record folds one observation into its bucket using running means
func (s *Store) Record(obs Observation) {
	key := Key{Type: obs.Type, TimeOfDay: obs.TimeOfDay}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.buckets[key]
	if !ok {
		p = &Pattern{}
		s.buckets[key] = p
	}

	p.Samples++
	n := float64(p.Samples)

	p.AvgResponseLatency += time.Duration(float64(obs.ResponseLatency-p.AvgResponseLatency) / n)
	p.AvgDeliveryDelay += time.Duration(float64(obs.DeliveryDelay-p.AvgDeliveryDelay) / n)

	p.DismissRate += (indicator(obs.Response == ResponseDismissed) - p.DismissRate) / n
	p.SnoozeRate += (indicator(obs.Response == ResponseSnoozed) - p.SnoozeRate) / n
	p.IgnoreRate += (indicator(obs.Response == ResponseIgnored) - p.IgnoreRate) / n
	p.UpdatedAt = time.Now()

	s.logger.Debug("Recorded behavior observation",
		zap.String("bucket", key.String()),
		zap.Int64("samples", p.Samples),
		zap.String("response", string(obs.Response)),
	)
}

// Lookup returns a copy of the bucket and whether it exists. A missing bucket
// is not an error: callers treat it as zero samples.
func (s *Store) Lookup(notifType string, bucket devicectx.TimeOfDay) (Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.buckets[Key{Type: notifType, TimeOfDay: bucket}]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

// Snapshot returns a copy of all buckets, keyed by the persistence key form
func (s *Store) Snapshot() map[string]Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Pattern, len(s.buckets))
	for key, p := range s.buckets {
		out[key.String()] = *p
	}
	return out
}

// Restore replaces a bucket with a previously persisted pattern. Used on
// startup when reloading state from the durable store.
func (s *Store) Restore(key Key, p Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := p
	s.buckets[key] = &restored
}

// Len returns the number of distinct buckets
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
