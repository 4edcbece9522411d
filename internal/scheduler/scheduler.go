package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wakewise/notification-engine/internal/devicectx"
	"github.com/wakewise/notification-engine/internal/monitoring"
	"github.com/wakewise/notification-engine/internal/patterns"
	"github.com/wakewise/notification-engine/internal/platform"
)

// ErrNotFound is returned when a notification id is unknown
var ErrNotFound = errors.New("notification not found")

// ErrNotAwaitingResponse is returned when a response arrives for a
// notification that already resolved or never opened a response window
var ErrNotAwaitingResponse = errors.New("notification is not awaiting a response")

// ContextSource supplies the current device context snapshot
type ContextSource interface {
	Current() devicectx.NotificationContext
}

// AuditStore persists the notification lifecycle for later inspection
type AuditStore interface {
	InsertNotification(ctx context.Context, n *AdaptiveNotification) error
	UpdateNotification(ctx context.Context, n *AdaptiveNotification) error
}

// StateStore is the durable key-value store for engine state
type StateStore interface {
	SaveNotification(ctx context.Context, n *AdaptiveNotification) error
	DeleteNotification(ctx context.Context, id string) error
	SavePattern(ctx context.Context, key patterns.Key, p patterns.Pattern) error
	SaveConfig(ctx context.Context, cfg Config) error
	AppendTrace(ctx context.Context, entry string) error
}

// Event is one lifecycle event on the outbound analytics stream
type Event struct {
	NotificationID  string    `json:"notification_id"`
	Kind            string    `json:"kind"`
	Type            string    `json:"type"`
	Priority        string    `json:"priority"`
	EscalationLevel int       `json:"escalation_level"`
	Timestamp       time.Time `json:"timestamp"`
}

// Lifecycle event kinds
const (
	EventScheduled      = "scheduled"
	EventDelivered      = "delivered"
	EventDeliveryFailed = "delivery_failed"
	EventResponded      = "responded"
	EventEscalated      = "escalated"
	EventExhausted      = "exhausted"
	EventCancelled      = "cancelled"
)

// EventPublisher publishes lifecycle events
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// entry pairs a notification record with its live timer. The cancelled flag
// is checked atomically before any timer-driven side effect so cancellation
// wins over an in-flight firing.
type entry struct {
	n         *AdaptiveNotification
	timer     *time.Timer
	cancelled atomic.Bool

	// dispatching covers the gap where dispatch has already taken the hour
	// index slot but released the lock for the platform Send. A concurrent
	// Cancel must not remove the slot again: the bucket count would then
	// steal a slot from other notifications in the same hour. Guarded by the
	// scheduler mutex.
	dispatching bool
}

// Scheduler owns all engine state: the in-flight notification map, the
// hourly rate-limit index, the active scheduling config and one timer per
// notification. All mutations are serialized by its mutex; collaborators are
// injected so independent schedulers can coexist in tests.
type Scheduler struct {
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	device   ContextSource
	patterns *patterns.Store
	calc     *Calculator
	notifier platform.Notifier
	audit    AuditStore
	state    StateStore
	events   EventPublisher
	validate *validator.Validate

	mu            sync.Mutex
	cfg           Config
	notifications map[string]*entry
	hours         *hourIndex
}

// New creates a scheduler with the given collaborators and initial config
func New(
	cfg Config,
	device ContextSource,
	store *patterns.Store,
	notifier platform.Notifier,
	audit AuditStore,
	state StateStore,
	events EventPublisher,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		logger:        logger,
		metrics:       metrics,
		device:        device,
		patterns:      store,
		calc:          NewCalculator(store),
		notifier:      notifier,
		audit:         audit,
		state:         state,
		events:        events,
		validate:      validator.New(),
		cfg:           cfg,
		notifications: make(map[string]*entry),
		hours:         newHourIndex(),
	}
}

// Schedule computes the adapted delivery time for the request, arms the
// delivery timer and returns the full record. It never blocks on delivery:
// the timing computation is pure and the id is available immediately.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (*AdaptiveNotification, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid schedule request: %w", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = defaultPriority(req.Type)
	}

	snapshot := s.device.Current()
	now := time.Now()

	s.mu.Lock()
	cfg := s.cfg
	adapted, trace := s.calc.Compute(TimingInput{
		Type:        req.Type,
		Priority:    priority,
		ScheduledAt: req.ScheduledAt,
		Context:     snapshot,
	}, cfg, s.hours.count)

	n := &AdaptiveNotification{
		ID:               uuid.New().String(),
		Type:             req.Type,
		Priority:         priority,
		Title:            req.Title,
		Body:             req.Body,
		SoundProfile:     req.SoundProfile,
		VibrationPattern: req.VibrationPattern,
		Actions:          req.Actions,
		ScheduledAt:      req.ScheduledAt,
		AdaptedAt:        adapted,
		Context:          snapshot,
		State:            StateScheduled,
		MaxEscalations:   MaxEscalationsFor(req.Type),
		AdaptationTrace:  trace,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	e := &entry{n: n}
	s.notifications[n.ID] = e
	s.hours.add(adapted)
	s.armDeliveryTimer(e)
	s.mu.Unlock()

	s.metrics.RecordScheduled(string(n.Type), string(n.Priority))
	s.metrics.RecordDeliveryDelay(string(n.Type), adapted.Sub(req.ScheduledAt).Seconds())
	for _, fired := range trace {
		s.metrics.RecordRuleFired(ruleLabel(fired))
		if ruleLabel(fired) == "rate_limit" {
			s.metrics.RecordRateLimited()
		}
		if err := s.state.AppendTrace(ctx, fmt.Sprintf("%s %s", n.ID, fired)); err != nil {
			s.logger.Warn("Failed to append adaptation trace", zap.Error(err))
		}
	}
	s.updateInflightGauge()

	if err := s.audit.InsertNotification(ctx, n); err != nil {
		s.logger.Warn("Failed to write audit record", zap.String("id", n.ID), zap.Error(err))
	}
	s.persistInflight(ctx, n)
	s.publish(n, EventScheduled)

	s.logger.Info("Notification scheduled",
		zap.String("id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("priority", string(n.Priority)),
		zap.Time("scheduled_at", n.ScheduledAt),
		zap.Time("adapted_at", n.AdaptedAt),
		zap.Strings("trace", trace),
	)

	result := *n
	return &result, nil
}

// RecordResponse records the user's response to a delivered notification,
// resolves it and feeds the behavior pattern store. Set-once: a second
// response for the same id is rejected.
func (s *Scheduler) RecordResponse(ctx context.Context, id string, kind patterns.ResponseKind, latency time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	e, ok := s.notifications[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !e.n.markResolved(kind, latency, now) {
		s.mu.Unlock()
		return ErrNotAwaitingResponse
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	obs := patterns.Observation{
		Type:            string(e.n.Type),
		TimeOfDay:       devicectx.BucketFor(e.n.AdaptedAt),
		Response:        kind,
		ResponseLatency: latency,
		DeliveryDelay:   e.n.AdaptedAt.Sub(e.n.ScheduledAt),
	}
	n := *e.n
	s.mu.Unlock()

	s.patterns.Record(obs)
	if p, ok := s.patterns.Lookup(obs.Type, obs.TimeOfDay); ok {
		key := patterns.Key{Type: obs.Type, TimeOfDay: obs.TimeOfDay}
		if err := s.state.SavePattern(ctx, key, p); err != nil {
			s.logger.Warn("Failed to persist behavior pattern", zap.String("bucket", key.String()), zap.Error(err))
		}
	}
	s.metrics.RecordResponseLatency(string(n.Type), string(kind), latency.Seconds())
	s.metrics.SetPatternBuckets(float64(s.patterns.Len()))
	s.updateInflightGauge()

	if err := s.audit.UpdateNotification(ctx, &n); err != nil {
		s.logger.Warn("Failed to update audit record", zap.String("id", id), zap.Error(err))
	}
	if err := s.state.DeleteNotification(ctx, id); err != nil {
		s.logger.Warn("Failed to drop in-flight record", zap.String("id", id), zap.Error(err))
	}
	s.publish(&n, EventResponded)

	s.logger.Info("User response recorded",
		zap.String("id", id),
		zap.String("response", string(kind)),
		zap.Duration("latency", latency),
	)
	return nil
}

// Cancel stops a notification before delivery. Idempotent: cancelling an
// unknown or already-terminal id is a no-op. The cancelled flag guarantees
// an in-flight timer firing cannot dispatch afterwards.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	now := time.Now()

	s.mu.Lock()
	e, ok := s.notifications[id]
	if !ok || e.n.State.terminal() {
		s.mu.Unlock()
		return nil
	}
	e.cancelled.Store(true)
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.n.State == StateScheduled && !e.dispatching {
		s.hours.remove(e.n.AdaptedAt)
	}
	e.n.markCancelled(now)
	n := *e.n
	s.mu.Unlock()

	if n.PlatformID != "" {
		if err := s.notifier.Cancel(ctx, n.PlatformID); err != nil {
			s.logger.Warn("Platform cancel failed", zap.String("id", id), zap.Error(err))
		}
	}

	s.metrics.RecordCancelled(string(n.Type))
	s.updateInflightGauge()

	if err := s.audit.UpdateNotification(ctx, &n); err != nil {
		s.logger.Warn("Failed to update audit record", zap.String("id", id), zap.Error(err))
	}
	if err := s.state.DeleteNotification(ctx, id); err != nil {
		s.logger.Warn("Failed to drop in-flight record", zap.String("id", id), zap.Error(err))
	}
	s.publish(&n, EventCancelled)

	s.logger.Info("Notification cancelled", zap.String("id", id))
	return nil
}

// UpdateConfig validates the merged config and applies it atomically. An
// invalid patch leaves the active config untouched.
func (s *Scheduler) UpdateConfig(ctx context.Context, patch ConfigPatch) (Config, error) {
	s.mu.Lock()
	merged := patch.Apply(s.cfg)
	s.mu.Unlock()

	if err := merged.Validate(s.validate); err != nil {
		return Config{}, err
	}

	s.mu.Lock()
	s.cfg = merged
	s.mu.Unlock()

	if err := s.state.SaveConfig(ctx, merged); err != nil {
		s.logger.Warn("Failed to persist scheduling config", zap.Error(err))
	}

	s.logger.Info("Scheduling config updated",
		zap.Int("max_per_hour", merged.MaxNotificationsPerHour),
		zap.String("quiet_hours", merged.QuietHoursStart+"-"+merged.QuietHoursEnd),
	)
	return merged, nil
}

// GetConfig returns the active scheduling config
func (s *Scheduler) GetConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Status returns a copy of the notification record for the given id
func (s *Scheduler) Status(id string) (*AdaptiveNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	n := *e.n
	return &n, nil
}

// Inflight returns copies of all notifications that have not reached a
// terminal state
func (s *Scheduler) Inflight() []AdaptiveNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AdaptiveNotification, 0, len(s.notifications))
	for _, e := range s.notifications {
		if e.n.State.terminal() {
			continue
		}
		out = append(out, *e.n)
	}
	return out
}

// Restore re-arms timers for notifications reloaded from the durable store
// on startup. Scheduled entries get delivery timers; delivered entries get
// the remainder of their escalation window.
func (s *Scheduler) Restore(ns []*AdaptiveNotification) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range ns {
		if n.State.terminal() {
			continue
		}
		restored := *n
		e := &entry{n: &restored}
		s.notifications[restored.ID] = e

		switch restored.State {
		case StateScheduled:
			s.hours.add(restored.AdaptedAt)
			s.armDeliveryTimer(e)
		case StateDelivered:
			window := EscalationDelayFor(restored.Type, restored.EscalationLevel)
			remaining := restored.UpdatedAt.Add(window).Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			id := restored.ID
			e.timer = time.AfterFunc(remaining, func() { s.expireWindow(id) })
		}
	}
	s.logger.Info("Restored in-flight notifications", zap.Int("count", len(ns)))
}

// PurgeTerminal drops terminal records older than the cutoff from the
// in-memory map. The audit store keeps its own retention.
func (s *Scheduler) PurgeTerminal(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, e := range s.notifications {
		if e.n.State.terminal() && e.n.UpdatedAt.Before(before) {
			delete(s.notifications, id)
			purged++
		}
	}
	return purged
}

// armDeliveryTimer arms the per-notification delivery timer. Caller holds
// the scheduler lock.
func (s *Scheduler) armDeliveryTimer(e *entry) {
	id := e.n.ID
	delay := time.Until(e.n.AdaptedAt)
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { s.dispatch(id) })
}

// dispatch fires when a delivery timer elapses: it hands the notification to
// the platform and opens the escalation window on success. Delivery failure
// exhausts the notification immediately; it is not retried indefinitely.
func (s *Scheduler) dispatch(id string) {
	ctx := context.Background()
	now := time.Now()

	s.mu.Lock()
	e, ok := s.notifications[id]
	if !ok || e.cancelled.Load() || e.n.State != StateScheduled {
		s.mu.Unlock()
		return
	}
	s.hours.remove(e.n.AdaptedAt)
	e.dispatching = true
	req := platform.Request{
		NotificationID:   id,
		Title:            e.n.Title,
		Body:             e.n.Body,
		DeliverAt:        e.n.AdaptedAt,
		SoundProfile:     e.n.SoundProfile,
		VibrationPattern: e.n.VibrationPattern,
		Actions:          e.n.Actions,
		Data: map[string]string{
			"type":             string(e.n.Type),
			"priority":         string(e.n.Priority),
			"escalation_level": fmt.Sprintf("%d", e.n.EscalationLevel),
		},
	}
	s.mu.Unlock()

	platformID, err := s.notifier.Send(ctx, req)

	s.mu.Lock()
	e.dispatching = false
	if e.cancelled.Load() {
		s.mu.Unlock()
		return
	}
	if err != nil {
		e.n.markExhausted(now)
		n := *e.n
		s.mu.Unlock()

		s.metrics.RecordFailed(string(n.Type), "platform_error")
		s.metrics.RecordExhausted(string(n.Type))
		s.updateInflightGauge()
		s.finishTerminal(ctx, &n, EventDeliveryFailed)
		s.logger.Error("Platform delivery failed, notification exhausted",
			zap.String("id", id),
			zap.Error(err),
		)
		return
	}

	window := e.n.markDelivered(platformID, now)
	e.timer = time.AfterFunc(window, func() { s.expireWindow(id) })
	n := *e.n
	s.mu.Unlock()

	s.metrics.RecordDelivered(string(n.Type))
	if err := s.audit.UpdateNotification(ctx, &n); err != nil {
		s.logger.Warn("Failed to update audit record", zap.String("id", id), zap.Error(err))
	}
	s.persistInflight(ctx, &n)
	s.publish(&n, EventDelivered)

	s.logger.Info("Notification delivered",
		zap.String("id", id),
		zap.String("platform_id", platformID),
		zap.Int("escalation_level", n.EscalationLevel),
		zap.Duration("response_window", window),
	)
}

// expireWindow fires when a delivered notification's escalation window
// elapses without a response: escalate when levels remain, exhaust otherwise
func (s *Scheduler) expireWindow(id string) {
	ctx := context.Background()
	now := time.Now()

	s.mu.Lock()
	e, ok := s.notifications[id]
	if !ok || e.cancelled.Load() || e.n.State != StateDelivered || e.n.UserResponse != "" {
		s.mu.Unlock()
		return
	}

	if e.n.canEscalate(s.cfg) {
		next := e.n.escalate(now)
		s.hours.add(next)
		s.armDeliveryTimer(e)
		n := *e.n
		s.mu.Unlock()

		s.metrics.RecordEscalation(string(n.Type))
		if err := s.audit.UpdateNotification(ctx, &n); err != nil {
			s.logger.Warn("Failed to update audit record", zap.String("id", id), zap.Error(err))
		}
		s.persistInflight(ctx, &n)
		s.publish(&n, EventEscalated)

		s.logger.Info("Notification escalated",
			zap.String("id", id),
			zap.Int("level", n.EscalationLevel),
			zap.Int("max_level", n.MaxEscalations),
			zap.String("priority", string(n.Priority)),
			zap.Time("next_delivery", next),
		)
		return
	}

	e.n.markExhausted(now)
	n := *e.n
	s.mu.Unlock()

	s.metrics.RecordExhausted(string(n.Type))
	s.updateInflightGauge()
	s.finishTerminal(ctx, &n, EventExhausted)

	s.logger.Warn("Notification exhausted without response",
		zap.String("id", id),
		zap.String("type", string(n.Type)),
		zap.Int("escalation_level", n.EscalationLevel),
	)
}

// finishTerminal persists a terminal transition and publishes its event
func (s *Scheduler) finishTerminal(ctx context.Context, n *AdaptiveNotification, kind string) {
	if err := s.audit.UpdateNotification(ctx, n); err != nil {
		s.logger.Warn("Failed to update audit record", zap.String("id", n.ID), zap.Error(err))
	}
	if err := s.state.DeleteNotification(ctx, n.ID); err != nil {
		s.logger.Warn("Failed to drop in-flight record", zap.String("id", n.ID), zap.Error(err))
	}
	s.publish(n, kind)
}

// persistInflight writes the record through to the durable store; failures
// are logged, never fatal to scheduling
func (s *Scheduler) persistInflight(ctx context.Context, n *AdaptiveNotification) {
	if err := s.state.SaveNotification(ctx, n); err != nil {
		s.logger.Warn("Failed to persist in-flight record", zap.String("id", n.ID), zap.Error(err))
	}
}

// publish emits a lifecycle event; failures are logged, never fatal
func (s *Scheduler) publish(n *AdaptiveNotification, kind string) {
	ev := Event{
		NotificationID:  n.ID,
		Kind:            kind,
		Type:            string(n.Type),
		Priority:        string(n.Priority),
		EscalationLevel: n.EscalationLevel,
		Timestamp:       time.Now(),
	}
	if err := s.events.PublishEvent(context.Background(), ev); err != nil {
		s.logger.Warn("Failed to publish lifecycle event",
			zap.String("id", n.ID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) updateInflightGauge() {
	s.metrics.SetInflight(float64(len(s.Inflight())))
}

// defaultPriority picks the priority when the caller leaves it unset
func defaultPriority(t NotificationType) Priority {
	switch t {
	case TypeEmergency:
		return PriorityUrgent
	case TypeAlarm:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// ruleLabel extracts the stable rule name from a trace entry
func ruleLabel(traceEntry string) string {
	if i := strings.Index(traceEntry, ":"); i > 0 {
		return traceEntry[:i]
	}
	return traceEntry
}
