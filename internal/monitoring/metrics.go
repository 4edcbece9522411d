package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the scheduling engine. Each
// instance carries its own registry so independent engines can coexist.
type Metrics struct {
	registry *prometheus.Registry

	NotificationsScheduled *prometheus.CounterVec
	NotificationsDelivered *prometheus.CounterVec
	NotificationsFailed    *prometheus.CounterVec
	NotificationsExhausted *prometheus.CounterVec
	NotificationsCancelled *prometheus.CounterVec
	Escalations            *prometheus.CounterVec
	AdaptationRulesFired   *prometheus.CounterVec
	RateLimited            prometheus.Counter
	ResponseLatency        *prometheus.HistogramVec
	DeliveryDelay          *prometheus.HistogramVec
	InflightNotifications  prometheus.Gauge
	PatternBuckets         prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		NotificationsScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_scheduled_total",
				Help: "Total number of notifications scheduled",
			},
			[]string{"type", "priority"},
		),
		NotificationsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_delivered_total",
				Help: "Total number of notifications delivered to the platform",
			},
			[]string{"type"},
		),
		NotificationsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_failed_total",
				Help: "Total number of platform delivery failures",
			},
			[]string{"type", "error_type"},
		),
		NotificationsExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_exhausted_total",
				Help: "Total number of notifications that spent all escalation levels",
			},
			[]string{"type"},
		),
		NotificationsCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_cancelled_total",
				Help: "Total number of notifications cancelled before delivery",
			},
			[]string{"type"},
		),
		Escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_escalations_total",
				Help: "Total number of escalation re-schedules",
			},
			[]string{"type"},
		),
		AdaptationRulesFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptation_rules_fired_total",
				Help: "Total number of adaptive timing rule firings",
			},
			[]string{"rule"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notifications_rate_limited_total",
				Help: "Total number of notifications pushed to a later hour by the rate limit",
			},
		),
		ResponseLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_response_latency_seconds",
				Help:    "Time from delivery to user response",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"type", "response"},
		),
		DeliveryDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_delivery_delay_seconds",
				Help:    "Adapted delivery time minus originally requested time",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"type"},
		),
		InflightNotifications: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifications_inflight",
				Help: "Number of notifications currently scheduled or awaiting response",
			},
		),
		PatternBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "behavior_pattern_buckets",
				Help: "Number of distinct behavior pattern buckets",
			},
		),
	}

	// Register all metrics
	metrics.registry.MustRegister(
		metrics.NotificationsScheduled,
		metrics.NotificationsDelivered,
		metrics.NotificationsFailed,
		metrics.NotificationsExhausted,
		metrics.NotificationsCancelled,
		metrics.Escalations,
		metrics.AdaptationRulesFired,
		metrics.RateLimited,
		metrics.ResponseLatency,
		metrics.DeliveryDelay,
		metrics.InflightNotifications,
		metrics.PatternBuckets,
	)

	return metrics
}

// RecordScheduled records a newly scheduled notification
func (m *Metrics) RecordScheduled(notifType, priority string) {
	m.NotificationsScheduled.WithLabelValues(notifType, priority).Inc()
}

// RecordDelivered records a successful platform delivery
func (m *Metrics) RecordDelivered(notifType string) {
	m.NotificationsDelivered.WithLabelValues(notifType).Inc()
}

// RecordFailed records a platform delivery failure
func (m *Metrics) RecordFailed(notifType, errorType string) {
	m.NotificationsFailed.WithLabelValues(notifType, errorType).Inc()
}

// RecordExhausted records a notification reaching the terminal exhausted state
func (m *Metrics) RecordExhausted(notifType string) {
	m.NotificationsExhausted.WithLabelValues(notifType).Inc()
}

// RecordCancelled records a caller-initiated cancellation
func (m *Metrics) RecordCancelled(notifType string) {
	m.NotificationsCancelled.WithLabelValues(notifType).Inc()
}

// RecordEscalation records one escalation re-schedule
func (m *Metrics) RecordEscalation(notifType string) {
	m.Escalations.WithLabelValues(notifType).Inc()
}

// RecordRuleFired records one adaptive timing rule firing
func (m *Metrics) RecordRuleFired(rule string) {
	m.AdaptationRulesFired.WithLabelValues(rule).Inc()
}

// RecordRateLimited records a rate-limit push
func (m *Metrics) RecordRateLimited() {
	m.RateLimited.Inc()
}

// RecordResponseLatency records the delivery-to-response latency
func (m *Metrics) RecordResponseLatency(notifType, response string, seconds float64) {
	m.ResponseLatency.WithLabelValues(notifType, response).Observe(seconds)
}

// RecordDeliveryDelay records the adapted-minus-scheduled delay
func (m *Metrics) RecordDeliveryDelay(notifType string, seconds float64) {
	m.DeliveryDelay.WithLabelValues(notifType).Observe(seconds)
}

// SetInflight sets the current in-flight notification count
func (m *Metrics) SetInflight(count float64) {
	m.InflightNotifications.Set(count)
}

// SetPatternBuckets sets the current pattern bucket count
func (m *Metrics) SetPatternBuckets(count float64) {
	m.PatternBuckets.Set(count)
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
