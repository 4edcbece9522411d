package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wakewise/notification-engine/internal/devicectx"
	"github.com/wakewise/notification-engine/internal/monitoring"
	"github.com/wakewise/notification-engine/internal/patterns"
	"github.com/wakewise/notification-engine/internal/platform"
	"github.com/wakewise/notification-engine/internal/scheduler"
)

type staticSource struct{}

func (staticSource) Current() devicectx.NotificationContext {
	return devicectx.DefaultContext(time.Now())
}

type nopAudit struct{}

func (nopAudit) InsertNotification(ctx context.Context, n *scheduler.AdaptiveNotification) error {
	return nil
}
func (nopAudit) UpdateNotification(ctx context.Context, n *scheduler.AdaptiveNotification) error {
	return nil
}

type nopState struct{}

func (nopState) SaveNotification(ctx context.Context, n *scheduler.AdaptiveNotification) error {
	return nil
}
func (nopState) DeleteNotification(ctx context.Context, id string) error { return nil }
func (nopState) SavePattern(ctx context.Context, key patterns.Key, p patterns.Pattern) error {
	return nil
}
func (nopState) SaveConfig(ctx context.Context, cfg scheduler.Config) error { return nil }
func (nopState) AppendTrace(ctx context.Context, entry string) error        { return nil }

type nopEvents struct{}

func (nopEvents) PublishEvent(ctx context.Context, ev scheduler.Event) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Send(ctx context.Context, req platform.Request) (string, error) {
	return "platform-1", nil
}
func (nopNotifier) Cancel(ctx context.Context, platformID string) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *patterns.Store) {
	t.Helper()

	logger := zap.NewNop()
	store := patterns.NewStore(logger)
	cfg := scheduler.DefaultConfig()
	cfg.AdaptiveEnabled = false

	engine := scheduler.New(cfg, staticSource{}, store, nopNotifier{}, nopAudit{}, nopState{}, nopEvents{},
		monitoring.NewMetrics(), logger)

	handler := NewHandler(engine, store, monitoring.NewMetrics(), logger)
	return handler.SetupRoutes(), store
}

func scheduleBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"type":         "reminder",
		"title":        "Drink water",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestScheduleEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/notifications", scheduleBody(t)))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "scheduled", resp.State)
	assert.Empty(t, resp.Trace)
}

func TestScheduleEndpointRejectsBadBody(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"unknown type", `{"type":"newsletter","title":"x","scheduled_at":"2026-03-10T07:00:00Z"}`},
		{"missing title", `{"type":"alarm","scheduled_at":"2026-03-10T07:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/notifications", bytes.NewBufferString(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetNotificationLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/notifications", scheduleBody(t)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/notifications/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var n scheduler.AdaptiveNotification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, created.ID, n.ID)
	assert.Equal(t, scheduler.StateScheduled, n.State)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/v1/notifications/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/notifications/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, scheduler.StateCancelled, n.State)
}

func TestGetNotificationNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/notifications/no-such-id", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordResponseEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	// Schedule a due notification and wait for delivery so a response window
	// is open.
	body, err := json.Marshal(map[string]interface{}{
		"type":         "alarm",
		"title":        "Wake up",
		"scheduled_at": time.Now().Add(-time.Second).Format(time.RFC3339),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/notifications", bytes.NewBuffer(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/notifications/"+created.ID, nil))
		var n scheduler.AdaptiveNotification
		if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
			return false
		}
		return n.State == scheduler.StateDelivered
	}, 2*time.Second, 10*time.Millisecond)

	respond := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST",
			fmt.Sprintf("/api/v1/notifications/%s/response", created.ID),
			bytes.NewBufferString(`{"response":"dismissed","latency_ms":1200}`)))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, respond().Code)
	// Set-once: the second response conflicts.
	assert.Equal(t, http.StatusConflict, respond().Code)
}

func TestRecordResponseRejectsUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/notifications/some-id/response",
		bytes.NewBufferString(`{"response":"archived","latency_ms":100}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var cfg scheduler.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 4, cfg.MaxNotificationsPerHour)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PATCH", "/api/v1/config",
		bytes.NewBufferString(`{"max_notifications_per_hour":9}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 9, cfg.MaxNotificationsPerHour)

	// Invalid patches bounce without touching the active config.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PATCH", "/api/v1/config",
		bytes.NewBufferString(`{"max_notifications_per_hour":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/config", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 9, cfg.MaxNotificationsPerHour)
}

func TestPatternsEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	store.Record(patterns.Observation{
		Type:      "alarm",
		TimeOfDay: devicectx.TimeOfDayMorning,
		Response:  patterns.ResponseDismissed,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/patterns", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot map[string]patterns.Pattern
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Contains(t, snapshot, "alarm:morning")
	assert.EqualValues(t, 1, snapshot["alarm:morning"].Samples)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
}
