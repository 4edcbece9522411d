package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wakewise/notification-engine/internal/monitoring"
	"github.com/wakewise/notification-engine/internal/patterns"
	"github.com/wakewise/notification-engine/internal/scheduler"
)

// Handler holds dependencies for REST API handlers
type Handler struct {
	scheduler *scheduler.Scheduler
	patterns  *patterns.Store
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	validate  *validator.Validate
}

// NewHandler creates a new REST API handler
func NewHandler(
	sched *scheduler.Scheduler,
	store *patterns.Store,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		scheduler: sched,
		patterns:  store,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
	}
}

// ScheduleResponse is returned when a notification is scheduled
type ScheduleResponse struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	ScheduledAt time.Time `json:"scheduled_at"`
	AdaptedAt   time.Time `json:"adapted_at"`
	Trace       []string  `json:"trace"`
}

// ResponseRequest is the request body for recording a user response
type ResponseRequest struct {
	Response  string `json:"response" validate:"required,oneof=dismissed snoozed ignored"`
	LatencyMS int64  `json:"latency_ms" validate:"gte=0"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ScheduleNotification handles POST /api/v1/notifications
func (h *Handler) ScheduleNotification(w http.ResponseWriter, r *http.Request) {
	var req scheduler.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode schedule request", zap.Error(err))
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	n, err := h.scheduler.Schedule(r.Context(), req)
	if err != nil {
		h.logger.Error("Failed to schedule notification", zap.Error(err))
		h.writeErrorResponse(w, fmt.Sprintf("Failed to schedule notification: %v", err), http.StatusBadRequest)
		return
	}

	response := ScheduleResponse{
		ID:          n.ID,
		State:       string(n.State),
		ScheduledAt: n.ScheduledAt,
		AdaptedAt:   n.AdaptedAt,
		Trace:       n.AdaptationTrace,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// GetNotification handles GET /api/v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	n, err := h.scheduler.Status(id)
	if err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			h.writeErrorResponse(w, "Notification not found", http.StatusNotFound)
		} else {
			h.logger.Error("Failed to get notification", zap.Error(err), zap.String("id", id))
			h.writeErrorResponse(w, "Failed to retrieve notification", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(n)
}

// ListInflight handles GET /api/v1/notifications
func (h *Handler) ListInflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.scheduler.Inflight())
}

// CancelNotification handles DELETE /api/v1/notifications/{id}
func (h *Handler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.scheduler.Cancel(r.Context(), id); err != nil {
		h.logger.Error("Failed to cancel notification", zap.Error(err), zap.String("id", id))
		h.writeErrorResponse(w, "Failed to cancel notification", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecordResponse handles POST /api/v1/notifications/{id}/response
func (h *Handler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req ResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode response request", zap.Error(err))
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeErrorResponse(w, fmt.Sprintf("Validation error: %v", err), http.StatusBadRequest)
		return
	}

	latency := time.Duration(req.LatencyMS) * time.Millisecond
	err := h.scheduler.RecordResponse(r.Context(), id, patterns.ResponseKind(req.Response), latency)
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		h.writeErrorResponse(w, "Notification not found", http.StatusNotFound)
	case errors.Is(err, scheduler.ErrNotAwaitingResponse):
		h.writeErrorResponse(w, "Notification is not awaiting a response", http.StatusConflict)
	case err != nil:
		h.logger.Error("Failed to record response", zap.Error(err), zap.String("id", id))
		h.writeErrorResponse(w, "Failed to record response", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetConfig handles GET /api/v1/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.scheduler.GetConfig())
}

// UpdateConfig handles PATCH /api/v1/config. Invalid patches are rejected
// whole; the active config is never partially applied.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch scheduler.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.logger.Error("Failed to decode config patch", zap.Error(err))
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	merged, err := h.scheduler.UpdateConfig(r.Context(), patch)
	if err != nil {
		h.logger.Error("Config update rejected", zap.Error(err))
		h.writeErrorResponse(w, fmt.Sprintf("Validation error: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(merged)
}

// GetPatterns handles GET /api/v1/patterns
func (h *Handler) GetPatterns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.patterns.Snapshot())
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "notification-engine",
		"version":   "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// Metrics handles GET /metrics (Prometheus metrics)
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.Handler().ServeHTTP(w, r)
}

// writeErrorResponse writes an error response
func (h *Handler) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// SetupRoutes sets up all REST API routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/notifications", h.ScheduleNotification).Methods("POST")
	api.HandleFunc("/notifications", h.ListInflight).Methods("GET")
	api.HandleFunc("/notifications/{id}", h.GetNotification).Methods("GET")
	api.HandleFunc("/notifications/{id}", h.CancelNotification).Methods("DELETE")
	api.HandleFunc("/notifications/{id}/response", h.RecordResponse).Methods("POST")
	api.HandleFunc("/config", h.GetConfig).Methods("GET")
	api.HandleFunc("/config", h.UpdateConfig).Methods("PATCH")
	api.HandleFunc("/patterns", h.GetPatterns).Methods("GET")

	// Health and metrics
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/metrics", h.Metrics).Methods("GET")

	// Add middleware
	router.Use(h.loggingMiddleware)
	router.Use(h.corsMiddleware)

	return router
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response recorder to capture status code
		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		h.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.statusCode),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// corsMiddleware adds CORS headers
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseRecorder wraps http.ResponseWriter to capture status code
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
