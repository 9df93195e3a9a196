// Package api exposes the queue's operational HTTP surface: scheduling,
// health, and metrics. Job execution stays in the worker processes; this
// server is the producer side.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scheduler persists one scheduled job; the root library function is the
// production implementation.
type Scheduler func(ctx context.Context, name, status string, params any, dueAt time.Time) (int64, error)

// Pinger reports database liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter builds the HTTP router.
func NewRouter(schedule Scheduler, db Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(LimitBody)

	r.Post("/v1/scheduled-jobs", handleSchedule(schedule))
	r.Get("/healthz", handleHealth(db))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type scheduleRequest struct {
	Name   string          `json:"name"`
	Status string          `json:"status"`
	Params json.RawMessage `json:"params,omitempty"`
	DueAt  *time.Time      `json:"due_at,omitempty"`
}

type scheduleResponse struct {
	ID int64 `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func handleSchedule(schedule Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		if req.Name == "" || req.Status == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name and status are required"})
			return
		}

		var params any
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid params"})
				return
			}
		}

		dueAt := time.Now()
		if req.DueAt != nil {
			dueAt = *req.DueAt
		}

		id, err := schedule(r.Context(), req.Name, req.Status, params, dueAt)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not schedule job"})
			return
		}
		writeJSON(w, http.StatusCreated, scheduleResponse{ID: id})
	}
}

func handleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
