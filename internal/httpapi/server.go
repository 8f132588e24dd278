// Package httpapi is the thin HTTP surface: a chi router exposing goal
// submission, DAG execution, and a live SSE event stream. It contains no
// planning or execution logic of its own; every handler is a thin
// adapter over app.App's planner/executor/event bus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dagplan/dagplan/internal/app"
	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/executor"
	"github.com/dagplan/dagplan/internal/planner"
)

// NewRouter builds the full chi router for a, wiring CORS, request
// logging, and the engine endpoints.
func NewRouter(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(a))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h := &handler{app: a}
	r.Post("/goals", h.createGoal)
	r.Post("/dags/{id}/execute", h.executeDAG)
	r.Get("/executions/{id}/events", h.streamEvents)

	return r
}

func requestLogger(a *app.App) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			a.Logger.Info("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type handler struct {
	app *app.App
}

var errStreamingUnsupported = errors.New("httpapi: response writer does not support streaming")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// createGoalRequest is the POST /goals body.
type createGoalRequest struct {
	GoalText       string   `json:"goalText"`
	AgentName      string   `json:"agentName"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      *int     `json:"maxTokens"`
	CronSchedule   string   `json:"cronSchedule"`
	ScheduleActive bool     `json:"scheduleActive"`
	Timezone       string   `json:"timezone"`
}

func (h *handler) createGoal(w http.ResponseWriter, r *http.Request) {
	var body createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.AgentName == "" {
		body.AgentName = "decomposer"
	}
	if body.Provider == "" {
		body.Provider = h.app.Config.DefaultProvider
	}
	if body.Model == "" {
		body.Model = h.app.Config.DefaultModel
	}
	if body.Timezone == "" {
		body.Timezone = h.app.Config.DefaultTimezone
	}

	result, err := h.app.Planner.CreateFromGoal(r.Context(), planner.CreateFromGoalOptions{
		GoalText:       body.GoalText,
		AgentName:      body.AgentName,
		Provider:       body.Provider,
		Model:          body.Model,
		Temperature:    body.Temperature,
		MaxTokens:      body.MaxTokens,
		CronSchedule:   body.CronSchedule,
		ScheduleActive: body.ScheduleActive,
		Timezone:       body.Timezone,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *handler) executeDAG(w http.ResponseWriter, r *http.Request) {
	dagID := chi.URLParam(r, "id")

	executionID, err := h.app.Executor.Execute(r.Context(), dagID, executor.ExecutionConfig{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	go h.app.NotifyTerminalEvents(context.Background(), executionID)

	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": executionID})
}

// streamEvents serves executionID's lifecycle events as SSE, closing the
// stream once a terminal event is written (eventbus.IsTerminal).
func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errStreamingUnsupported)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.app.Bus.Stream(r.Context(), executionID) {
		writeSSEEvent(w, ev)
		flusher.Flush()
	}
}

func writeSSEEvent(w http.ResponseWriter, ev eventbus.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + string(ev.Type) + "\n"))
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
