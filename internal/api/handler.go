// Package api is the orchestrator's read-only HTTP surface: thin projections
// of event memory plus health and metrics endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/majordomo-home/majordomo/internal/dispatch"
	"github.com/majordomo-home/majordomo/internal/memory"
	"github.com/majordomo-home/majordomo/internal/queue"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	mem        *memory.Memory
	q          *queue.Queue
	dispatcher *dispatch.Dispatcher
	mux        *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(mem *memory.Memory, q *queue.Queue, d *dispatch.Dispatcher) http.Handler {
	h := &Handler{mem: mem, q: q, dispatcher: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/events/recent", h.recentEvents)
	h.mux.HandleFunc("GET /api/events/context", h.eventContext)
	h.mux.HandleFunc("GET /api/events/stats", h.eventStats)
	h.mux.HandleFunc("GET /api/actions", h.listActions)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// GET /api/events/recent?minutes&module&event_type — recency query over
// event memory, newest first.
func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	minutes := 30
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		minutes = n
	}
	module := r.URL.Query().Get("module")
	eventType := r.URL.Query().Get("event_type")

	events := h.mem.QueryRecent(time.Duration(minutes)*time.Minute, module, eventType)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": len(events),
		"query": map[string]interface{}{
			"minutes":    minutes,
			"module":     module,
			"event_type": eventType,
		},
		"events": events,
	})
}

// GET /api/events/context?query&max_events — rendered context for the
// question-answering layer.
func (h *Handler) eventContext(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	maxEvents := 5
	if raw := r.URL.Query().Get("max_events"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max_events must be a positive integer")
			return
		}
		maxEvents = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"context": h.mem.ContextForQuery(query, maxEvents),
		"stats":   h.mem.Stats(),
	})
}

// GET /api/events/stats — event memory summary.
func (h *Handler) eventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mem.Stats())
}

// GET /api/actions?module — the dispatcher's catalog view.
func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modules": h.dispatcher.AvailableActions(r.URL.Query().Get("module")),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the event queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.q.Utilization()
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
