// Package dashboard serves the read-side HTTP API: recent evaluations,
// metrics, resource risk profiles, agent records, and incident search.
// Mounted on the same listener as the A2A endpoints.
package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"sentinel/internal/governance"
	"sentinel/internal/model"
)

// Handler routes the /api tree.
type Handler struct {
	svc *governance.Service
}

// New builds the dashboard handler.
func New(svc *governance.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes returns the route table to mount on the server mux.
func (h *Handler) Routes() map[string]http.Handler {
	return map[string]http.Handler{
		"GET /api/evaluations":           http.HandlerFunc(h.evaluations),
		"GET /api/evaluations/{id}":      http.HandlerFunc(h.evaluationByID),
		"GET /api/metrics":               http.HandlerFunc(h.metrics),
		"GET /api/resources/{id}/risk":   http.HandlerFunc(h.resourceRisk),
		"GET /api/agents":                http.HandlerFunc(h.agents),
		"GET /api/agents/{name}/history": http.HandlerFunc(h.agentHistory),
		"GET /api/incidents/search":      http.HandlerFunc(h.incidentSearch),
	}
}

func (h *Handler) evaluations(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	resource := r.URL.Query().Get("resource")
	verdicts, err := h.svc.RecentDecisions(r.Context(), limit, resource)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"evaluations": verdicts, "count": len(verdicts)})
}

func (h *Handler) evaluationByID(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.DecisionByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, v)
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, m)
}

func (h *Handler) resourceRisk(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ResourceRiskProfile(r.Context(), r.PathValue("id"), queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

func (h *Handler) agents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.svc.Agents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *Handler) agentHistory(w http.ResponseWriter, r *http.Request) {
	agent, verdicts, err := h.svc.AgentHistory(r.Context(), r.PathValue("name"), queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"agent": agent, "history": verdicts})
}

func (h *Handler) incidentSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, `missing required query parameter "q"`, http.StatusBadRequest)
		return
	}
	hits := h.svc.SearchIncidents(q, queryLimit(r))
	writeJSON(w, map[string]any{"hits": hits, "count": len(hits)})
}

// queryLimit parses the limit query parameter, clamped to [1,100] with
// a default of 20.
func queryLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 20
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("dashboard request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
