package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
)

// Handler exposes the administrative surface over the breaker registry:
// listing breakers, forcing state transitions, and resetting.
type Handler struct {
	logger   *slog.Logger
	registry *circuitbreaker.Registry
}

// breakerView is the wire shape for one breaker: the raw snapshot plus the
// derived values.
type breakerView struct {
	circuitbreaker.Metrics
	SuccessRate float64       `json:"success_rate"`
	TimeInState time.Duration `json:"time_in_state"`
	Healthy     bool          `json:"healthy"`
}

type stateRequest struct {
	State string `json:"state"`
}

func NewHandler(logger *slog.Logger, registry *circuitbreaker.Registry) *Handler {
	return &Handler{
		logger:   logger,
		registry: registry,
	}
}

// Register mounts the admin routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/breakers", h.list)
	mux.HandleFunc("GET /admin/breakers/{name}", h.get)
	mux.HandleFunc("POST /admin/breakers/{name}/reset", h.reset)
	mux.HandleFunc("POST /admin/breakers/{name}/state", h.setState)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	snap := h.registry.Snapshot()

	views := make(map[string]breakerView, len(snap))
	for name, m := range snap {
		views[name] = view(m)
	}

	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	writeJSON(w, http.StatusOK, view(h.registry.Metrics(name)))
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	h.logger.Info("Administrative breaker reset", slog.String("dependency", name))
	h.registry.Reset(name)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	state, err := circuitbreaker.ParseState(req.State)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("Administrative breaker transition",
		slog.String("dependency", name),
		slog.String("state", state.String()))
	h.registry.TransitionTo(name, state)
	w.WriteHeader(http.StatusNoContent)
}

func view(m circuitbreaker.Metrics) breakerView {
	return breakerView{
		Metrics:     m,
		SuccessRate: m.SuccessRate(),
		TimeInState: m.TimeInState(),
		Healthy:     m.IsHealthy(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
