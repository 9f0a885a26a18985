package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the store and cache are reachable.
type HealthHandler struct {
	store Pinger
	cache Pinger
}

func NewHealthHandler(store, cache Pinger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Cache  string `json:"cache"`
}

// HandleHealth handles GET /healthz. The store is required; a cache outage
// only degrades the service, so it still answers 200.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Store: "ok", Cache: "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		resp.Status, resp.Store = "unavailable", "down"
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(ctx); err != nil {
		resp.Cache = "down"
		if status == http.StatusOK {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, status, resp)
}
