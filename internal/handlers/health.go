package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/sbilibin2017/user-service/internal/config"
)

// HealthResponse represents the liveness payload
// swagger:model HealthResponse
type HealthResponse struct {
	// default: healthy
	Status string `json:"status"`

	// default: user-service
	App string `json:"app"`

	// default: 0.1.0
	Version string `json:"version"`
}

// MessageResponse represents a plain message
// swagger:model MessageResponse
type MessageResponse struct {
	Message string `json:"message"`
}

// NewHealthHandler returns the liveness probe. It never touches the pool.
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} handlers.HealthResponse
// @Router /health [get]
func NewHealthHandler(app config.App) http.HandlerFunc {
	resp := HealthResponse{Status: "healthy", App: app.Name, Version: app.Version}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewRootHandler returns the welcome message.
// @Summary Welcome message
// @Tags health
// @Produce json
// @Success 200 {object} handlers.MessageResponse
// @Router / [get]
func NewRootHandler(app config.App) http.HandlerFunc {
	resp := MessageResponse{Message: "Welcome to " + app.Name}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewReadyHandler returns the readiness probe. It reports 503 while ready is false.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} handlers.MessageResponse
// @Failure 503 {object} handlers.ErrorResponse
// @Router /ready [get]
func NewReadyHandler(ready *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			writeDetail(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "ready"})
	}
}
