package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"asyncops/pkg/contracts"
	api "asyncops/pkg/contracts/api/v1"
)

// HealthHandler handles health and version requests
type HealthHandler struct {
	version   contracts.VersionInfo
	ops       OperationService
	clients   ClientCounter
	startTime time.Time
}

// NewHealthHandler creates a new health handler. clients may be nil.
func NewHealthHandler(version contracts.VersionInfo, ops OperationService, clients ClientCounter) *HealthHandler {
	return &HealthHandler{
		version:   version,
		ops:       ops,
		clients:   clients,
		startTime: time.Now(),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:           "ok",
		Version:          h.version.Version,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		ActiveOperations: h.ops.ActiveCount(),
		Timestamp:        time.Now().UTC(),
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.ClientCount()
	}
	render.JSON(w, r, resp)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.version)
}
