package handlers

import (
	"net/http"
	"time"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	engine *services.SyncEngine
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(engine *services.SyncEngine) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// HealthCheck returns the server health status. Being offline is not unhealthy.
// @Summary Health check
// @Description Returns the current health status of the server
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse "Server is healthy"
// @Router /api/health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:            "healthy",
		Timestamp:         time.Now().UTC(),
		Online:            status.IsOnline,
		PendingOperations: status.PendingOperations,
	})
}
