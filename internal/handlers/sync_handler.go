package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

// SyncHandler exposes the sync engine status and controls
type SyncHandler struct {
	engine *services.SyncEngine
	queue  *services.OfflineQueue
	// nil unless connectivity is in manual mode
	manual *services.ConnectivityMonitor
}

// NewSyncHandler creates a new SyncHandler. manual may be nil.
func NewSyncHandler(engine *services.SyncEngine, queue *services.OfflineQueue, manual *services.ConnectivityMonitor) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		queue:  queue,
		manual: manual,
	}
}

// GetStatus returns the current sync status
// @Summary Get sync status
// @Description Connectivity, pending operation count and the last sync error
// @Tags sync
// @Produce json
// @Success 200 {object} models.SyncStatus
// @Security ApiKeyAuth
// @Router /api/sync/status [get]
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// GetQueue lists the operations waiting to be replayed
// @Summary List pending operations
// @Tags sync
// @Produce json
// @Success 200 {object} models.QueueResponse
// @Security ApiKeyAuth
// @Router /api/sync/queue [get]
func (h *SyncHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	ops := h.queue.Snapshot()
	respondJSON(w, http.StatusOK, models.QueueResponse{Operations: ops, Count: len(ops)})
}

// ForceSync starts replaying the queue immediately
// @Summary Force a sync
// @Description Starts draining the offline queue now. The replay runs in the background.
// @Tags sync
// @Produce json
// @Success 202 {object} models.ForceSyncResponse
// @Failure 409 {object} models.ForceSyncResponse "Offline"
// @Security ApiKeyAuth
// @Router /api/sync/force [post]
func (h *SyncHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RequestSync(r.Context()); errors.Is(err, services.ErrOffline) {
		respondJSON(w, http.StatusConflict, models.ForceSyncResponse{Accepted: false, Status: h.engine.Status()})
		return
	}
	respondJSON(w, http.StatusAccepted, models.ForceSyncResponse{Accepted: true, Status: h.engine.Status()})
}

// SetConnectivity overrides connectivity in manual mode
// @Summary Set connectivity
// @Description Only available when sync.connectivityMode is manual
// @Tags sync
// @Accept json
// @Produce json
// @Param request body models.ConnectivityRequest true "New state"
// @Success 200 {object} models.SyncStatus
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "Connectivity is probed automatically"
// @Security ApiKeyAuth
// @Router /api/sync/connectivity [put]
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	if h.manual == nil {
		respondError(w, http.StatusConflict, "Connectivity is probed automatically.")
		return
	}

	var req models.ConnectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	h.manual.Set(req.Online)
	respondJSON(w, http.StatusOK, h.engine.Status())
}
