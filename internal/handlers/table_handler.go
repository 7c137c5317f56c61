package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

const maxBodyBytes = 1 << 20

// TableHandler exposes the offline gateway as a REST data API over the practice tables
type TableHandler struct {
	gateway *services.OfflineGateway
}

// NewTableHandler creates a new TableHandler
func NewTableHandler(gateway *services.OfflineGateway) *TableHandler {
	return &TableHandler{gateway: gateway}
}

// Select reads rows from a table
// @Summary Read rows
// @Description Reads rows from the remote service. Query parameters other than select are equality conditions.
// @Tags tables
// @Produce json
// @Param table path string true "Table name"
// @Param select query string false "Comma separated columns"
// @Success 200 {object} models.DataResponse
// @Failure 404 {object} models.DataResponse
// @Failure 502 {object} models.DataResponse
// @Security ApiKeyAuth
// @Router /api/tables/{table} [get]
func (h *TableHandler) Select(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	rows, err := h.gateway.Select(r.Context(), table, r.URL.Query().Get("select"), conditionsFromQuery(r))
	if err != nil {
		h.respondFailure(w, r, table, err)
		return
	}
	respondJSON(w, http.StatusOK, models.DataResponse{Data: rows})
}

// Insert creates a row
// @Summary Insert a row
// @Description Writes through to the remote service when online. Offline the row is queued and returned with a generated id.
// @Tags tables
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Success 201 {object} models.DataResponse "Written to the remote service"
// @Success 202 {object} models.DataResponse "Queued for replay"
// @Failure 400 {object} models.DataResponse
// @Security ApiKeyAuth
// @Router /api/tables/{table} [post]
func (h *TableHandler) Insert(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	row, ok := decodeRow(w, r)
	if !ok {
		return
	}

	out, queued, err := h.gateway.Insert(r.Context(), table, row)
	if err != nil {
		h.respondFailure(w, r, table, err)
		return
	}
	respondJSON(w, writeStatus(queued, http.StatusCreated), models.DataResponse{Data: out, Queued: queued})
}

// Update changes the rows matching the query conditions
// @Summary Update rows
// @Tags tables
// @Accept json
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {object} models.DataResponse "Written to the remote service"
// @Success 202 {object} models.DataResponse "Queued for replay"
// @Failure 400 {object} models.DataResponse "No conditions given"
// @Security ApiKeyAuth
// @Router /api/tables/{table} [patch]
func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	row, ok := decodeRow(w, r)
	if !ok {
		return
	}

	rows, queued, err := h.gateway.Update(r.Context(), table, row, conditionsFromQuery(r))
	if err != nil {
		h.respondFailure(w, r, table, err)
		return
	}
	respondJSON(w, writeStatus(queued, http.StatusOK), models.DataResponse{Data: rows, Queued: queued})
}

// Delete removes the rows matching the query conditions
// @Summary Delete rows
// @Tags tables
// @Produce json
// @Param table path string true "Table name"
// @Success 200 {object} models.DataResponse "Written to the remote service"
// @Success 202 {object} models.DataResponse "Queued for replay"
// @Failure 400 {object} models.DataResponse "No conditions given"
// @Security ApiKeyAuth
// @Router /api/tables/{table} [delete]
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}

	rows, queued, err := h.gateway.Delete(r.Context(), table, conditionsFromQuery(r))
	if err != nil {
		h.respondFailure(w, r, table, err)
		return
	}
	respondJSON(w, writeStatus(queued, http.StatusOK), models.DataResponse{Data: rows, Queued: queued})
}

func (h *TableHandler) table(w http.ResponseWriter, r *http.Request) (string, bool) {
	table := chi.URLParam(r, "table")
	if !models.IsKnownTable(table) {
		respondJSON(w, http.StatusNotFound, models.DataResponse{
			Error: &models.APIError{Message: models.ErrUnknownTable.Error() + ": " + table},
		})
		return "", false
	}
	return table, true
}

// respondFailure maps gateway errors onto the {data, error} envelope.
// Remote errors keep the remote status; transport failures become 502.
func (h *TableHandler) respondFailure(w http.ResponseWriter, r *http.Request, table string, err error) {
	var remoteErr *services.RemoteError
	var opErr models.OperationError

	switch {
	case errors.As(err, &remoteErr):
		status := remoteErr.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		respondJSON(w, status, models.DataResponse{Error: &models.APIError{
			Message: remoteErr.Message,
			Code:    remoteErr.Code,
			Details: remoteErr.Details,
			Hint:    remoteErr.Hint,
		}})
	case errors.As(err, &opErr):
		respondJSON(w, http.StatusBadRequest, models.DataResponse{Error: &models.APIError{Message: opErr.Error()}})
	default:
		observability.WithContext(r.Context()).WithField("table", table).Warnf("Remote request failed: %v", err)
		respondJSON(w, http.StatusBadGateway, models.DataResponse{Error: &models.APIError{Message: err.Error()}})
	}
}

func writeStatus(queued bool, direct int) int {
	if queued {
		return http.StatusAccepted
	}
	return direct
}

// conditionsFromQuery turns every query parameter except select into an equality condition
func conditionsFromQuery(r *http.Request) models.Conditions {
	conditions := models.Conditions{}
	for key, values := range r.URL.Query() {
		if key == "select" || len(values) == 0 {
			continue
		}
		conditions[key] = values[0]
	}
	return conditions
}

func decodeRow(w http.ResponseWriter, r *http.Request) (models.Row, bool) {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.UseNumber()

	var row models.Row
	if err := decoder.Decode(&row); err != nil || row == nil {
		respondJSON(w, http.StatusBadRequest, models.DataResponse{
			Error: &models.APIError{Message: "request body must be a JSON object"},
		})
		return nil, false
	}
	return row, true
}
