package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/observability"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		observability.Warnf("Failed to write response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}
