package handlers

import (
	"net/http"

	"dispatch-backend/internal/services"
	"dispatch-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// GetTracking is the public view behind a tracking code
func GetTracking(tracking *services.TrackingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := tracking.View(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, view)
	}
}

// GetTrackingETA estimates the driver's arrival at the tracked delivery
func GetTrackingETA(tracking *services.TrackingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eta, err := tracking.ETA(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, eta)
	}
}
