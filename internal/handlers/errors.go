package handlers

import (
	"errors"
	"log"
	"net/http"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/services"
	"dispatch-backend/pkg/utils"
)

// respondServiceError maps service errors to HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	var transition *services.TransitionError

	switch {
	case errors.As(err, &transition):
		utils.RespondError(w, http.StatusBadRequest, transition.Error())
	case errors.Is(err, services.ErrNoValidStops):
		utils.RespondError(w, http.StatusBadRequest, "No deliveries with valid coordinates")
	case errors.Is(err, services.ErrInvalidInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrDeliveryNotFound), errors.Is(err, database.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "Delivery not found")
	case errors.Is(err, services.ErrDeliveryNotCompleted):
		utils.RespondError(w, http.StatusNotFound, "Delivery not found or not completed")
	case errors.Is(err, services.ErrTrackingDisabled):
		utils.RespondError(w, http.StatusServiceUnavailable, "Tracking is not available")
	case errors.Is(err, services.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Invalid or expired tracking code")
	case errors.Is(err, services.ErrLocationUnavailable):
		utils.RespondError(w, http.StatusNotFound, "Driver location not available")
	case errors.Is(err, services.ErrProviderHard):
		log.Printf("❌ Route provider failure: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "Route optimization failed")
	default:
		log.Printf("❌ Internal error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
