package handlers

import (
	"net/http"

	"dispatch-backend/internal/middleware"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services"
	"dispatch-backend/pkg/utils"
)

// UpdateLocation records the driver's position over HTTP, for clients without a socket
func UpdateLocation(locations *services.LocationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)

		var req models.LocationUpdateRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		accepted, err := locations.Update(r.Context(), user.UserID, req)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, map[string]bool{"accepted": accepted})
	}
}
