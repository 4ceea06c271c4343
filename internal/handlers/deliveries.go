package handlers

import (
	"net/http"

	"dispatch-backend/internal/middleware"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services"
	"dispatch-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// GetMyDeliveries lists the driver's active deliveries with any live tracking code
func GetMyDeliveries(deliveries *services.DeliveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)

		list, err := deliveries.ListDriverDeliveries(r.Context(), user.UserID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, list)
	}
}

// UpdateDeliveryStatus applies a driver status transition
func UpdateDeliveryStatus(deliveries *services.DeliveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)
		deliveryID := chi.URLParam(r, "id")

		var req models.UpdateStatusRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Status == "" {
			utils.RespondError(w, http.StatusBadRequest, "status is required")
			return
		}

		stop, err := deliveries.UpdateStatus(r.Context(), user.UserID, deliveryID, req)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, stop)
	}
}

// GenerateTrackingCode returns the delivery's tracking code, issuing one if none is live
func GenerateTrackingCode(deliveries *services.DeliveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)
		deliveryID := chi.URLParam(r, "id")

		session, err := deliveries.IssueTrackingCode(r.Context(), user.UserID, deliveryID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, models.TrackingCodeResponse{
			TrackingCode: session.TrackingCode,
			ExpiresAt:    session.ExpiresAt,
		})
	}
}

// GetDeliveryStats returns the driver's counters for today
func GetDeliveryStats(deliveries *services.DeliveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)

		stats, err := deliveries.Stats(r.Context(), user.UserID)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, stats)
	}
}

// UploadDeliveryProof attaches a signature, photo URL or notes to a delivered stop
func UploadDeliveryProof(deliveries *services.DeliveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)
		deliveryID := chi.URLParam(r, "id")

		var req models.UploadProofRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		proof, err := deliveries.UploadProof(r.Context(), user.UserID, deliveryID, req)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		utils.RespondData(w, http.StatusOK, proof)
	}
}
