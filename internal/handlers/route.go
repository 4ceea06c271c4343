package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/middleware"
	"dispatch-backend/internal/models"
	"dispatch-backend/internal/services"
	"dispatch-backend/pkg/utils"
)

// ActiveStopSource loads a driver's still-active stops by ID
type ActiveStopSource interface {
	ActiveStopsForDriver(ctx context.Context, driverID string, ids []string) ([]models.Stop, error)
}

// LastLocation returns a driver's last reported position
type LastLocation interface {
	Get(ctx context.Context, driverID string) (*models.DriverLocation, error)
}

// OptimizeRoute orders the driver's selected deliveries starting from their current location
func OptimizeRoute(stops ActiveStopSource, optimizer *services.RouteOptimizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)

		var req models.OptimizeRouteRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(req.DeliveryIDs) == 0 {
			utils.RespondError(w, http.StatusBadRequest, "delivery_ids is required")
			return
		}
		if req.CurrentLocation == nil {
			utils.RespondError(w, http.StatusBadRequest, "current_location is required")
			return
		}

		log.Printf("🚗 Driver %s requested optimization of %d deliveries", user.UserID, len(req.DeliveryIDs))

		selected, err := stops.ActiveStopsForDriver(r.Context(), user.UserID, req.DeliveryIDs)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		opts := services.OptimizeOptions{DriverID: user.UserID}
		var route *models.Route
		if req.UseTraffic {
			route, err = optimizer.OptimizeWithTraffic(r.Context(), selected, *req.CurrentLocation, opts)
		} else {
			route, err = optimizer.Optimize(r.Context(), selected, *req.CurrentLocation, opts)
		}
		if err != nil {
			respondServiceError(w, err)
			return
		}

		utils.RespondData(w, http.StatusOK, route)
	}
}

// RefreshRoute re-plans the deliveries the driver has left. Without current_location the
// driver's last reported position is used.
func RefreshRoute(stops ActiveStopSource, locations LastLocation, optimizer *services.RouteOptimizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.GetUserFromContext(r)

		var req models.RefreshRouteRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(req.RemainingDeliveryIDs) == 0 {
			utils.RespondError(w, http.StatusBadRequest, "remaining_delivery_ids is required")
			return
		}

		current := req.CurrentLocation
		if current == nil {
			loc, err := locations.Get(r.Context(), user.UserID)
			if errors.Is(err, database.ErrNotFound) {
				utils.RespondError(w, http.StatusBadRequest, "current_location is required")
				return
			}
			if err != nil {
				respondServiceError(w, err)
				return
			}
			c := loc.Coordinate()
			current = &c
		}

		remaining, err := stops.ActiveStopsForDriver(r.Context(), user.UserID, req.RemainingDeliveryIDs)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		route, err := optimizer.Refresh(r.Context(), remaining, *current, services.RefreshOptions{
			OptimizeOptions: services.OptimizeOptions{DriverID: user.UserID},
			UseTraffic:      req.UseTraffic,
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}

		utils.RespondData(w, http.StatusOK, route)
	}
}
