package services

import (
	"log"
	"math"
	"time"

	"dispatch-backend/internal/models"
)

// PlanNearestNeighbor orders stops by repeatedly visiting the closest remaining stop
// (great-circle distance) from the current position. It performs no I/O.
//
// Ties go to the stop that appears first in the input, so the output is deterministic.
// Stops without valid coordinates are skipped. Runs in O(n²), fine for a driver's daily batch.
func PlanNearestNeighbor(stops []models.Stop, start models.Coordinate) *models.Route {
	type candidate struct {
		stop  models.Stop
		coord models.Coordinate
	}

	remaining := make([]candidate, 0, len(stops))
	for _, s := range stops {
		if c, ok := s.Coordinate(); ok {
			remaining = append(remaining, candidate{stop: s, coord: c})
		}
	}

	ordered := make([]models.Stop, 0, len(remaining))
	legs := make([]int, 0, len(remaining))
	current := start
	totalDistance := 0.0

	for len(remaining) > 0 {
		bestIdx := 0
		bestDistance := math.MaxFloat64

		for i, c := range remaining {
			distance := distanceBetween(current, c.coord)
			// Strict comparison keeps the first stop on ties
			if distance < bestDistance {
				bestDistance = distance
				bestIdx = i
			}
		}

		best := remaining[bestIdx]
		ordered = append(ordered, best.stop)
		legs = append(legs, int(math.Round(bestDistance)))
		totalDistance += bestDistance
		current = best.coord

		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	visits := buildVisits(ordered)
	for i := range visits {
		visits[i].DistanceFromPreviousMeters = legs[i]
	}

	return &models.Route{
		Visits:               visits,
		TotalDistanceMeters:  int(math.Round(totalDistance)),
		TotalDurationSeconds: estimateDurationSeconds(totalDistance),
		TotalDeliveries:      len(visits),
		Method:               models.MethodFallbackNearest,
		OptimizedAt:          time.Now(),
	}
}

// buildVisits assigns contiguous visit indices and first/last flags to an ordered stop list.
// A single visit is both first and last.
func buildVisits(ordered []models.Stop) []models.RouteVisit {
	visits := make([]models.RouteVisit, len(ordered))
	for i, s := range ordered {
		visits[i] = models.RouteVisit{
			Stop:            s,
			VisitIndex:      i,
			IsFirstDelivery: i == 0,
			IsLastDelivery:  i == len(ordered)-1,
		}
	}
	return visits
}

// logRoute prints the chosen order, like the dispatcher console expects
func logRoute(route *models.Route) {
	log.Printf("✅ Route optimization complete! (method: %s)", route.Method)
	log.Printf("   Total distance: %.2f km", float64(route.TotalDistanceMeters)/1000.0)
	log.Printf("   Total duration: %.1f minutes", float64(route.TotalDurationSeconds)/60.0)
	for _, v := range route.Visits {
		log.Printf("      %d. %s (%s)", v.VisitIndex+1, v.Stop.ID, v.Stop.Address)
	}
}
