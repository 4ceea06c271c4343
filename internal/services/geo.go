package services

import (
	"math"

	"dispatch-backend/internal/models"
)

// fallbackSpeedMetersPerSecond is the flat average speed (~36 km/h) used when no live duration data exists
const fallbackSpeedMetersPerSecond = 10.0

// haversineDistance calculates the distance between two GPS coordinates in meters
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0 // Earth's radius in meters

	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	// Haversine formula
	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// distanceBetween is haversineDistance over two coordinates
func distanceBetween(a, b models.Coordinate) float64 {
	return haversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// estimateDurationSeconds converts a straight-line distance into seconds at the fallback speed
func estimateDurationSeconds(meters float64) int {
	return int(math.Round(meters / fallbackSpeedMetersPerSecond))
}
