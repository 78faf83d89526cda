package geofence

import (
	"math"

	"github.com/guardline/patrolkit/pkg/patrol/location"
)

const (
	earthRadiusMeters = 6371000.0
	feetPerMeter      = 3.28084
)

// DistanceFeet returns the great-circle distance between two coordinates in
// feet, computed with the haversine formula on a spherical Earth model.
func DistanceFeet(a, b location.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Clamp against floating point drift before the square root.
	if h > 1 {
		h = 1
	}

	meters := 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
	return meters * feetPerMeter
}
