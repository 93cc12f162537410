// Package geo computes straight-line (great-circle) distances between coordinates.
package geo

import (
	"math"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Distance returns the haversine great-circle distance in kilometers.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Between is Distance over domain coordinates.
func Between(a, b domain.Coordinate) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// DistanceToPickup returns the rounded display distance from ref to pickup.
// It returns nil ("distance unavailable") when ref is nil or either point is not finite.
func DistanceToPickup(ref *domain.Coordinate, pickup domain.Coordinate) *float64 {
	if ref == nil || !finite(*ref) || !finite(pickup) {
		return nil
	}
	d := Round2(Between(*ref, pickup))
	return &d
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func finite(c domain.Coordinate) bool {
	return !math.IsNaN(c.Latitude) && !math.IsInf(c.Latitude, 0) &&
		!math.IsNaN(c.Longitude) && !math.IsInf(c.Longitude, 0)
}
