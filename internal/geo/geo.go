// Package geo provides great-circle helpers shared by the graph builder,
// the nearest-edge index, and the incident impact loop.
package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates in
// kilometres.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Midpoint returns the arithmetic midpoint of two coordinates. For the short
// edges of an urban transit network this is indistinguishable from the true
// geographic midpoint.
func Midpoint(lat1, lon1, lat2, lon2 float64) (lat, lon float64) {
	return (lat1 + lat2) / 2, (lon1 + lon2) / 2
}

// TravelTimeSeconds converts a distance in kilometres to traversal time in
// seconds at the given speed.
func TravelTimeSeconds(distanceKm, speedKmh float64) float64 {
	return distanceKm / speedKmh * 3600
}
