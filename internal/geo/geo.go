// Package geo provides the distance math behind radius-filtered item
// queries. SQLite has no geospatial index, so listings prefilter rows with
// a bounding box in SQL and compute exact great-circle distances in Go.
package geo

import "math"

// EarthRadiusKm is the mean earth radius.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance between two
// points in kilometers.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox returns the min/max latitude and longitude of a box that
// fully contains the circle of radiusKm around (lat, lng). The box is a
// superset of the circle; callers still filter by exact distance.
func BoundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi
	minLat = lat - dLat
	maxLat = lat + dLat

	// Longitude degrees shrink with latitude; widen by the worst case
	// within the box. Near the poles the box degenerates to all longitudes.
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		return minLat, maxLat, -180, 180
	}
	dLng := dLat / cos
	minLng = lng - dLng
	maxLng = lng + dLng
	return minLat, maxLat, minLng, maxLng
}
