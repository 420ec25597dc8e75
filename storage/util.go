package storage

import (
	"math"

	"tidbyt.dev/transit/model"
)

const earthRadiusKm = 6371.0

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Great circle distance in kilometers between two coordinates.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	sinLat := math.Sin(radians(bLat-aLat) / 2)
	sinLon := math.Sin(radians(bLon-aLon) / 2)

	h := sinLat*sinLat + math.Cos(radians(aLat))*math.Cos(radians(bLat))*sinLon*sinLon

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Meters from lat,lon to a stop.
func MetersTo(stop model.Stop, lat float64, lon float64) float64 {
	return HaversineDistance(lat, lon, stop.Lat, stop.Lon) * 1000
}
