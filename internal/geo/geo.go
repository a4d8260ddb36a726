package geo

import (
	"math"

	"localchat-backend/internal/models"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// DistanceKm returns the great-circle distance between two points in
// kilometers, assuming a spherical Earth.
func DistanceKm(a, b Point) float64 {
	latA := a.Latitude * math.Pi / 180
	latB := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// NearestEligibleGroup returns the candidate group whose radius contains p and
// whose center is closest to p, or nil when no candidate is eligible.
// Candidates without geo fields are skipped. Ties on distance break on the
// lowest chat id so the result is deterministic.
func NearestEligibleGroup(p Point, candidates []*models.Chat) *models.Chat {
	var best *models.Chat
	var bestDist float64

	for _, c := range candidates {
		if c == nil || !c.HasGeo() {
			continue
		}
		d := DistanceKm(p, Point{Latitude: *c.Latitude, Longitude: *c.Longitude})
		if d > *c.RadiusKm {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && c.ID.String() < best.ID.String()) {
			best = c
			bestDist = d
		}
	}
	return best
}
