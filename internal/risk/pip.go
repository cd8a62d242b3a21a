package risk

import (
	"math"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

// polygonContains runs even-odd ray casting over every ring of one polygon.
// Crossing an inner ring toggles the flag back out, so holes behave
// correctly. Ring vertices are [lon, lat].
func polygonContains(rings []domain.Ring, point domain.Coordinates) bool {
	x, y := point.Longitude, point.Latitude
	inside := false

	for _, ring := range rings {
		n := len(ring)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			if len(ring[i]) < 2 || len(ring[j]) < 2 {
				continue
			}
			xi, yi := ring[i][0], ring[i][1]
			xj, yj := ring[j][0], ring[j][1]

			// The epsilon guards against division by zero on horizontal edges.
			intersects := (yi > y) != (yj > y) &&
				x < (xj-xi)*(y-yi)/(yj-yi+math.SmallestNonzeroFloat64)+xi
			if intersects {
				inside = !inside
			}
		}
	}
	return inside
}

// geometryContains reports whether the point falls inside any constituent
// polygon of the geometry.
func geometryContains(g domain.Geometry, point domain.Coordinates) bool {
	for _, rings := range g.PolygonRings() {
		if polygonContains(rings, point) {
			return true
		}
	}
	return false
}

// ResolveRegion returns the first region whose geometry contains the point,
// or nil. Regions are assumed non-overlapping for this pass.
func ResolveRegion(point domain.Coordinates, regions []domain.DensityRegion) *domain.DensityRegion {
	for i := range regions {
		if geometryContains(regions[i].Geometry, point) {
			return &regions[i]
		}
	}
	return nil
}
