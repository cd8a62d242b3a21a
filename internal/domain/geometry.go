package domain

import (
	"encoding/json"
	"math"
)

// Geometry is a GeoJSON Polygon or MultiPolygon. Coordinates stay raw until
// a caller asks for rings, so malformed upstream geometry degrades to an
// empty ring set instead of failing the whole record decode.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// Ring is a closed sequence of [lon, lat] vertices. Extra positions per
// vertex (altitude) are tolerated and ignored.
type Ring [][]float64

// NewPolygon builds a single-ring Polygon geometry from lon/lat vertices.
func NewPolygon(ring Ring) Geometry {
	coords, err := json.Marshal([]Ring{ring})
	if err != nil {
		return Geometry{Type: "Polygon"}
	}
	return Geometry{Type: "Polygon", Coordinates: coords}
}

// PolygonRings returns the ring sets of each constituent polygon: one entry
// for a Polygon, one per member for a MultiPolygon. Unknown types and
// undecodable coordinates yield nil.
func (g Geometry) PolygonRings() [][]Ring {
	switch g.Type {
	case "Polygon":
		var rings []Ring
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil
		}
		return [][]Ring{rings}
	case "MultiPolygon":
		var polys [][]Ring
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil
		}
		return polys
	default:
		return nil
	}
}

// OuterRing returns the first outer ring across the geometry's polygons,
// used to derive a rendering outline.
func (g Geometry) OuterRing() Ring {
	for _, rings := range g.PolygonRings() {
		if len(rings) > 0 && len(rings[0]) > 0 {
			return rings[0]
		}
	}
	return nil
}

// OutlineFromGeometry converts the outer ring into lat/lng points for
// rendering, skipping vertices that are not plausible positions.
func OutlineFromGeometry(g Geometry) []Coordinates {
	ring := g.OuterRing()
	if len(ring) == 0 {
		return nil
	}
	outline := make([]Coordinates, 0, len(ring))
	for _, vertex := range ring {
		if len(vertex) < 2 {
			continue
		}
		c := Coordinates{Latitude: vertex[1], Longitude: vertex[0]}
		if c.Valid() {
			outline = append(outline, c)
		}
	}
	return outline
}

// ExtractCoordinates walks an arbitrarily nested coordinate value (a bare
// point, a multi-point wrapper, or [lon, lat, depth?]) and returns the
// first plausible pair of finite numbers in lon/lat order. The boolean is
// false when no pair is found; such records are dropped by adapters.
func ExtractCoordinates(value any) (Coordinates, bool) {
	arr, ok := value.([]any)
	if !ok {
		return Coordinates{}, false
	}

	if len(arr) >= 2 {
		lon, lonOK := asFiniteFloat(arr[0])
		lat, latOK := asFiniteFloat(arr[1])
		if lonOK && latOK {
			c := Coordinates{Latitude: lat, Longitude: lon}
			if len(arr) >= 3 {
				if depth, ok := asFiniteFloat(arr[2]); ok {
					c.Depth = &depth
				}
			}
			if c.Valid() {
				return c, true
			}
		}
	}

	for _, item := range arr {
		if c, ok := ExtractCoordinates(item); ok {
			return c, true
		}
	}
	return Coordinates{}, false
}

func asFiniteFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
