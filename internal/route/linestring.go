package route

import (
	"github.com/samber/oops"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// LineString is a GeoJSON line geometry whose vertices may carry altitude as
// a third ordinate.
type LineString struct {
	Type        string   `json:"type"`
	Coordinates Vertices `json:"coordinates"`
}

// Vertices are [longitude, latitude] or [longitude, latitude, altitude].
type Vertices [][]float64

func (v Vertices) position(i int, ts int64) (journey.Position, error) {
	c := v[i]
	if len(c) < 2 {
		return journey.Position{}, oops.
			In("route").
			Code("invalid_vertex").
			With("vertex", i).
			Errorf("vertex %d has %d ordinates", i, len(c))
	}
	alt := journey.Null
	if len(c) > 2 {
		alt = journey.Float(c[2])
	}
	return position(c[0], c[1], alt, ts), nil
}
