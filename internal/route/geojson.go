package route

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// AccuracySteps is the number of vertices used to approximate an accuracy
// circle.
const AccuracySteps = 96

// LineFeature is a GeoJSON Feature holding a LineString and a parallel array
// of per-vertex times in properties.coordinateProperties.times.
type LineFeature struct {
	Type       string         `json:"type"`
	Properties LineProperties `json:"properties"`
	Geometry   LineString     `json:"geometry"`
}

type LineProperties struct {
	CoordinateProperties struct {
		// Epoch milliseconds.
		Times []int64 `json:"times"`
	} `json:"coordinateProperties"`
}

// ParseGeoJSON decodes a LineString feature whose vertex times live in
// properties.coordinateProperties.times. Times may be ISO-8601 strings or
// epoch milliseconds. Vertices with a null time are skipped.
func ParseGeoJSON(data []byte) (*journey.Journey, error) {
	f, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson route: %w", err)
	}
	if f.Geometry == nil {
		return nil, fmt.Errorf("geojson route has no geometry")
	}
	if _, ok := f.Geometry.(orb.LineString); !ok {
		return nil, fmt.Errorf("geojson route geometry must be a LineString, got %s", f.Geometry.GeoJSONType())
	}

	times, err := coordinateTimes(f.Properties)
	if err != nil {
		return nil, err
	}

	// orb keeps two ordinates per point, altitude comes from the raw geometry
	var raw struct {
		Geometry LineString `json:"geometry"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode geojson route: %w", err)
	}

	return FromGeoJSON(raw.Geometry.Coordinates, times)
}

// FromGeoJSON pairs vertices with their times. A nil time drops the vertex.
func FromGeoJSON(coords Vertices, times []*time.Time) (*journey.Journey, error) {
	if len(times) < len(coords) {
		return nil, fmt.Errorf("geojson route has %d vertices but %d times", len(coords), len(times))
	}

	var positions []journey.Position
	for i := range coords {
		if times[i] == nil {
			continue
		}
		p, err := coords.position(i, times[i].UnixMilli())
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return newJourney(FormatGeoJSON, positions, nil)
}

func coordinateTimes(props geojson.Properties) ([]*time.Time, error) {
	cp, ok := props["coordinateProperties"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("geojson route is missing properties.coordinateProperties")
	}
	raw, ok := cp["times"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("geojson route is missing properties.coordinateProperties.times")
	}

	times := make([]*time.Time, len(raw))
	for i, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("invalid time %q at index %d: %w", v, i, err)
			}
			times[i] = &t
		case float64:
			t := time.UnixMilli(int64(math.Round(v)))
			times[i] = &t
		default:
			return nil, fmt.Errorf("invalid time %v at index %d", v, i)
		}
	}
	return times, nil
}

// GeoJSONFromPositions is the inverse of ParseGeoJSON. Altitude is written as
// a third ordinate only when known.
func GeoJSONFromPositions(positions []journey.Position) LineFeature {
	f := LineFeature{
		Type:     "Feature",
		Geometry: LineString{Type: "LineString", Coordinates: make(Vertices, 0, len(positions))},
	}
	f.Properties.CoordinateProperties.Times = make([]int64, 0, len(positions))

	for _, p := range positions {
		v := []float64{p.Coords.Longitude, p.Coords.Latitude}
		if p.Coords.Altitude.Valid {
			v = append(v, p.Coords.Altitude.Float64)
		}
		f.Geometry.Coordinates = append(f.Geometry.Coordinates, v)
		f.Properties.CoordinateProperties.Times = append(f.Properties.CoordinateProperties.Times, p.Timestamp)
	}
	return f
}

// AccuracyFeature returns a polygon approximating the circle of uncertainty
// around c, with radius c.Accuracy in meters.
func AccuracyFeature(c journey.Coordinates) *geojson.Feature {
	center := orb.Point{c.Longitude, c.Latitude}

	ring := make(orb.Ring, 0, AccuracySteps+1)
	for i := 0; i < AccuracySteps; i++ {
		bearing := float64(i) * -360 / AccuracySteps
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, c.Accuracy))
	}
	ring = append(ring, ring[0])

	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["accuracy"] = c.Accuracy
	return f
}

// BoundsFeature returns the bounding box as a polygon feature, with the raw
// [west, south, east, north] array as its bbox.
func BoundsFeature(b journey.BoundingBox) *geojson.Feature {
	bound := orb.Bound{
		Min: orb.Point{b.West(), b.South()},
		Max: orb.Point{b.East(), b.North()},
	}
	f := geojson.NewFeature(bound.ToPolygon())
	f.BBox = geojson.BBox{b.West(), b.South(), b.East(), b.North()}
	return f
}
