package journey

import (
	"encoding/json"
	"math"
	"strconv"
)

// NullFloat64 is a float64 that may be unknown. The zero value is unknown.
type NullFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a known value.
func Float(v float64) NullFloat64 {
	return NullFloat64{Float64: v, Valid: true}
}

// Null is the unknown value.
var Null = NullFloat64{}

// Ptr returns a pointer to the value, or nil when unknown.
func (n NullFloat64) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// MarshalJSON encodes unknown and NaN values as null.
func (n NullFloat64) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsNaN(n.Float64) || math.IsInf(n.Float64, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Float64, 'g', -1, 64)), nil
}

// UnmarshalJSON decodes null as unknown.
func (n *NullFloat64) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = Null
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// Coordinates is a single geographic fix, shaped after the browser's
// GeolocationCoordinates. A Heading holding NaN means the device is not
// moving.
type Coordinates struct {
	Longitude        float64     `json:"longitude"`
	Latitude         float64     `json:"latitude"`
	Altitude         NullFloat64 `json:"altitude"`
	Accuracy         float64     `json:"accuracy"`
	AltitudeAccuracy NullFloat64 `json:"altitudeAccuracy"`
	Heading          NullFloat64 `json:"heading"`
	Speed            NullFloat64 `json:"speed"`
}

// Position is a timestamped fix. Timestamp is in milliseconds since the Unix
// epoch.
type Position struct {
	Coords    Coordinates `json:"coords"`
	Timestamp int64       `json:"timestamp"`
}

// depth converts a nullable altitude into a depth below the ellipsoid.
// Unknown altitude sits on the ellipsoid.
func depth(altitude NullFloat64) float64 {
	if !altitude.Valid {
		return 0
	}
	return -altitude.Float64
}
