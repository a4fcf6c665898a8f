package journey

import (
	"math"

	"github.com/ezzatron/fake-geolocation-demo/internal/geodesy"
)

// LerpPosition returns the coordinates a fraction t of the way from a to b.
//
// For t < 0 the result is a's coordinates and for t >= 1 it is b's, both
// with a NaN heading and zero speed. In between, the position follows the
// normalized n-vector interpolation, accuracy is interpolated linearly,
// altitude and altitude accuracy are interpolated only when both ends are
// known, and heading and speed describe the whole segment.
func LerpPosition(a, b Position, t float64) Coordinates {
	ca, cb := a.Coords, b.Coords

	if t < 0 {
		return parked(ca)
	}
	if t >= 1 {
		return parked(cb)
	}

	va := geodesy.FromGeodetic(geodesy.Radians(ca.Longitude), geodesy.Radians(ca.Latitude))
	vb := geodesy.FromGeodetic(geodesy.Radians(cb.Longitude), geodesy.Radians(cb.Latitude))

	lon, lat := geodesy.Interpolate(va, vb, t).Geodetic()

	d := geodesy.Delta(va, vb, depth(ca.Altitude), depth(cb.Altitude))

	return Coordinates{
		Longitude:        geodesy.Degrees(lon),
		Latitude:         geodesy.Degrees(lat),
		Altitude:         lerpNullable(ca.Altitude, cb.Altitude, t),
		Accuracy:         lerp(ca.Accuracy, cb.Accuracy, t),
		AltitudeAccuracy: lerpNullable(ca.AltitudeAccuracy, cb.AltitudeAccuracy, t),
		Heading:          Float(geodesy.Bearing(va, d)),
		Speed:            Float(d.Norm() / elapsedSeconds(a, b)),
	}
}

func parked(c Coordinates) Coordinates {
	c.Heading = Float(math.NaN())
	c.Speed = Float(0)
	return c
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpNullable freezes at a when b is unknown, and is unknown whenever a is.
func lerpNullable(a, b NullFloat64, t float64) NullFloat64 {
	if !a.Valid {
		return Null
	}
	if !b.Valid {
		return a
	}
	return Float(lerp(a.Float64, b.Float64, t))
}

func elapsedSeconds(a, b Position) float64 {
	return float64(b.Timestamp-a.Timestamp) / 1000
}
