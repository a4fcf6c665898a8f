// Package geodesy implements the n-vector position representation used to
// interpolate between fixes and to measure the displacement between them.
//
// Vectors are expressed in an Earth-fixed frame whose z axis points to the
// north pole and whose x axis crosses the equator at longitude 0.
package geodesy

import "math"

// WGS-84 ellipsoid.
const (
	SemiMajorAxis = 6378137.0
	Flattening    = 1 / 298.257223563
)

// Vector is a 3-D vector in the Earth-fixed frame.
type Vector [3]float64

// Matrix is a row-major 3x3 matrix.
type Matrix [3][3]float64

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// FromGeodetic returns the n-vector for a longitude and latitude in radians.
func FromGeodetic(lon, lat float64) Vector {
	cosLat := math.Cos(lat)
	return Vector{math.Cos(lon) * cosLat, math.Sin(lon) * cosLat, math.Sin(lat)}
}

// Geodetic returns the longitude and latitude of n in radians.
func (n Vector) Geodetic() (lon, lat float64) {
	equatorial := math.Hypot(n[1], n[0])
	return math.Atan2(n[1], n[0]), math.Atan2(n[2], equatorial)
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Normalize returns v scaled to unit length.
func (v Vector) Normalize() Vector {
	n := v.Norm()
	return Vector{v[0] / n, v[1] / n, v[2] / n}
}

// Sub returns v - w.
func (v Vector) Sub(w Vector) Vector {
	return Vector{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Scale returns v * s.
func (v Vector) Scale(s float64) Vector {
	return Vector{v[0] * s, v[1] * s, v[2] * s}
}

// Cross returns the cross product v x w.
func (v Vector) Cross(w Vector) Vector {
	return Vector{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

// Dot returns the dot product of v and w.
func (v Vector) Dot(w Vector) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2]
}

// Lerp interpolates each component of a and b independently. The result is
// not unit length; callers normalize it before converting back to geodetic
// coordinates.
func Lerp(a, b Vector, t float64) Vector {
	return Vector{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
	}
}

// Interpolate returns the n-vector a fraction t of the way from a to b, using
// component-wise interpolation followed by normalization.
func Interpolate(a, b Vector, t float64) Vector {
	return Lerp(a, b, t).Normalize()
}

// Transpose returns the transpose of m.
func (m Matrix) Transpose() Matrix {
	var r Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[j][i]
		}
	}
	return r
}

// Apply returns m * v.
func (m Matrix) Apply(v Vector) Vector {
	return Vector{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}
