package geodesy

import "math"

// ToECEF returns the Earth-centred position of the point with n-vector n at
// the given depth below the WGS-84 ellipsoid, in meters.
//
// Depth grows downwards: a point 100 m above the ellipsoid has depth -100.
func ToECEF(n Vector, depth float64) Vector {
	b := SemiMajorAxis * (1 - Flattening)
	eq := (1 - Flattening) * (1 - Flattening)
	denominator := math.Sqrt(n[2]*n[2] + n[1]*n[1]/eq + n[0]*n[0]/eq)
	s := b / denominator

	return Vector{
		s*n[0]/eq - n[0]*depth,
		s*n[1]/eq - n[1]*depth,
		s*n[2] - n[2]*depth,
	}
}

// Delta returns the vector from point A to point B in the Earth-fixed frame,
// in meters. depthA and depthB are depths, not altitudes.
func Delta(a, b Vector, depthA, depthB float64) Vector {
	return ToECEF(b, depthB).Sub(ToECEF(a, depthA))
}

// RotationMatrix returns the rotation matrix from the local North-East-Down
// frame at n to the Earth-fixed frame. Its columns are the north, east and
// down unit vectors. At the poles east is fixed to the y axis.
func RotationMatrix(n Vector) Matrix {
	down := n.Scale(-1)

	east := Vector{0, 0, 1}.Cross(n)
	if east.Norm() != 0 {
		east = east.Normalize()
	} else {
		east = Vector{0, 1, 0}
	}

	north := east.Cross(down)

	return Matrix{
		{north[0], east[0], down[0]},
		{north[1], east[1], down[1]},
		{north[2], east[2], down[2]},
	}
}

// ToLocal decomposes d into north, east and down components in the local
// frame at n.
func ToLocal(n Vector, d Vector) (north, east, down float64) {
	l := RotationMatrix(n).Transpose().Apply(d)
	return l[0], l[1], l[2]
}

// Bearing returns the azimuth of d as seen from n, in degrees within
// [0, 360). A zero-length d yields NaN.
func Bearing(n Vector, d Vector) float64 {
	if d.Norm() == 0 {
		return math.NaN()
	}
	north, east, _ := ToLocal(n, d)
	return math.Mod(Degrees(math.Atan2(east, north))+360, 360)
}
