package gtfs

import "math"

const earthRadius = 6371000.0

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// CumDistances returns the distance along the shape at each point. Provided
// shape_dist_traveled values are trusted when the first one is set, and
// forced to be non-decreasing; otherwise distances are measured.
func CumDistances(pts []ShapePoint) []float64 {
	n := len(pts)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)

	if pts[0].DistTraveled > 0 {
		prev := 0.0
		for i, p := range pts {
			cum[i] = math.Max(p.DistTraveled, prev)
			prev = cum[i]
		}
		return cum
	}

	for i := 1; i < n; i++ {
		cum[i] = cum[i-1] + Haversine(pts[i-1].Lat, pts[i-1].Lon, pts[i].Lat, pts[i].Lon)
	}
	return cum
}

// PointAtDistance returns the location dist meters along the shape, clamped
// to its ends.
func PointAtDistance(pts []ShapePoint, cum []float64, dist float64) (lat, lon float64) {
	n := len(pts)
	if n == 0 {
		return 0, 0
	}
	if dist <= cum[0] || cum[n-1] == 0 {
		return pts[0].Lat, pts[0].Lon
	}
	if dist >= cum[n-1] {
		return pts[n-1].Lat, pts[n-1].Lon
	}

	i := 1
	for i < n-1 && cum[i] < dist {
		i++
	}
	d0, d1 := cum[i-1], cum[i]
	p0, p1 := pts[i-1], pts[i]
	if d1 == d0 {
		return p0.Lat, p0.Lon
	}
	frac := (dist - d0) / (d1 - d0)
	return p0.Lat + (p1.Lat-p0.Lat)*frac, p0.Lon + (p1.Lon-p0.Lon)*frac
}

// NearestDistanceAlong returns the distance along the shape of the point
// closest to lat/lon, using an equirectangular projection centred on it.
func NearestDistanceAlong(pts []ShapePoint, cum []float64, lat, lon float64) float64 {
	n := len(pts)
	if n == 0 {
		return 0
	}
	if len(cum) != n {
		cum = CumDistances(pts)
	}

	cosLat := math.Cos(radians(lat))
	project := func(p ShapePoint) (x, y float64) {
		return radians(p.Lon-lon) * earthRadius * cosLat, radians(p.Lat-lat) * earthRadius
	}

	best := math.MaxFloat64
	along := 0.0
	x0, y0 := project(pts[0])
	for i := 1; i < n; i++ {
		x1, y1 := project(pts[i])
		dx, dy := x1-x0, y1-y0

		t := 0.0
		if l2 := dx*dx + dy*dy; l2 > 0 {
			t = math.Max(0, math.Min(1, -(x0*dx+y0*dy)/l2))
		}
		px, py := x0+t*dx, y0+t*dy
		if d2 := px*px + py*py; d2 < best {
			best = d2
			along = cum[i-1] + t*(cum[i]-cum[i-1])
		}
		x0, y0 = x1, y1
	}
	return along
}
