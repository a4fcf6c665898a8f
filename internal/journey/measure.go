package journey

import (
	"math"
	"slices"

	"github.com/ezzatron/fake-geolocation-demo/internal/geodesy"
)

// BoundingBox is [west, south, east, north] in degrees. East may exceed 180
// when the box crosses the antimeridian, so that east is never less than west.
type BoundingBox [4]float64

func (b BoundingBox) West() float64  { return b[0] }
func (b BoundingBox) South() float64 { return b[1] }
func (b BoundingBox) East() float64  { return b[2] }
func (b BoundingBox) North() float64 { return b[3] }

// Bounds returns the smallest box containing positions. The longitude span is
// chosen by removing the largest gap between neighbouring longitudes around
// the full circle, so routes across the antimeridian get a narrow box.
func Bounds(positions []Position) BoundingBox {
	n := len(positions)
	if n == 0 {
		return BoundingBox{math.NaN(), math.Inf(1), math.NaN(), math.Inf(-1)}
	}

	lons := make([]float64, n)
	for i, p := range positions {
		lons[i] = p.Coords.Longitude
	}
	slices.Sort(lons)

	w, s, e, no := math.NaN(), math.Inf(1), math.NaN(), math.Inf(-1)
	maxGap := math.Inf(-1)

	for i, p := range positions {
		lat := p.Coords.Latitude
		s = math.Min(s, lat)
		no = math.Max(no, lat)

		a, b := lons[i], lons[(i+1)%n]
		gap := math.Mod(b-a+360, 360)
		if gap > maxGap {
			maxGap = gap
			e, w = a, b
		}
	}

	if e < w {
		e += 360
	}

	return BoundingBox{w, s, e, no}
}

// BoundingBox returns the bounds of all positions in the journey.
func (j *Journey) BoundingBox() BoundingBox { return Bounds(j.positions) }

// Distance returns the straight-line distance between a and b in meters,
// including any difference in altitude.
func Distance(a, b Coordinates) float64 {
	va := geodesy.FromGeodetic(geodesy.Radians(a.Longitude), geodesy.Radians(a.Latitude))
	vb := geodesy.FromGeodetic(geodesy.Radians(b.Longitude), geodesy.Radians(b.Latitude))
	return geodesy.Delta(va, vb, depth(a.Altitude), depth(b.Altitude)).Norm()
}

// Speed returns the average speed from a to b in meters per second.
func Speed(a, b Position) float64 {
	return Distance(a.Coords, b.Coords) / elapsedSeconds(a, b)
}

// FindFastestSegment returns the segment with the highest average speed. The
// earliest wins on ties. It returns false for an empty slice.
func FindFastestSegment(segments []Segment) (Segment, bool) {
	if len(segments) == 0 {
		return Segment{}, false
	}

	fastest := segments[0]
	maxSpeed := math.Inf(-1)
	for _, seg := range segments {
		if spd := Speed(seg.A, seg.B); spd > maxSpeed {
			maxSpeed = spd
			fastest = seg
		}
	}
	return fastest, true
}

// FastestSegment returns the journey segment with the highest average speed.
func (j *Journey) FastestSegment() Segment {
	seg, _ := FindFastestSegment(j.segments)
	return seg
}
