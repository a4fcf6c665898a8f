package route

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

const mapboxRouteJSON = `{
  "legs": [
    {
      "annotation": {"duration": [1.111, 2.222]},
      "steps": [
        {"name": "<step A>", "duration": 1.111, "maneuver": {"instruction": "<maneuver instruction A>"}},
        {"name": "", "duration": 2.222, "maneuver": {"instruction": "<maneuver instruction B>"}},
        {"name": "<step C>", "duration": 0, "maneuver": {"instruction": "<maneuver instruction C>"}}
      ]
    },
    {
      "annotation": {"duration": [3.333]},
      "steps": [
        {"name": "<step C>", "duration": 3.333, "maneuver": {"instruction": "<maneuver instruction D>"}},
        {"name": "<step D>", "duration": 0, "maneuver": {"instruction": "<maneuver instruction D>"}}
      ]
    }
  ],
  "geometry": {
    "type": "LineString",
    "coordinates": [[1, 11], [2, 22], [3, 33], [4, 44]]
  }
}`

func assertSegment(t *testing.T, seg journey.SegmentAt, a, b [2]float64, tt float64) {
	t.Helper()
	assert.Equal(t, a[0], seg.A.Coords.Longitude)
	assert.Equal(t, a[1], seg.A.Coords.Latitude)
	assert.False(t, seg.A.Coords.Altitude.Valid)
	assert.Equal(t, b[0], seg.B.Coords.Longitude)
	assert.Equal(t, b[1], seg.B.Coords.Latitude)
	assert.False(t, seg.B.Coords.Altitude.Valid)
	if math.IsInf(tt, 0) {
		assert.Equal(t, tt, seg.T)
	} else {
		assert.InDelta(t, tt, seg.T, 1e-9)
	}
}

func TestParseMapbox(t *testing.T) {
	j, err := ParseMapbox([]byte(mapboxRouteJSON), time.UnixMilli(1111))
	require.NoError(t, err)

	assert.Equal(t, []int64{1111, 2222, 4444, 7777}, j.PositionTimes())

	assertSegment(t, j.SegmentAtTime(0), [2]float64{1, 11}, [2]float64{2, 22}, math.Inf(-1))
	assertSegment(t, j.SegmentAtTime(1111), [2]float64{1, 11}, [2]float64{2, 22}, 0)
	assertSegment(t, j.SegmentAtTime(2222), [2]float64{2, 22}, [2]float64{3, 33}, 0)
	assertSegment(t, j.SegmentAtTime(4444), [2]float64{3, 33}, [2]float64{4, 44}, 0)
	assertSegment(t, j.SegmentAtTime(7777), [2]float64{3, 33}, [2]float64{4, 44}, math.Inf(1))
}

func TestParseMapboxChapters(t *testing.T) {
	j, err := ParseMapbox([]byte(mapboxRouteJSON), time.UnixMilli(1111))
	require.NoError(t, err)

	assert.Equal(t, []journey.Chapter{
		{Time: 1111, OffsetTime: 0, Duration: 1111, Description: "<step A>"},
		{Time: 2222, OffsetTime: 1111, Duration: 2222, Description: "<maneuver instruction B>"},
		{Time: 4444, OffsetTime: 3333, Duration: 3333, Description: "<step C>"},
	}, j.Chapters())
}

func TestParseMapboxDirectionsResponse(t *testing.T) {
	doc := `{"code": "Ok", "routes": [` + mapboxRouteJSON + `]}`

	j, err := ParseMapbox([]byte(doc), time.UnixMilli(0))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1111, 3333, 6666}, j.PositionTimes())
}

func TestFromMapboxInsufficientPositions(t *testing.T) {
	r := MapboxRoute{
		Legs:     []MapboxLeg{{}},
		Geometry: LineString{Type: "LineString", Coordinates: Vertices{{1, 11}}},
	}

	_, err := FromMapbox(r, time.UnixMilli(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, journey.ErrInsufficientPositions)
	assert.ErrorContains(t, err, "insufficient positions for a journey")
}

func TestFromMapboxTooManyDurations(t *testing.T) {
	r := MapboxRoute{
		Legs:     make([]MapboxLeg, 1),
		Geometry: LineString{Type: "LineString", Coordinates: Vertices{{1, 11}, {2, 22}}},
	}
	r.Legs[0].Annotation.Duration = []float64{1, 2}

	_, err := FromMapbox(r, time.UnixMilli(0))
	assert.ErrorContains(t, err, "more durations than geometry vertices")
}
