package journey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

func TestBoundingBox(t *testing.T) {
	t.Run("within one hemisphere", func(t *testing.T) {
		j := mustJourney(t, []journey.Position{
			at(20, 2, 50),
			at(30, 3, 150),
			at(10, 1, 0),
		})
		assert.Equal(t, journey.BoundingBox{10, 1, 30, 3}, j.BoundingBox())
	})

	t.Run("across the antimeridian", func(t *testing.T) {
		j := mustJourney(t, []journey.Position{
			at(178, 2, 50),
			at(-175, 3, 150),
			at(175, 1, 0),
		})
		box := j.BoundingBox()
		assert.Equal(t, journey.BoundingBox{175, 1, 185, 3}, box)
		assert.Equal(t, 175.0, box.West())
		assert.Equal(t, 1.0, box.South())
		assert.Equal(t, 185.0, box.East())
		assert.Equal(t, 3.0, box.North())
	})
}

func TestFindFastestSegment(t *testing.T) {
	j := mustJourney(t, []journey.Position{
		at(0, 1, 0),
		at(0, 2, 200),
		at(0, 3, 300),
		at(0, 4, 500),
	})

	seg, ok := journey.FindFastestSegment(j.Segments())
	require.True(t, ok)
	assert.Equal(t, 2.0, seg.A.Coords.Latitude)
	assert.Equal(t, int64(200), seg.A.Timestamp)
	assert.Equal(t, 3.0, seg.B.Coords.Latitude)
	assert.Equal(t, int64(300), seg.B.Timestamp)

	assert.Equal(t, seg, j.FastestSegment())

	_, ok = journey.FindFastestSegment(nil)
	assert.False(t, ok)
}

func TestDistanceAndSpeed(t *testing.T) {
	a := at(0, 2, 200)
	b := at(0, 3, 300)

	assert.InDelta(t, 110575.01304993308, journey.Distance(a.Coords, b.Coords), 1e-6)
	assert.InDelta(t, 1105750.1304993308, journey.Speed(a, b), 1e-5)
	assert.Equal(t, 0.0, journey.Distance(a.Coords, a.Coords))

	up := a
	up.Coords.Altitude = journey.Float(100)
	assert.InDelta(t, 100, journey.Distance(a.Coords, up.Coords), 1e-6)
}

func TestTrimPositions(t *testing.T) {
	positions := []journey.Position{
		withAccuracy(0, 1000),
		withAccuracy(1, 2000),
		withAccuracy(2, 3000),
		withAccuracy(3, 4000),
		withAccuracy(4, 5000),
	}

	times := func(ps []journey.Position) []int64 {
		var out []int64
		for _, p := range ps {
			out = append(out, p.Timestamp)
		}
		return out
	}

	assert.Equal(t, []int64{2000, 3000, 4000}, times(journey.TrimPositions(positions, 1000, 1000)))
	assert.Equal(t, []int64{2000, 3000, 4000, 5000}, times(journey.TrimPositions(positions, 500, 0)))
	assert.Equal(t, []int64{1000, 2000, 3000}, times(journey.TrimPositions(positions, 0, 1500)))
	assert.Len(t, journey.TrimPositions(positions, 0, 0), 5)
	assert.Empty(t, journey.TrimPositions(nil, 10, 10))

	// input untouched
	assert.Len(t, positions, 5)
}

func TestJourneyTrim(t *testing.T) {
	j := mustJourney(t,
		[]journey.Position{at(0, 0, 1000), at(1, 1, 2000), at(2, 2, 3000), at(3, 3, 4000), at(4, 4, 5000)},
		journey.ChapterMark{Time: 1000, Description: "warm up"},
		journey.ChapterMark{Time: 1500, Description: "climb"},
		journey.ChapterMark{Time: 3500, Description: "descent"},
		journey.ChapterMark{Time: 4500, Description: "cool down"},
	)

	trimmed, err := j.Trim(1000, 1000)
	require.NoError(t, err)

	assert.Equal(t, []int64{2000, 3000, 4000}, trimmed.PositionTimes())
	assert.Equal(t, []journey.Chapter{
		{Time: 2000, OffsetTime: 0, Duration: 1500, Description: "climb"},
		{Time: 3500, OffsetTime: 1500, Duration: 500, Description: "descent"},
	}, trimmed.Chapters())

	// the original is unchanged
	assert.Equal(t, int64(4000), j.Duration())
	assert.Len(t, j.Chapters(), 4)

	_, err = j.Trim(0, 3500)
	assert.ErrorIs(t, err, journey.ErrInsufficientPositions)
}

func TestChapters(t *testing.T) {
	j := mustJourney(t,
		[]journey.Position{at(0, 0, 1000), at(1, 1, 41000)},
		journey.ChapterMark{Time: 31000, Description: "third"},
		journey.ChapterMark{Time: 1000, Description: "first"},
		journey.ChapterMark{Time: 11000, Description: "second"},
	)

	assert.Equal(t, []journey.Chapter{
		{Time: 1000, OffsetTime: 0, Duration: 10000, Description: "first"},
		{Time: 11000, OffsetTime: 10000, Duration: 20000, Description: "second"},
		{Time: 31000, OffsetTime: 30000, Duration: 10000, Description: "third"},
	}, j.Chapters())

	tests := []struct {
		offset float64
		want   string
		ok     bool
	}{
		{-1, "", false},
		{0, "first", true},
		{9999, "first", true},
		{10000, "second", true},
		{29999.5, "second", true},
		{30000, "third", true},
		{39999, "third", true},
		{40000, "third", true},
		{40001, "", false},
	}

	for _, tt := range tests {
		c, ok := j.ChapterAtOffsetTime(tt.offset)
		assert.Equal(t, tt.ok, ok, "offset %v", tt.offset)
		assert.Equal(t, tt.want, c.Description, "offset %v", tt.offset)
	}
}

func TestChaptersNotAlignedWithPositions(t *testing.T) {
	j := mustJourney(t,
		[]journey.Position{at(0, 0, 0), at(1, 1, 100)},
		journey.ChapterMark{Time: 25, Description: "late start"},
	)

	_, ok := j.ChapterAtTime(10)
	assert.False(t, ok)

	c, ok := j.ChapterAtTime(25)
	require.True(t, ok)
	assert.Equal(t, int64(75), c.Duration)
	assert.Equal(t, int64(100), c.End())
}

func TestNoChapters(t *testing.T) {
	j := mustJourney(t, []journey.Position{at(0, 0, 0), at(1, 1, 100)})

	assert.Empty(t, j.Chapters())
	_, ok := j.ChapterAtTime(100)
	assert.False(t, ok)
}
