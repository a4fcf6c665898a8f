// Package journey models a recorded or computed trip as a time-ordered
// sequence of positions, and answers where the traveller is at any instant.
package journey

import (
	"errors"
	"math"
	"slices"
)

// ErrInsufficientPositions is returned when fewer than two positions are
// available to build a journey.
var ErrInsufficientPositions = errors.New("insufficient positions for a journey")

// Segment is a pair of consecutive positions.
type Segment struct {
	A, B Position
}

// SegmentAt is the segment bracketing a queried instant, plus the fraction T
// of the way from A to B. T is -Inf before the journey starts and +Inf at or
// after its end.
type SegmentAt struct {
	A, B Position
	T    float64
}

// Coordinates interpolates the segment at T.
func (s SegmentAt) Coordinates() Coordinates {
	return LerpPosition(s.A, s.B, s.T)
}

// Journey is an immutable trajectory built from at least two positions.
type Journey struct {
	positions []Position
	times     []int64
	segments  []Segment
	chapters  []Chapter
}

// New builds a journey from positions and optional chapter marks. Positions
// are sorted by timestamp; positions sharing a timestamp keep the order they
// were given in.
func New(positions []Position, marks ...ChapterMark) (*Journey, error) {
	if len(positions) < 2 {
		return nil, ErrInsufficientPositions
	}

	sorted := slices.Clone(positions)
	slices.SortStableFunc(sorted, func(a, b Position) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})

	times := make([]int64, len(sorted))
	for i, p := range sorted {
		times[i] = p.Timestamp
	}

	segments := make([]Segment, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		segments = append(segments, Segment{A: sorted[i-1], B: sorted[i]})
	}

	j := &Journey{
		positions: sorted,
		times:     times,
		segments:  segments,
	}
	j.chapters = buildChapters(marks, j.StartTime(), j.EndTime())

	return j, nil
}

// Positions returns a copy of the sorted positions.
func (j *Journey) Positions() []Position { return slices.Clone(j.positions) }

// Segments returns a copy of the consecutive position pairs.
func (j *Journey) Segments() []Segment { return slices.Clone(j.segments) }

// StartPosition returns the earliest position.
func (j *Journey) StartPosition() Position { return j.positions[0] }

// EndPosition returns the latest position.
func (j *Journey) EndPosition() Position { return j.positions[len(j.positions)-1] }

// StartTime returns the timestamp of the earliest position.
func (j *Journey) StartTime() int64 { return j.StartPosition().Timestamp }

// EndTime returns the timestamp of the latest position.
func (j *Journey) EndTime() int64 { return j.EndPosition().Timestamp }

// Duration returns EndTime - StartTime in milliseconds.
func (j *Journey) Duration() int64 { return j.EndTime() - j.StartTime() }

// PositionTimes returns the sorted position timestamps.
func (j *Journey) PositionTimes() []int64 { return slices.Clone(j.times) }

// PositionOffsetTimes returns the sorted position timestamps relative to the
// start time.
func (j *Journey) PositionOffsetTimes() []int64 {
	start := j.StartTime()
	offsets := make([]int64, len(j.times))
	for i, t := range j.times {
		offsets[i] = t - start
	}
	return offsets
}

// TimeToOffsetTime converts an epoch time in milliseconds to an offset from
// the start of the journey.
func (j *Journey) TimeToOffsetTime(time float64) float64 {
	return time - float64(j.StartTime())
}

// OffsetTimeToTime converts an offset from the start of the journey to an
// epoch time in milliseconds.
func (j *Journey) OffsetTimeToTime(offsetTime float64) float64 {
	return offsetTime + float64(j.StartTime())
}

// SegmentAtTime returns the segment containing time.
//
// When several positions share the queried timestamp, the segment starting
// at the last of them is returned.
func (j *Journey) SegmentAtTime(time float64) SegmentAt {
	n := len(j.positions)

	if time < float64(j.StartTime()) {
		return SegmentAt{A: j.positions[0], B: j.positions[1], T: math.Inf(-1)}
	}
	if time >= float64(j.EndTime()) {
		return SegmentAt{A: j.positions[n-2], B: j.positions[n-1], T: math.Inf(1)}
	}

	// First index whose timestamp is strictly after time. The predicate must
	// stay "<= time" so that ties resolve to the last duplicate.
	idx, hi := 0, n
	for idx < hi {
		h := int(uint(idx+hi) >> 1)
		if float64(j.times[h]) <= time {
			idx = h + 1
		} else {
			hi = h
		}
	}

	a, b := j.positions[idx-1], j.positions[idx]
	t := (time - float64(a.Timestamp)) / float64(b.Timestamp-a.Timestamp)

	return SegmentAt{A: a, B: b, T: t}
}

// SegmentAtOffsetTime returns the segment containing the given offset.
func (j *Journey) SegmentAtOffsetTime(offsetTime float64) SegmentAt {
	return j.SegmentAtTime(j.OffsetTimeToTime(offsetTime))
}

// CoordinatesAtTime returns the interpolated coordinates at time.
func (j *Journey) CoordinatesAtTime(time float64) Coordinates {
	return j.SegmentAtTime(time).Coordinates()
}

// CoordinatesAtOffsetTime returns the interpolated coordinates at the given
// offset.
func (j *Journey) CoordinatesAtOffsetTime(offsetTime float64) Coordinates {
	return j.SegmentAtOffsetTime(offsetTime).Coordinates()
}
