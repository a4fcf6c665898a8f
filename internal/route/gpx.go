package route

import (
	"fmt"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// ParseGPX reads every timed track point in document order. Points without
// a timestamp are skipped. Named tracks and timed, named waypoints become
// chapters.
func ParseGPX(data []byte) (*journey.Journey, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode gpx route: %w", err)
	}
	return FromGPX(doc)
}

// FromGPX builds a journey from an already decoded document.
func FromGPX(doc *gpx.GPX) (*journey.Journey, error) {
	var (
		positions []journey.Position
		marks     []journey.ChapterMark
	)

	for _, track := range doc.Tracks {
		marked := track.Name == ""
		for _, segment := range track.Segments {
			for _, pt := range segment.Points {
				if pt.Timestamp.IsZero() {
					continue
				}
				ts := pt.Timestamp.UnixMilli()
				if !marked {
					marks = append(marks, journey.ChapterMark{Time: ts, Description: track.Name})
					marked = true
				}
				positions = append(positions, gpxPosition(pt, ts))
			}
		}
	}

	for _, wpt := range doc.Waypoints {
		if wpt.Name == "" || wpt.Timestamp.IsZero() {
			continue
		}
		marks = append(marks, journey.ChapterMark{Time: wpt.Timestamp.UnixMilli(), Description: wpt.Name})
	}

	return newJourney(FormatGPX, positions, marks)
}

func gpxPosition(pt gpx.GPXPoint, ts int64) journey.Position {
	alt := journey.Null
	if ele := pt.GetElevation(); ele.NotNull() {
		alt = journey.Float(ele.Value())
	}
	return position(pt.Longitude, pt.Latitude, alt, ts)
}
