package route

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/oops"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// MapboxRoute is a route from the Mapbox Directions API, requested with
// geojson geometries, full overview and duration annotations.
type MapboxRoute struct {
	Legs     []MapboxLeg `json:"legs"`
	Geometry LineString  `json:"geometry"`
}

type MapboxLeg struct {
	Annotation struct {
		// Seconds between consecutive geometry vertices.
		Duration []float64 `json:"duration"`
	} `json:"annotation"`
	Steps []MapboxStep `json:"steps"`
}

type MapboxStep struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
	Maneuver struct {
		Instruction string `json:"instruction"`
	} `json:"maneuver"`
}

// label prefers the road name and falls back to the maneuver text.
func (s MapboxStep) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Maneuver.Instruction
}

// ParseMapbox decodes either a single route or a full directions response,
// in which case the first route is used.
func ParseMapbox(data []byte, start time.Time) (*journey.Journey, error) {
	var res struct {
		Routes []MapboxRoute `json:"routes"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode mapbox route: %w", err)
	}
	if len(res.Routes) > 0 {
		return FromMapbox(res.Routes[0], start)
	}

	var r MapboxRoute
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode mapbox route: %w", err)
	}
	return FromMapbox(r, start)
}

// FromMapbox walks the route geometry from start, advancing the clock by each
// vertex's annotated duration. Steps with a duration become chapters.
func FromMapbox(r MapboxRoute, start time.Time) (*journey.Journey, error) {
	coords := r.Geometry.Coordinates
	c := clock(start.UnixMilli())

	var positions []journey.Position
	if len(coords) > 0 {
		p, err := coords.position(0, c.millis())
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	i := 0
	for li, leg := range r.Legs {
		for _, d := range leg.Annotation.Duration {
			i++
			if i >= len(coords) {
				return nil, oops.
					In("route").
					Code("annotation_mismatch").
					With("format", string(FormatMapbox), "leg", li).
					Errorf("mapbox route has more durations than geometry vertices")
			}
			c.advance(d)
			p, err := coords.position(i, c.millis())
			if err != nil {
				return nil, err
			}
			positions = append(positions, p)
		}
	}

	var marks []journey.ChapterMark
	c = clock(start.UnixMilli())
	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			// zero-duration steps such as arrivals
			if step.Duration == 0 {
				continue
			}
			marks = append(marks, journey.ChapterMark{Time: c.millis(), Description: step.label()})
			c.advance(step.Duration)
		}
	}

	return newJourney(FormatMapbox, positions, marks)
}
