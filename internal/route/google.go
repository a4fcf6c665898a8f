package route

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// GoogleRoute is a route from the Google Routes API, requested with
// GEO_JSON_LINESTRING polylines.
type GoogleRoute struct {
	Legs []GoogleLeg `json:"legs"`
}

type GoogleLeg struct {
	Steps []GoogleStep `json:"steps"`
}

type GoogleStep struct {
	StaticDuration Seconds `json:"staticDuration"`
	Polyline       struct {
		GeoJSONLinestring LineString `json:"geoJsonLinestring"`
	} `json:"polyline"`
	NavigationInstruction struct {
		Instructions string `json:"instructions"`
	} `json:"navigationInstruction"`
}

// Seconds decodes a protobuf JSON duration such as "3.333s", or a plain
// number of seconds.
type Seconds float64

func (s *Seconds) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*s = Seconds(f)
		return nil
	}

	f, err := strconv.ParseFloat(strings.TrimSuffix(str, "s"), 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", str)
	}
	*s = Seconds(f)
	return nil
}

// ParseGoogle decodes either a single route or a computeRoutes response, in
// which case the first route is used.
func ParseGoogle(data []byte, start time.Time) (*journey.Journey, error) {
	var res struct {
		Routes []GoogleRoute `json:"routes"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode google route: %w", err)
	}
	if len(res.Routes) > 0 {
		return FromGoogle(res.Routes[0], start)
	}

	var r GoogleRoute
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode google route: %w", err)
	}
	return FromGoogle(r, start)
}

// FromGoogle walks each step's polyline from start, spreading the step's
// duration over its vertices in proportion to distance. Steps with a
// duration become chapters.
func FromGoogle(r GoogleRoute, start time.Time) (*journey.Journey, error) {
	c := clock(start.UnixMilli())

	var (
		positions []journey.Position
		marks     []journey.ChapterMark
		last      *journey.Position
	)

	for li, leg := range r.Legs {
		for si, step := range leg.Steps {
			coords := step.Polyline.GeoJSONLinestring.Coordinates
			dur := float64(step.StaticDuration)

			switch len(coords) {
			case 0:
				continue
			case 1:
				if dur != 0 {
					return nil, oops.
						In("route").
						Code("single_position_step").
						With("format", string(FormatGoogle), "leg", li, "step", si).
						Errorf("single-position step with duration in leg %d, step %d", li, si)
				}
				continue
			}

			vertices := make([]journey.Position, len(coords))
			for i := range coords {
				p, err := coords.position(i, 0)
				if err != nil {
					return nil, err
				}
				vertices[i] = p
			}

			if dur != 0 {
				marks = append(marks, journey.ChapterMark{
					Time:        c.millis(),
					Description: step.NavigationInstruction.Instructions,
				})
			}

			dists := make([]float64, len(vertices)-1)
			total := 0.0
			for i := range dists {
				dists[i] = journey.Distance(vertices[i].Coords, vertices[i+1].Coords)
				total += dists[i]
			}

			if total == 0 {
				first := vertices[0]
				first.Timestamp = c.millis()
				positions = append(positions, first)
				c.advance(dur)
			} else {
				for i, d := range dists {
					p := vertices[i]
					p.Timestamp = c.millis()
					positions = append(positions, p)
					c.advance(dur * d / total)
				}
			}

			end := vertices[len(vertices)-1]
			last = &end
		}
	}

	if last != nil {
		last.Timestamp = c.millis()
		positions = append(positions, *last)
	}

	return newJourney(FormatGoogle, positions, marks)
}
