// Package route turns route data from external sources into journeys.
//
// Every adapter validates its input eagerly: a route that cannot produce at
// least two timestamped positions fails at parse time with an error wrapping
// journey.ErrInsufficientPositions.
package route

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// Format names a supported route encoding.
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatMapbox  Format = "mapbox"
	FormatGoogle  Format = "google"
	FormatGPX     Format = "gpx"
	FormatGTFS    Format = "gtfs"
)

// Formats lists every format accepted by ParseFormat.
var Formats = []Format{FormatGeoJSON, FormatMapbox, FormatGoogle, FormatGPX, FormatGTFS}

// ParseFormat validates a format name. Matching is case-insensitive.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown route format %q", s)
}

// FormatFromPath infers the format from a file extension. Plain .json files
// are ambiguous and need an explicit format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson":
		return FormatGeoJSON, nil
	case ".gpx":
		return FormatGPX, nil
	}
	return "", fmt.Errorf("cannot infer route format from %q", path)
}

// Options tune the adapters that compute timestamps themselves.
type Options struct {
	// StartTime is the departure time for Mapbox and Google routes. The zero
	// value means now.
	StartTime time.Time
}

func (o Options) startTime() time.Time {
	if o.StartTime.IsZero() {
		return time.Now()
	}
	return o.StartTime
}

// Load reads and parses a route file.
func Load(path string, format Format, opts Options) (*journey.Journey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route: %w", err)
	}
	return Parse(data, format, opts)
}

// Parse decodes route data in the given format. GTFS trips come from a
// database, not a document, and are built with FromGTFSTrip.
func Parse(data []byte, format Format, opts Options) (*journey.Journey, error) {
	switch format {
	case FormatGeoJSON:
		return ParseGeoJSON(data)
	case FormatMapbox:
		return ParseMapbox(data, opts.startTime())
	case FormatGoogle:
		return ParseGoogle(data, opts.startTime())
	case FormatGPX:
		return ParseGPX(data)
	}
	return nil, fmt.Errorf("route format %q cannot be parsed from a file", format)
}

func newJourney(format Format, positions []journey.Position, marks []journey.ChapterMark) (*journey.Journey, error) {
	if len(positions) < 2 {
		return nil, oops.
			In("route").
			Code("insufficient_positions").
			With("format", string(format), "positions", len(positions)).
			Wrap(journey.ErrInsufficientPositions)
	}
	return journey.New(positions, marks...)
}

func position(lon, lat float64, altitude journey.NullFloat64, ts int64) journey.Position {
	return journey.Position{
		Coords: journey.Coordinates{
			Longitude: lon,
			Latitude:  lat,
			Altitude:  altitude,
		},
		Timestamp: ts,
	}
}

// clock accumulates fractional milliseconds and rounds on read.
type clock float64

func (c *clock) advance(seconds float64) { *c += clock(seconds * 1000) }

func (c clock) millis() int64 { return int64(math.Round(float64(c))) }
