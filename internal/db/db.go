// Package db reads GTFS trips from a Postgres database populated by
// postgis-gtfs-importer.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ezzatron/fake-geolocation-demo/internal/gtfs"
)

// ErrTripNotFound is returned when no trip matches the requested id.
var ErrTripNotFound = errors.New("trip not found")

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Store queries one GTFS database.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// LoadTripPlan loads a trip, its shape and its stop times for the service
// day containing day. If tripID is empty, the first trip running at day is
// used.
func (s *Store) LoadTripPlan(ctx context.Context, tripID string, day time.Time) (gtfs.TripPlan, error) {
	var trip gtfs.Trip
	if tripID == "" {
		active, err := s.FetchActiveTrips(ctx, day)
		if err != nil {
			return gtfs.TripPlan{}, err
		}
		running := firstRunning(active, day)
		if running == nil {
			return gtfs.TripPlan{}, fmt.Errorf("no trip running at %s: %w", day.Format(time.RFC3339), ErrTripNotFound)
		}
		trip = running.Trip
	} else {
		var err error
		if trip, err = s.FetchTrip(ctx, tripID); err != nil {
			return gtfs.TripPlan{}, err
		}
	}

	shape, err := s.FetchShapePoints(ctx, trip.ShapeID)
	if err != nil {
		return gtfs.TripPlan{}, err
	}
	sts, err := s.FetchStopTimes(ctx, trip.TripID)
	if err != nil {
		return gtfs.TripPlan{}, err
	}

	return gtfs.TripPlan{
		Trip:       trip,
		ServiceDay: midnight(day),
		Shape:      shape,
		StopTimes:  sts,
	}, nil
}

func firstRunning(trips []gtfs.ActiveTrip, at time.Time) *gtfs.ActiveTrip {
	for i, t := range trips {
		if !at.Before(t.StartTime) && !at.After(t.EndTime) {
			return &trips[i]
		}
	}
	return nil
}

// FetchTrip looks up a single trip by id.
func (s *Store) FetchTrip(ctx context.Context, tripID string) (gtfs.Trip, error) {
	q := `SELECT trip_id, route_id, COALESCE(shape_id, ''), service_id FROM trips WHERE trip_id = $1`
	var t gtfs.Trip
	err := s.db.QueryRowContext(ctx, q, tripID).Scan(&t.TripID, &t.RouteID, &t.ShapeID, &t.ServiceID)
	if errors.Is(err, sql.ErrNoRows) {
		return gtfs.Trip{}, fmt.Errorf("trip %q: %w", tripID, ErrTripNotFound)
	}
	if err != nil {
		return gtfs.Trip{}, fmt.Errorf("query trip: %w", err)
	}
	return t, nil
}

// FetchActiveTrips returns trips that run on the service day of now, with
// their absolute start and end times derived from stop_times.
func (s *Store) FetchActiveTrips(ctx context.Context, now time.Time) ([]gtfs.ActiveTrip, error) {
	serviceIDs, err := s.fetchActiveServiceIDs(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(serviceIDs) == 0 {
		return nil, nil
	}

	q := `SELECT trip_id, route_id, COALESCE(shape_id, ''), service_id FROM trips WHERE service_id = ANY($1)`
	rows, err := s.db.QueryContext(ctx, q, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []gtfs.ActiveTrip
	for rows.Next() {
		var t gtfs.ActiveTrip
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ShapeID, &t.ServiceID); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := trips[:0]
	for _, t := range trips {
		span, err := s.fetchTripSpan(ctx, t.TripID, now)
		if errors.Is(err, sql.ErrNoRows) {
			// no stop_times
			continue
		}
		if err != nil {
			return nil, err
		}
		t.StartTime, t.EndTime = span[0], span[1]
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) fetchActiveServiceIDs(ctx context.Context, now time.Time) ([]string, error) {
	date := now.Format("2006-01-02")
	dow := int(now.Weekday()) // 0=Sunday

	// calendar flags are 0/1 or an enum; calendar_dates exception_type is 1 (added) or 2 (removed)
	q := `
WITH base AS (
  SELECT service_id
  FROM calendar
  WHERE start_date <= $1::date AND end_date >= $1::date
    AND (
      ($2 = 0 AND (sunday::text IN ('1','t','true','available'))) OR
      ($2 = 1 AND (monday::text IN ('1','t','true','available'))) OR
      ($2 = 2 AND (tuesday::text IN ('1','t','true','available'))) OR
      ($2 = 3 AND (wednesday::text IN ('1','t','true','available'))) OR
      ($2 = 4 AND (thursday::text IN ('1','t','true','available'))) OR
      ($2 = 5 AND (friday::text IN ('1','t','true','available'))) OR
      ($2 = 6 AND (saturday::text IN ('1','t','true','available')))
    )
), add_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('1','added'))
), rm_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('2','removed'))
)
SELECT DISTINCT service_id FROM (SELECT service_id FROM base UNION SELECT service_id FROM add_exc) merged
WHERE service_id NOT IN (SELECT service_id FROM rm_exc)
`
	rows, err := s.db.QueryContext(ctx, q, date, dow)
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) fetchTripSpan(ctx context.Context, tripID string, now time.Time) ([2]time.Time, error) {
	q := `
SELECT COALESCE(MIN(departure_time)::text, MIN(arrival_time)::text),
       COALESCE(MAX(arrival_time)::text, MAX(departure_time)::text)
FROM stop_times WHERE trip_id = $1`

	var first, last sql.NullString
	if err := s.db.QueryRowContext(ctx, q, tripID).Scan(&first, &last); err != nil {
		return [2]time.Time{}, err
	}
	if !first.Valid || !last.Valid {
		return [2]time.Time{}, sql.ErrNoRows
	}

	base := midnight(now)
	start := base.Add(time.Duration(parseDaySeconds(first.String)) * time.Second)
	end := base.Add(time.Duration(parseDaySeconds(last.String)) * time.Second)
	if end.Before(start) {
		end = end.Add(24 * time.Hour)
	}
	return [2]time.Time{start, end}, nil
}

func (s *Store) FetchShapePoints(ctx context.Context, shapeID string) ([]gtfs.ShapePoint, error) {
	if shapeID == "" {
		return nil, nil
	}

	// either shape_pt_lat/lon, or a PostGIS shape_pt_loc geography
	cols, err := s.hasColumns(ctx, "shapes", "shape_pt_lat", "shape_pt_lon", "shape_pt_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var latlon string
	switch {
	case cols["shape_pt_lat"] && cols["shape_pt_lon"]:
		latlon = "shape_pt_lat, shape_pt_lon"
	case cols["shape_pt_loc"]:
		latlon = "ST_Y(shape_pt_loc::geometry), ST_X(shape_pt_loc::geometry)"
	default:
		return nil, errors.New("shapes table missing expected columns (lat/lon or shape_pt_loc)")
	}

	q := `SELECT ` + latlon + `, shape_pt_sequence, COALESCE(shape_dist_traveled, 0)
FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	rows, err := s.db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()

	var pts []gtfs.ShapePoint
	for rows.Next() {
		var p gtfs.ShapePoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.Sequence, &p.DistTraveled); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

func (s *Store) FetchStopTimes(ctx context.Context, tripID string) ([]gtfs.StopTime, error) {
	cols, err := s.hasColumns(ctx, "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var latlon string
	switch {
	case cols["stop_lat"] && cols["stop_lon"]:
		latlon = "COALESCE(s.stop_lat, 0), COALESCE(s.stop_lon, 0)"
	case cols["stop_loc"]:
		latlon = "COALESCE(ST_Y(s.stop_loc::geometry), 0), COALESCE(ST_X(s.stop_loc::geometry), 0)"
	default:
		return nil, errors.New("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}

	q := `SELECT st.stop_sequence,
       COALESCE(st.arrival_time::text, ''),
       COALESCE(st.departure_time::text, ''),
       COALESCE(st.shape_dist_traveled, 0),
       st.stop_id,
       COALESCE(s.stop_name, ''),
       ` + latlon + `
FROM stop_times st
JOIN stops s ON s.stop_id = st.stop_id
WHERE st.trip_id = $1
ORDER BY st.stop_sequence`
	rows, err := s.db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var sts []gtfs.StopTime
	for rows.Next() {
		var st gtfs.StopTime
		var arr, dep string
		if err := rows.Scan(&st.StopSequence, &arr, &dep, &st.ShapeDistTraveled, &st.StopID, &st.StopName, &st.StopLat, &st.StopLon); err != nil {
			return nil, err
		}
		st.ArrivalSec = parseDaySeconds(arr)
		st.DepartureSec = parseDaySeconds(dep)
		sts = append(sts, st)
	}
	return sts, rows.Err()
}

// hasColumns reports which of cols exist on the public table.
func (s *Store) hasColumns(ctx context.Context, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	q := `SELECT column_name FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1 AND column_name = ANY($2)`
	rows, err := s.db.QueryContext(ctx, q, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseDaySeconds parses HH:MM[:SS], where hours may exceed 23.
func parseDaySeconds(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return max(h*3600+m*60+sec, 0)
}
