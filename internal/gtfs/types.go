// Package gtfs holds the GTFS records needed to replay a single scheduled
// trip, and the pure functions that turn them into a time/distance schedule.
package gtfs

import "time"

type Trip struct {
	TripID    string
	RouteID   string
	ShapeID   string
	ServiceID string
}

type ActiveTrip struct {
	Trip
	StartTime time.Time // absolute time (service day, local TZ)
	EndTime   time.Time
}

type StopTime struct {
	StopSequence      int
	ArrivalSec        int     // seconds since midnight (can exceed 24h)
	DepartureSec      int     // seconds since midnight (can exceed 24h)
	ShapeDistTraveled float64 // meters, 0 if missing
	StopID            string
	StopName          string
	StopLat           float64
	StopLon           float64
}

// Label names the stop for display, preferring its name over its id.
func (st StopTime) Label() string {
	if st.StopName != "" {
		return st.StopName
	}
	return st.StopID
}

type ShapePoint struct {
	Lat          float64
	Lon          float64
	Sequence     int
	DistTraveled float64 // meters, 0 if missing
}

// TripPlan is everything needed to replay one trip on one service day.
type TripPlan struct {
	Trip       Trip
	ServiceDay time.Time // local midnight the stop times are relative to
	Shape      []ShapePoint
	StopTimes  []StopTime
}
