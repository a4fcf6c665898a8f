package route

import (
	"github.com/samber/oops"

	"github.com/ezzatron/fake-geolocation-demo/internal/gtfs"
	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// FromGTFSTrip replays a scheduled trip along its shape. Stop keyframes are
// placed on the shape at their scheduled times, shape vertices between two
// keyframes are timed in proportion to distance, and each stop becomes a
// chapter.
func FromGTFSTrip(plan gtfs.TripPlan) (*journey.Journey, error) {
	errb := oops.
		In("route").
		With("format", string(FormatGTFS), "trip_id", plan.Trip.TripID)

	if len(plan.Shape) == 0 {
		return nil, errb.Code("missing_shape").Errorf("trip %s has no shape", plan.Trip.TripID)
	}

	cum := gtfs.CumDistances(plan.Shape)
	kfs := gtfs.Schedule(plan, cum)

	var (
		positions []journey.Position
		marks     []journey.ChapterMark
	)

	j := 0
	for i, kf := range kfs {
		ts := kf.Time.UnixMilli()
		lat, lon := gtfs.PointAtDistance(plan.Shape, cum, kf.Dist)
		positions = append(positions, position(lon, lat, journey.Null, ts))

		if i == 0 || kfs[i-1].Stop != kf.Stop {
			marks = append(marks, journey.ChapterMark{Time: ts, Description: plan.StopTimes[kf.Stop].Label()})
		}

		if i+1 == len(kfs) {
			break
		}
		next := kfs[i+1]
		span := next.Dist - kf.Dist
		if span <= 0 {
			continue
		}

		for j < len(cum) && cum[j] <= kf.Dist {
			j++
		}
		elapsed := float64(next.Time.UnixMilli() - ts)
		for ; j < len(cum) && cum[j] < next.Dist; j++ {
			frac := (cum[j] - kf.Dist) / span
			c := clock(float64(ts) + elapsed*frac)
			p := plan.Shape[j]
			positions = append(positions, position(p.Lon, p.Lat, journey.Null, c.millis()))
		}
	}

	if len(positions) < 2 {
		return nil, errb.Code("insufficient_positions").Wrap(journey.ErrInsufficientPositions)
	}
	return journey.New(positions, marks...)
}
