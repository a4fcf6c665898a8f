package gtfs

import "time"

// Keyframe pins a distance along the shape to an instant.
type Keyframe struct {
	Time time.Time
	Dist float64
	Stop int // index into the plan's stop times
}

// Schedule builds the keyframes of a trip from its stop times. A stop's
// distance comes from shape_dist_traveled, or from projecting the stop onto
// the shape; stops with neither borrow a neighbour's distance, and when no
// stop has one they are spread evenly. Intermediate stops with a dwell get an
// arrival and a departure keyframe. Keyframes that go back in time, or that
// repeat the previous one exactly, are dropped.
func Schedule(plan TripPlan, cum []float64) []Keyframe {
	sts := plan.StopTimes
	n := len(sts)
	if n == 0 || len(cum) == 0 {
		return nil
	}
	total := cum[len(cum)-1]
	dists := stopDistances(sts, plan.Shape, cum, total)

	var kfs []Keyframe
	add := func(sec int, i int) {
		t := plan.ServiceDay.Add(time.Duration(sec) * time.Second)
		if len(kfs) > 0 {
			prev := kfs[len(kfs)-1]
			if t.Before(prev.Time) || (t.Equal(prev.Time) && dists[i] == prev.Dist) {
				return
			}
		}
		kfs = append(kfs, Keyframe{Time: t, Dist: dists[i], Stop: i})
	}

	for i, st := range sts {
		if i == 0 {
			sec := st.DepartureSec
			if sec == 0 {
				sec = st.ArrivalSec
			}
			add(sec, i)
			continue
		}
		if st.ArrivalSec > 0 {
			add(st.ArrivalSec, i)
		}
		if st.DepartureSec > 0 && st.DepartureSec != st.ArrivalSec {
			add(st.DepartureSec, i)
		}
	}
	return kfs
}

func stopDistances(sts []StopTime, shape []ShapePoint, cum []float64, total float64) []float64 {
	n := len(sts)
	dists := make([]float64, n)
	known := make([]bool, n)
	anyKnown := false

	for i, st := range sts {
		switch {
		case st.ShapeDistTraveled > 0:
			dists[i] = st.ShapeDistTraveled
		case st.StopLat != 0 || st.StopLon != 0:
			dists[i] = NearestDistanceAlong(shape, cum, st.StopLat, st.StopLon)
		default:
			continue
		}
		known[i] = true
		anyKnown = true
	}

	if !anyKnown {
		for i := range dists {
			if n > 1 {
				dists[i] = total * float64(i) / float64(n-1)
			}
		}
		return dists
	}

	// forward fill, then backward fill the leading gap
	last, have := 0.0, false
	for i := range dists {
		if known[i] {
			last, have = dists[i], true
		} else if have {
			dists[i], known[i] = last, true
		}
	}
	for i := n - 1; i >= 0; i-- {
		if known[i] {
			last = dists[i]
		} else {
			dists[i] = last
		}
	}

	prev := 0.0
	for i := range dists {
		if dists[i] < prev {
			dists[i] = prev
		}
		if dists[i] > total {
			dists[i] = total
		}
		prev = dists[i]
	}
	return dists
}
