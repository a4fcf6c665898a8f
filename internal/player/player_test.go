package player_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezzatron/fake-geolocation-demo/internal/clock"
	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
	"github.com/ezzatron/fake-geolocation-demo/internal/player"
)

const startTime = 1000

func at(lon, lat float64, ts int64) journey.Position {
	return journey.Position{
		Coords:    journey.Coordinates{Longitude: lon, Latitude: lat},
		Timestamp: ts,
	}
}

// Crosses the antimeridian, then runs up a meridian to the pole.
func polarJourney(t *testing.T) *journey.Journey {
	t.Helper()
	j, err := journey.New([]journey.Position{
		at(-170, 70, 0),
		at(170, 80, 200),
		at(70, 90, 400),
	})
	require.NoError(t, err)
	return j
}

type recorder struct {
	mu     sync.Mutex
	events []player.Event
}

func (r *recorder) record(ev player.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []player.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.Event(nil), r.events...)
}

func (r *recorder) types() []player.EventType {
	var types []player.EventType
	for _, ev := range r.all() {
		types = append(types, ev.Type)
	}
	return types
}

func (r *recorder) positions() []player.Event {
	var out []player.Event
	for _, ev := range r.all() {
		if ev.Type == player.EventPosition {
			out = append(out, ev)
		}
	}
	return out
}

func newPlayer(t *testing.T, j *journey.Journey) (*player.Player, *clock.Manual, *recorder) {
	t.Helper()
	c := clock.NewManual(time.UnixMilli(startTime))
	p := player.New(j, player.Options{Clock: c})
	r := &recorder{}
	unsubscribe := p.Subscribe(r.record)
	t.Cleanup(unsubscribe)
	t.Cleanup(p.Close)
	return p, c, r
}

type expected struct {
	offset    float64
	timestamp int64
	lon, lat  float64
	heading   float64
	speed     float64
}

func assertPosition(t *testing.T, want expected, ev player.Event) {
	t.Helper()
	require.Equal(t, player.EventPosition, ev.Type)
	assert.Equal(t, want.offset, ev.OffsetTime)
	assert.Equal(t, want.timestamp, ev.Position.Timestamp)

	c := ev.Position.Coords
	assert.InDelta(t, want.lon, c.Longitude, 1e-9)
	assert.InDelta(t, want.lat, c.Latitude, 1e-9)
	require.True(t, c.Heading.Valid)
	if math.IsNaN(want.heading) {
		assert.True(t, math.IsNaN(c.Heading.Float64), "heading %v", c.Heading.Float64)
	} else {
		assert.InDelta(t, want.heading, c.Heading.Float64, 1e-9)
	}
	require.True(t, c.Speed.Valid)
	assert.InDelta(t, want.speed, c.Speed.Float64, 1e-6)
}

const (
	firstHeading  = 342.05490135397787
	firstSpeed    = 6196540.175162239
	secondHeading = 0.0
	secondSpeed   = 5577044.531996764
)

func TestPlaysJourneyWithInterpolatedPositions(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Play()
	require.NoError(t, c.RunAll())

	assert.Equal(t, []player.EventType{
		player.EventPlay,
		player.EventPosition,
		player.EventPosition,
		player.EventPosition,
		player.EventPosition,
		player.EventPosition,
	}, r.types())

	positions := r.positions()
	require.Len(t, positions, 5)
	assertPosition(t, expected{0, startTime, -170, 70, firstHeading, firstSpeed}, positions[0])
	assertPosition(t, expected{100, startTime + 100, -176.70495327058325, 75.19442943503938, firstHeading, firstSpeed}, positions[1])
	assertPosition(t, expected{200, startTime + 200, 170, 80, secondHeading, secondSpeed}, positions[2])
	assertPosition(t, expected{300, startTime + 300, 170, 85, secondHeading, secondSpeed}, positions[3])
	assertPosition(t, expected{400, startTime + 400, 70, 90, math.NaN(), 0}, positions[4])

	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 400.0, p.OffsetTime())
	assert.False(t, p.IsPaused())
}

func TestPauseKeepsElapsedTime(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Play()
	c.Advance(50 * time.Millisecond)
	p.Pause()
	assert.True(t, p.IsPaused())
	assert.Equal(t, 50.0, p.OffsetTime())
	assert.Equal(t, 0, c.Pending())

	c.Advance(50 * time.Millisecond)
	p.Play()
	require.NoError(t, c.RunAll())

	assert.Equal(t, []player.EventType{
		player.EventPlay,
		player.EventPosition,
		player.EventPause,
		player.EventPlay,
		player.EventPosition,
		player.EventPosition,
		player.EventPosition,
		player.EventPosition,
	}, r.types())

	positions := r.positions()
	require.Len(t, positions, 5)
	assertPosition(t, expected{0, startTime, -170, 70, firstHeading, firstSpeed}, positions[0])
	assertPosition(t, expected{100, startTime + 150, -176.70495327058325, 75.19442943503938, firstHeading, firstSpeed}, positions[1])
	assertPosition(t, expected{200, startTime + 250, 170, 80, secondHeading, secondSpeed}, positions[2])
	assertPosition(t, expected{300, startTime + 350, 170, 85, secondHeading, secondSpeed}, positions[3])
	assertPosition(t, expected{400, startTime + 450, 70, 90, math.NaN(), 0}, positions[4])
}

func TestPlayAndPauseAreIdempotent(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Pause()
	assert.Empty(t, r.all())

	p.Play()
	p.Play()
	assert.Equal(t, 1, c.Pending())

	p.Pause()
	p.Pause()
	assert.Equal(t, []player.EventType{player.EventPlay, player.EventPause}, r.types())
}

func TestSeekWhilePausedEmitsPosition(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Seek(300)
	assert.True(t, p.IsPaused())
	assert.Equal(t, 0, c.Pending())

	positions := r.positions()
	require.Len(t, positions, 1)
	assertPosition(t, expected{300, startTime, 170, 85, secondHeading, secondSpeed}, positions[0])

	p.Play()
	require.NoError(t, c.RunAll())

	positions = r.positions()
	require.Len(t, positions, 3)
	assertPosition(t, expected{300, startTime, 170, 85, secondHeading, secondSpeed}, positions[1])
	assertPosition(t, expected{400, startTime + 100, 70, 90, math.NaN(), 0}, positions[2])
}

func TestSeekWhilePlayingReplacesPendingTick(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Play()
	c.Advance(0)
	c.Advance(50 * time.Millisecond)

	p.Seek(250)
	assert.Len(t, r.positions(), 1, "seeking while playing waits for the next tick")
	assert.Equal(t, 1, c.Pending())

	c.Advance(0)
	c.Advance(100 * time.Millisecond)

	positions := r.positions()
	require.Len(t, positions, 3)
	assert.Equal(t, 250.0, positions[1].OffsetTime)
	assert.Equal(t, int64(startTime+50), positions[1].Position.Timestamp)
	assert.InDelta(t, 82.4952312784634, positions[1].Position.Coords.Latitude, 1e-9)
	assert.Equal(t, 350.0, positions[2].OffsetTime)
	assert.Equal(t, int64(startTime+150), positions[2].Position.Timestamp)
	assert.InDelta(t, 87.5047687215366, positions[2].Position.Coords.Latitude, 1e-9)
}

func TestSeekIsNotClamped(t *testing.T) {
	p, _, r := newPlayer(t, polarJourney(t))

	p.Seek(-100)
	assert.Equal(t, -100.0, p.OffsetTime())
	p.Seek(1000)
	assert.Equal(t, 1000.0, p.OffsetTime())

	positions := r.positions()
	require.Len(t, positions, 2)
	assertPosition(t, expected{-100, startTime, -170, 70, math.NaN(), 0}, positions[0])
	assertPosition(t, expected{1000, startTime, 70, 90, math.NaN(), 0}, positions[1])
}

func TestTickClampsToDuration(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Seek(1000)
	p.Play()
	require.NoError(t, c.RunAll())

	positions := r.positions()
	require.Len(t, positions, 2)
	assert.Equal(t, 400.0, positions[1].OffsetTime)
	assert.Equal(t, 400.0, p.OffsetTime())
	assert.Equal(t, 0, c.Pending())
}

func TestPlayingContinuesAfterSeekFromEnd(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Play()
	require.NoError(t, c.RunAll())
	p.Seek(0)
	require.NoError(t, c.RunAll())

	var offsets []float64
	for _, ev := range r.positions() {
		offsets = append(offsets, ev.OffsetTime)
	}
	assert.Equal(t, []float64{0, 100, 200, 300, 400, 0, 100, 200, 300, 400}, offsets)
}

func TestCustomTickDuration(t *testing.T) {
	c := clock.NewManual(time.UnixMilli(startTime))
	p := player.New(polarJourney(t), player.Options{Clock: c, TickDuration: 150 * time.Millisecond})
	defer p.Close()
	r := &recorder{}
	p.Subscribe(r.record)

	p.Play()
	require.NoError(t, c.RunAll())

	var offsets []float64
	for _, ev := range r.positions() {
		offsets = append(offsets, ev.OffsetTime)
	}
	assert.Equal(t, []float64{0, 150, 300, 400}, offsets)
}

func chapterJourney(t *testing.T) *journey.Journey {
	t.Helper()
	j, err := journey.New(
		[]journey.Position{at(0, 0, 0), at(0, 1, 40000)},
		journey.ChapterMark{Time: 0, Description: "a"},
		journey.ChapterMark{Time: 10000, Description: "b"},
		journey.ChapterMark{Time: 30000, Description: "c"},
	)
	require.NoError(t, err)
	return j
}

func TestSeekToNextChapter(t *testing.T) {
	p, _, _ := newPlayer(t, chapterJourney(t))

	for _, want := range []float64{10000, 30000, 40000, 40000} {
		p.SeekToNextChapter()
		assert.Equal(t, want, p.OffsetTime())
	}
}

func TestSeekToPreviousChapter(t *testing.T) {
	tests := []struct {
		from, want float64
	}{
		{from: 20000, want: 10000},
		{from: 13000, want: 10000},
		{from: 12999, want: 0},
		{from: 11000, want: 0},
		{from: 10000, want: 0},
		{from: 35000, want: 30000},
		{from: 31000, want: 10000},
		{from: 1000, want: 0},
		{from: 0, want: 0},
		{from: 40000, want: 30000},
	}

	for _, tt := range tests {
		p, _, _ := newPlayer(t, chapterJourney(t))
		p.Seek(tt.from)
		p.SeekToPreviousChapter()
		assert.Equal(t, tt.want, p.OffsetTime(), "from %v", tt.from)
	}
}

func TestChapterNavigationWithoutChapters(t *testing.T) {
	p, _, _ := newPlayer(t, polarJourney(t))

	p.Seek(150)
	p.SeekToNextChapter()
	assert.Equal(t, 400.0, p.OffsetTime())

	p.SeekToPreviousChapter()
	assert.Equal(t, 0.0, p.OffsetTime())
}

func TestChapterNavigationEmitsPositionWhilePaused(t *testing.T) {
	p, _, r := newPlayer(t, chapterJourney(t))

	p.SeekToNextChapter()

	positions := r.positions()
	require.Len(t, positions, 1)
	assert.Equal(t, 10000.0, positions[0].OffsetTime)
	assert.InDelta(t, 0.2499952402621976, positions[0].Position.Coords.Latitude, 1e-9)
}

func TestUnsubscribe(t *testing.T) {
	p, _, r := newPlayer(t, polarJourney(t))
	other := &recorder{}
	unsubscribe := p.Subscribe(other.record)

	p.Seek(100)
	unsubscribe()
	unsubscribe()
	p.Seek(200)

	assert.Len(t, other.all(), 1)
	assert.Len(t, r.all(), 2)
}

func TestSubscribersRunInSubscriptionOrder(t *testing.T) {
	c := clock.NewManual(time.UnixMilli(startTime))
	p := player.New(polarJourney(t), player.Options{Clock: c})
	defer p.Close()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		p.Subscribe(func(player.Event) { order = append(order, i) })
	}

	p.Seek(0)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	errs := make(chan error, 1)
	c := clock.NewManual(time.UnixMilli(startTime))
	p := player.New(polarJourney(t), player.Options{
		Clock:   c,
		OnError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})
	defer p.Close()

	p.Subscribe(func(player.Event) { panic("boom") })
	r := &recorder{}
	p.Subscribe(r.record)

	p.Seek(200)
	assert.Len(t, r.positions(), 1)
	assert.Equal(t, 200.0, p.OffsetTime())

	select {
	case err := <-errs:
		var serr *player.SubscriberError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "boom", serr.Value)
		assert.Equal(t, player.EventPosition, serr.Event.Type)
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber error was not reported")
	}

	p.Play()
	require.NoError(t, c.RunAll())
	assert.Equal(t, 400.0, p.OffsetTime())
}

func TestSubscriberErrorUnwraps(t *testing.T) {
	cause := assert.AnError
	err := &player.SubscriberError{Value: cause, Event: player.Event{Type: player.EventPlay}}
	assert.ErrorIs(t, err, cause)

	err = &player.SubscriberError{Value: 42}
	assert.NoError(t, err.Unwrap())
}

func TestSubscribersMayCallBack(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Subscribe(func(ev player.Event) {
		if ev.Type == player.EventPosition && ev.OffsetTime >= 100 {
			p.Pause()
		}
	})

	p.Play()
	require.NoError(t, c.RunAll())

	assert.Equal(t, []player.EventType{
		player.EventPlay,
		player.EventPosition,
		player.EventPosition,
		player.EventPause,
	}, r.types())
	assert.True(t, p.IsPaused())
	assert.Equal(t, 100.0, p.OffsetTime())
}

func TestClose(t *testing.T) {
	p, c, r := newPlayer(t, polarJourney(t))

	p.Play()
	p.Close()
	assert.Equal(t, 0, c.Pending())

	p.Pause()
	p.Seek(100)
	p.SeekToNextChapter()
	p.Play()
	require.NoError(t, c.RunAll())

	assert.Equal(t, []player.EventType{player.EventPlay}, r.types())
}

type fakeMetrics struct {
	events map[string]int
	offset float64
	ticks  int
}

func (m *fakeMetrics) PlayerEventInc(eventType string) { m.events[eventType]++ }
func (m *fakeMetrics) PlayerOffsetSet(ms float64) { m.offset = ms }
func (m *fakeMetrics) TickObserve(time.Duration) { m.ticks++ }

func TestMetrics(t *testing.T) {
	m := &fakeMetrics{events: map[string]int{}}
	c := clock.NewManual(time.UnixMilli(startTime))
	p := player.New(polarJourney(t), player.Options{Clock: c, Metrics: m})
	defer p.Close()

	p.Play()
	require.NoError(t, c.RunAll())

	assert.Equal(t, map[string]int{"PLAY": 1, "POSITION": 5}, m.events)
	assert.Equal(t, 400.0, m.offset)
	assert.Equal(t, 5, m.ticks)
}

// pausingMetrics pauses the player from another goroutine while the first
// POSITION event is being delivered.
type pausingMetrics struct {
	p    *player.Player
	once sync.Once
}

func (m *pausingMetrics) PlayerEventInc(eventType string) {
	if eventType != string(player.EventPosition) {
		return
	}
	m.once.Do(func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			m.p.Pause()
		}()
		<-done
	})
}

func (m *pausingMetrics) PlayerOffsetSet(float64) {}
func (m *pausingMetrics) TickObserve(time.Duration) {}

func TestConcurrentPauseIsDeliveredAfterTick(t *testing.T) {
	m := &pausingMetrics{}
	c := clock.NewManual(time.UnixMilli(startTime))
	p := player.New(polarJourney(t), player.Options{Clock: c, Metrics: m})
	defer p.Close()
	m.p = p

	r := &recorder{}
	p.Subscribe(r.record)

	p.Play()
	c.Advance(0)
	require.NoError(t, c.RunAll())

	assert.Equal(t, []player.EventType{
		player.EventPlay,
		player.EventPosition,
		player.EventPause,
	}, r.types())
	assert.True(t, p.IsPaused())
	assert.Equal(t, 0.0, p.OffsetTime())
}

func TestPlayIsDeliveredBeforeFirstTick(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := player.New(polarJourney(t), player.Options{TickDuration: time.Millisecond})
		r := &recorder{}
		p.Subscribe(r.record)

		p.Play()
		require.Eventually(t, func() bool { return len(r.positions()) > 0 }, 5*time.Second, time.Millisecond)
		p.Close()

		assert.Equal(t, player.EventPlay, r.types()[0])
	}
}

func TestRealClockPlayback(t *testing.T) {
	j, err := journey.New([]journey.Position{at(0, 0, 0), at(0, 1, 20)})
	require.NoError(t, err)

	p := player.New(j, player.Options{TickDuration: 5 * time.Millisecond})
	defer p.Close()

	done := make(chan struct{})
	var once sync.Once
	p.Subscribe(func(ev player.Event) {
		if ev.Type == player.EventPosition && ev.OffsetTime == 20 {
			once.Do(func() { close(done) })
		}
	})

	p.Play()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("playback did not reach the end")
	}
}
