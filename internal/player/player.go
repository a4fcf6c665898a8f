// Package player plays a journey back against a clock, emitting the
// interpolated position at a fixed tick rate.
package player

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ezzatron/fake-geolocation-demo/internal/clock"
	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
)

// DefaultTickDuration is the interval between POSITION events while playing.
const DefaultTickDuration = 100 * time.Millisecond

// ChapterRestartWindow is how far into a chapter, in milliseconds, a seek to
// the previous chapter still goes to the chapter before it rather than
// restarting the current one.
const ChapterRestartWindow = 3000

type EventType string

const (
	EventPlay     EventType = "PLAY"
	EventPause    EventType = "PAUSE"
	EventPosition EventType = "POSITION"
)

// Event is delivered to subscribers. OffsetTime and Position are only set on
// POSITION events; the position's timestamp is the time the event was
// emitted, not the time recorded in the journey.
type Event struct {
	Type       EventType        `json:"type"`
	OffsetTime float64          `json:"offsetTime"`
	Position   journey.Position `json:"position,omitzero"`
}

// Subscriber receives player events one at a time, in the order they
// happened. It usually runs on the goroutine that caused the event, but an
// event raised while another goroutine is delivering is handed to that
// goroutine instead. It may call back into the player; events raised by such
// calls are delivered after the current one.
type Subscriber func(Event)

// SubscriberError reports a subscriber that panicked.
type SubscriberError struct {
	Value any
	Event Event
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("player subscriber panicked handling %s event: %v", e.Event.Type, e.Value)
}

func (e *SubscriberError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

type PlayerMetrics interface {
	PlayerEventInc(eventType string)
	PlayerOffsetSet(ms float64)
	TickObserve(d time.Duration)
}

type Options struct {
	// TickDuration defaults to DefaultTickDuration.
	TickDuration time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock

	Logger  *zap.Logger
	Metrics PlayerMetrics

	// OnError receives subscriber failures on a separate goroutine. The
	// default logs them.
	OnError func(error)
}

// Player is a paused-or-playing state machine over a journey. It starts
// paused at offset 0. All methods are safe for concurrent use.
type Player struct {
	j       *journey.Journey
	tick    float64 // ms
	clock   clock.Clock
	log     *zap.Logger
	onError func(error)
	metrics PlayerMetrics

	mu     sync.Mutex
	paused bool
	closed bool
	offset float64 // ms
	delay  float64 // ms until the pending or next tick
	last   time.Time
	timer  clock.Timer
	gen    uint64
	subs   []*subscription

	// events waiting for delivery, in the order they happened
	queue    []delivery
	draining bool
}

type delivery struct {
	subs []*subscription
	ev   Event
}

type subscription struct {
	fn Subscriber
}

func New(j *journey.Journey, opts Options) *Player {
	p := &Player{
		j:       j,
		tick:    millis(opts.TickDuration),
		clock:   opts.Clock,
		log:     opts.Logger,
		onError: opts.OnError,
		metrics: opts.Metrics,
		paused:  true,
	}
	if p.tick <= 0 {
		p.tick = millis(DefaultTickDuration)
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.onError == nil {
		p.onError = func(err error) {
			p.log.Error("subscriber failed", zap.Error(err))
		}
	}
	return p
}

func (p *Player) Journey() *journey.Journey { return p.j }

func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// OffsetTime returns the playback offset in milliseconds as of the last
// tick, pause or seek.
func (p *Player) OffsetTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Subscribe registers fn and returns a function that removes it. Events go
// to subscribers in the order they subscribed. Each call is a separate
// registration: subscribing the same function twice delivers every event to
// it twice.
func (p *Player) Subscribe(fn Subscriber) (unsubscribe func()) {
	s := &subscription{fn: fn}

	p.mu.Lock()
	if !p.closed {
		p.subs = append(p.subs, s)
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, sub := range p.subs {
				if sub == s {
					p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (p *Player) Play() {
	p.mu.Lock()
	if p.closed || !p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = false
	p.last = p.clock.Now()
	p.schedule()
	p.log.Debug("play", zap.Float64("offset_ms", p.offset), zap.Float64("delay_ms", p.delay))
	p.enqueue(Event{Type: EventPlay})
	p.mu.Unlock()

	p.drain()
}

func (p *Player) Pause() {
	p.mu.Lock()
	if p.closed || p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	if p.timer != nil {
		elapsed := millis(p.clock.Now().Sub(p.last))
		p.offset += elapsed
		p.delay = max(0, p.delay-elapsed)
		p.cancel()
	}
	p.log.Debug("pause", zap.Float64("offset_ms", p.offset), zap.Float64("delay_ms", p.delay))
	p.enqueue(Event{Type: EventPause})
	p.mu.Unlock()

	p.drain()
}

// Seek moves playback to offset, in milliseconds from the start of the
// journey. The offset is not clamped. A playing player ticks straight away;
// a paused one emits a single POSITION event.
func (p *Player) Seek(offset float64) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.seek(offset)
	p.mu.Unlock()

	p.drain()
}

// SeekToNextChapter seeks to the end of the current chapter, or to the end
// of the journey when the offset is outside every chapter.
func (p *Player) SeekToNextChapter() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	target := float64(p.j.Duration())
	if c, ok := p.j.ChapterAtOffsetTime(p.offset); ok {
		target = float64(c.OffsetTime + c.Duration)
	}
	p.seek(target)
	p.mu.Unlock()

	p.drain()
}

// SeekToPreviousChapter seeks to the start of the current chapter. Within
// the first ChapterRestartWindow of a chapter it seeks to the start of the
// chapter before instead. Outside every chapter it seeks to the start.
func (p *Player) SeekToPreviousChapter() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	c, ok := p.j.ChapterAtOffsetTime(p.offset)
	if ok && p.offset-float64(c.OffsetTime) < ChapterRestartWindow {
		c, ok = p.j.ChapterAtOffsetTime(float64(c.OffsetTime) - 1)
	}
	target := 0.0
	if ok {
		target = float64(c.OffsetTime)
	}
	p.seek(target)
	p.mu.Unlock()

	p.drain()
}

// Close stops playback and drops every subscriber. The player ignores all
// calls afterwards.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cancel()
	p.subs = nil
	p.queue = nil
}

// seek must be called with mu held.
func (p *Player) seek(offset float64) {
	p.cancel()
	now := p.clock.Now()
	p.last = now
	p.offset = offset
	p.delay = 0
	p.log.Debug("seek", zap.Float64("offset_ms", offset), zap.Bool("paused", p.paused))

	if !p.paused {
		p.schedule()
		return
	}
	p.enqueue(p.positionEvent(now))
}

// schedule must be called with mu held.
func (p *Player) schedule() {
	p.gen++
	gen := p.gen
	p.timer = p.clock.AfterFunc(duration(p.delay), func() { p.onTick(gen) })
}

// cancel must be called with mu held.
func (p *Player) cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	// a tick that already fired but is waiting on mu sees a newer generation
	p.gen++
}

func (p *Player) onTick(gen uint64) {
	start := time.Now()

	p.mu.Lock()
	if p.closed || p.paused || gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil

	now := p.clock.Now()
	p.offset += millis(now.Sub(p.last))
	p.last = now

	duration := float64(p.j.Duration())
	if p.offset >= duration {
		p.offset = duration
	} else {
		p.delay = p.tick
		p.schedule()
	}
	p.enqueue(p.positionEvent(now))
	p.mu.Unlock()

	p.drain()

	if p.metrics != nil {
		p.metrics.TickObserve(time.Since(start))
	}
}

func (p *Player) positionEvent(now time.Time) Event {
	return Event{
		Type:       EventPosition,
		OffsetTime: p.offset,
		Position: journey.Position{
			Coords:    p.j.CoordinatesAtOffsetTime(p.offset),
			Timestamp: now.UnixMilli(),
		},
	}
}

// enqueue must be called with mu held, in the same critical section as the
// state change that produced ev. subs is never mutated in place, so the
// snapshot stays valid.
func (p *Player) enqueue(ev Event) {
	p.queue = append(p.queue, delivery{subs: p.subs, ev: ev})
}

// drain delivers queued events in order. Only one goroutine drains at a
// time; a call made while another drain is running, including a re-entrant
// call from a subscriber, returns at once and leaves its events to that
// drain.
func (p *Player) drain() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for len(p.queue) > 0 {
		d := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.dispatch(d.subs, d.ev)

		p.mu.Lock()
	}
	p.draining = false
	p.mu.Unlock()
}

// dispatch runs without mu held.
func (p *Player) dispatch(subs []*subscription, ev Event) {
	if p.metrics != nil {
		p.metrics.PlayerEventInc(string(ev.Type))
		if ev.Type == EventPosition {
			p.metrics.PlayerOffsetSet(ev.OffsetTime)
		}
	}
	for _, s := range subs {
		p.deliver(s, ev)
	}
}

func (p *Player) deliver(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			err := &SubscriberError{Value: r, Event: ev}
			go p.onError(err)
		}
	}()
	s.fn(ev)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func duration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
