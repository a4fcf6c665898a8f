// Package clock abstracts wall-clock time and one-shot timers so that timed
// playback can run against real time or against a manually advanced clock.
package clock

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Clock tells the time and schedules callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f on its own goroutine (or, for Manual, on the
	// goroutine advancing the clock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback. Stop reports whether it prevented the call.
type Timer interface {
	Stop() bool
}

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// ErrTimerLoop is returned by RunAll when timers keep scheduling new timers.
var ErrTimerLoop = errors.New("clock: too many timers fired, possible infinite loop")

// MaxRunAll bounds the number of timers RunAll fires.
const MaxRunAll = 100_000

// Manual is a clock that only moves when told to. Timers fire in deadline
// order, and timers sharing a deadline fire in the order they were created.
// Callbacks run synchronously on the goroutine calling Advance or RunAll, and
// may schedule or stop timers.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	m   *Manual
	at  time.Time
	seq uint64
	f   func()
}

// NewManual returns a manual clock reading now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, f: f}
	i := sort.Search(len(m.pending), func(i int) bool {
		return m.pending[i].at.After(t.at)
	})
	m.pending = append(m.pending, nil)
	copy(m.pending[i+1:], m.pending[i:])
	m.pending[i] = t
	return t
}

func (t *manualTimer) Stop() bool {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves the clock forward by d, firing every timer that falls due on
// the way, including timers scheduled by the callbacks themselves.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for m.fireNext(func(at time.Time) bool { return !at.After(target) }) {
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// RunAll fires timers until none are pending, moving the clock to each
// deadline in turn.
func (m *Manual) RunAll() error {
	for i := 0; i < MaxRunAll; i++ {
		if !m.fireNext(func(time.Time) bool { return true }) {
			return nil
		}
	}
	return ErrTimerLoop
}

func (m *Manual) fireNext(due func(time.Time) bool) bool {
	m.mu.Lock()
	if len(m.pending) == 0 || !due(m.pending[0].at) {
		m.mu.Unlock()
		return false
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	if t.at.After(m.now) {
		m.now = t.at
	}
	m.mu.Unlock()

	t.f()
	return true
}
