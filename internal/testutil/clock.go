package testutil

import (
	"sync"
	"time"
)

// ManualScheduler is a deterministic timer scheduler for tests. Time only
// moves when Advance is called; due callbacks run synchronously in due
// order, ties broken by arming order.
//
// It satisfies engine.Scheduler.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
	drain  func()
}

type manualTimer struct {
	due     time.Duration
	period  time.Duration
	f       func()
	seq     int
	stopped bool
}

// NewManualScheduler creates a scheduler at time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// SetDrain registers fn to run after every fired callback, typically the
// engine's ProcessPending, so timers armed by handlers are seen by the same
// Advance call.
func (s *ManualScheduler) SetDrain(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain = fn
}

// AfterFunc arms a one-shot callback.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) func() {
	return s.arm(d, 0, f)
}

// Every arms a periodic callback.
func (s *ManualScheduler) Every(d time.Duration, f func()) func() {
	return s.arm(d, d, f)
}

func (s *ManualScheduler) arm(d, period time.Duration, f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTimer{due: s.now + d, period: period, f: f, seq: s.seq}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.stopped = true
	}
}

// Now returns the elapsed manual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of armed, unstopped callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, firing every callback that becomes due.
// Returns the number of callbacks fired.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	fired := 0
	for {
		s.mu.Lock()
		next := s.nextDue(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return fired
		}
		s.now = next.due
		if next.period > 0 {
			next.due += next.period
		} else {
			next.stopped = true
		}
		f, drain := next.f, s.drain
		s.compact()
		s.mu.Unlock()

		f()
		fired++
		if drain != nil {
			drain()
		}
	}
}

func (s *ManualScheduler) nextDue(target time.Duration) *manualTimer {
	var best *manualTimer
	for _, t := range s.timers {
		if t.stopped || t.due > target {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (s *ManualScheduler) compact() {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.timers); i++ {
		s.timers[i] = nil
	}
	s.timers = live
}
