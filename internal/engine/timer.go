package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimerID is an opaque timer handle.
type TimerID uint64

// MinTickInterval is the shortest period a ticker runs with. Shorter or
// non-positive periods are clamped to it.
const MinTickInterval = time.Millisecond

// Scheduler arms wall-clock timers. The callbacks may run on any goroutine;
// the engine only uses them to enqueue fire events.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func())
	Every(d time.Duration, f func()) (stop func())
}

// SystemScheduler schedules with the time package.
type SystemScheduler struct{}

// AfterFunc calls f once after d.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Every calls f every d until stopped.
func (SystemScheduler) Every(d time.Duration, f func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				f()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

type timerEntry struct {
	id       TimerID
	name     string
	periodic bool
	callback func()
	stop     func()
}

type timerTable struct {
	next   TimerID
	byID   map[TimerID]*timerEntry
	byName map[string]TimerID
}

func newTimerTable() *timerTable {
	return &timerTable{
		byID:   make(map[TimerID]*timerEntry),
		byName: make(map[string]TimerID),
	}
}

func (t *timerTable) remove(id TimerID) {
	entry, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	if entry.name != "" && t.byName[entry.name] == id {
		delete(t.byName, entry.name)
	}
	if entry.stop != nil {
		entry.stop()
	}
}

func (t *timerTable) stopAll() {
	for id := range t.byID {
		t.remove(id)
	}
}

// StartTimer starts a named one-shot timer. A timer already running under
// the name is stopped first. Firing runs a full pass during which
// TimerFiring(name) is true.
func (e *Engine) StartTimer(name string, d time.Duration) TimerID {
	return e.startTimer(name, d, false, nil)
}

// StartTicker starts a named periodic timer, replacing any timer with the
// same name.
func (e *Engine) StartTicker(name string, d time.Duration) TimerID {
	return e.startTimer(name, d, true, nil)
}

// StopTimer stops a named timer. Stopping an unknown or already stopped
// name is a no-op.
func (e *Engine) StopTimer(name string) {
	if id, ok := e.timers.byName[name]; ok {
		e.timers.remove(id)
	}
}

// TimerActive reports whether a named timer is scheduled.
func (e *Engine) TimerActive(name string) bool {
	_, ok := e.timers.byName[name]
	return ok
}

// TimerFiring reports whether the current pass was caused by the named
// timer.
func (e *Engine) TimerFiring(name string) bool {
	return name != "" && e.currentTimer == name
}

// SetTimeout runs fn once on the loop goroutine after d.
func (e *Engine) SetTimeout(fn func(), d time.Duration) TimerID {
	return e.startTimer("", d, false, fn)
}

// SetInterval runs fn on the loop goroutine every d until cleared.
func (e *Engine) SetInterval(fn func(), d time.Duration) TimerID {
	return e.startTimer("", d, true, fn)
}

// ClearTimer stops a timer by handle. Unknown handles are ignored.
func (e *Engine) ClearTimer(id TimerID) {
	e.timers.remove(id)
}

func (e *Engine) startTimer(name string, d time.Duration, periodic bool, fn func()) TimerID {
	if name != "" {
		e.StopTimer(name)
	}

	e.timers.next++
	id := e.timers.next
	entry := &timerEntry{id: id, name: name, periodic: periodic, callback: fn}
	e.timers.byID[id] = entry
	if name != "" {
		e.timers.byName[name] = id
	}

	fire := func() {
		e.queue.Enqueue(Event{Type: EventTypeTimer, TimerID: id})
	}
	if periodic {
		if d < MinTickInterval {
			d = MinTickInterval
		}
		entry.stop = e.sched.Every(d, fire)
	} else {
		if d < 0 {
			d = 0
		}
		entry.stop = e.sched.AfterFunc(d, fire)
	}

	e.log.Debug("timer started",
		zap.Uint64("id", uint64(id)),
		zap.String("name", name),
		zap.Duration("duration", d),
		zap.Bool("periodic", periodic),
	)
	return id
}

// fireTimer handles a fire event. Events for stopped or replaced timers
// are dropped, so a timer never fires after it was stopped.
func (e *Engine) fireTimer(ctx context.Context, id TimerID) {
	entry, ok := e.timers.byID[id]
	if !ok {
		e.log.Debug("dropping stale timer event", zap.Uint64("id", uint64(id)))
		return
	}
	e.recorder.TimerFired(entry.name != "")

	if entry.name != "" {
		prev := e.currentTimer
		e.currentTimer = entry.name
		e.dispatch(ctx, nil)
		e.currentTimer = prev
	} else if err := e.runCallback("timer", entry.callback); err != nil {
		e.log.Error("timer callback failed", zap.Uint64("id", uint64(id)), zap.Error(err))
	}

	// Removal is by id: an action may have restarted the same name.
	if !entry.periodic {
		e.timers.remove(id)
	}
}
