package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/persist"
	"github.com/roach88/cellrules/internal/spawn"
)

// Recorder receives engine metrics. See internal/metrics.
type Recorder interface {
	PassCompleted(trigger string, d time.Duration)
	RuleFired(rule string)
	RuleFailed(rule string)
	TimerFired(named bool)
}

type nopRecorder struct{}

func (nopRecorder) PassCompleted(string, time.Duration) {}
func (nopRecorder) RuleFired(string)                    {}
func (nopRecorder) RuleFailed(string)                   {}
func (nopRecorder) TimerFired(bool)                     {}

// Engine is the single-writer rule engine.
//
// Thread-safety model:
//   - Receive, ReceiveMeta, RunRules, RunRule, Post: safe from any goroutine
//   - Run or ProcessPending: called from exactly one goroutine at a time
//   - Everything else (Define, Set, StartTimer, ...): from the loop
//     goroutine, from rule callbacks, or before the loop starts
type Engine struct {
	cells   *cell.Store
	rules   []*Rule // registration order
	byName  map[string]*Rule
	aliases map[string]cell.Ref
	local   map[string]DeviceDef

	timers       *timerTable
	currentTimer string

	queue     *eventQueue
	clock     *Clock
	sched     Scheduler
	names     NameGenerator
	runner    spawn.Runner
	backend   persist.Backend
	storages  map[string]*persist.Storage
	cron      *cron.Cron
	log       *zap.Logger
	recorder  Recorder
	observers []cell.ChangeFunc

	ctx context.Context
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithScheduler replaces the timer scheduler (tests use a manual one).
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.sched = s
	}
}

// WithNameGenerator sets the generator for anonymous rule names.
func WithNameGenerator(g NameGenerator) Option {
	return func(e *Engine) {
		e.names = g
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRunner sets the process runner used by Spawn.
func WithRunner(r spawn.Runner) Option {
	return func(e *Engine) {
		e.runner = r
	}
}

// New creates an engine with an empty cell store.
func New(opts ...Option) *Engine {
	e := &Engine{
		byName:   make(map[string]*Rule),
		aliases:  make(map[string]cell.Ref),
		local:    make(map[string]DeviceDef),
		storages: make(map[string]*persist.Storage),
		timers:   newTimerTable(),
		queue:    newEventQueue(),
		clock:    NewClock(),
		sched:    SystemScheduler{},
		names:    UUIDv7Generator{},
		log:      zap.NewNop(),
		recorder: nopRecorder{},
		cron:     cron.New(cron.WithParser(cronParser)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backend == nil {
		e.backend = persist.NewMemoryBackend()
	}
	if e.runner == nil {
		e.runner = spawn.NewExecRunner(e.log)
	}
	e.cells = cell.NewStore(e.onCellChange)
	return e
}

// Cells returns the engine's cell store.
func (e *Engine) Cells() *cell.Store {
	return e.cells
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	return e.log
}

// Passes returns the number of dispatch passes run so far.
func (e *Engine) Passes() int64 {
	return e.clock.Current()
}

// Observe registers fn to be called on the loop goroutine for every
// applied cell change, before the change is dispatched.
func (e *Engine) Observe(fn cell.ChangeFunc) {
	e.observers = append(e.observers, fn)
}

func (e *Engine) onCellChange(ch cell.Change) {
	for _, fn := range e.observers {
		fn(ch)
	}
	e.queue.Enqueue(Event{Type: EventTypeCellChange, Change: ch})
}

// Receive delivers a value from the host for a cell.
// Safe from any goroutine.
func (e *Engine) Receive(ref cell.Ref, v cell.Value) bool {
	return e.queue.Enqueue(Event{Type: EventTypeCellValue, Ref: ref, Value: v})
}

// ReceiveMeta delivers a metadata field value from the host.
// Safe from any goroutine.
func (e *Engine) ReceiveMeta(ref cell.Ref, field string, v any) bool {
	return e.queue.Enqueue(Event{Type: EventTypeCellValue, Ref: ref.WithMeta(field), Value: v})
}

// RunRules requests a full dispatch pass, as done once after loading.
// Safe from any goroutine.
func (e *Engine) RunRules() bool {
	return e.queue.Enqueue(Event{Type: EventTypeRunRules})
}

// Post schedules fn to run on the loop goroutine as its own event.
// Safe from any goroutine.
func (e *Engine) Post(source string, fn func()) bool {
	return e.queue.Enqueue(Event{Type: EventTypeCallback, Source: source, Callback: fn})
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called.
//
// Event processing failures are logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	e.log.Info("engine starting", zap.Int("rules", len(e.rules)))
	e.cron.Start()
	defer func() {
		<-e.cron.Stop().Done()
		e.timers.stopAll()
	}()

	for {
		if event, ok := e.queue.TryDequeue(); ok {
			e.handle(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.log.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed with the queue.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.log.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the event queue, which makes Run return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// ProcessPending handles queued events until the queue is empty, including
// events enqueued while processing. It returns the number of events
// handled. Used by tests and the scenario harness in place of Run.
func (e *Engine) ProcessPending(ctx context.Context) int {
	if e.ctx == nil {
		e.ctx = ctx
	}
	n := 0
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			return n
		}
		e.handle(ctx, event)
		n++
	}
}

func (e *Engine) handle(ctx context.Context, event Event) {
	if err := e.processEvent(ctx, event); err != nil {
		e.log.Error("event processing failed",
			zap.Stringer("type", event.Type),
			zap.String("source", event.Source),
			zap.Error(err),
		)
	}
}

// processEvent routes an event to its handler.
// Called only from the loop goroutine.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeCellValue:
		if event.Ref.IsZero() {
			return fmt.Errorf("cell value event missing cell reference")
		}
		e.cells.SetRef(event.Ref, event.Value)
		return nil

	case EventTypeCellChange:
		ch := event.Change
		e.dispatch(ctx, &ch)
		return nil

	case EventTypeTimer:
		e.fireTimer(ctx, event.TimerID)
		return nil

	case EventTypeCallback:
		if event.Callback == nil {
			return fmt.Errorf("callback event missing callback")
		}
		return e.runCallback(event.Source, event.Callback)

	case EventTypeRunRules:
		e.dispatch(ctx, nil)
		return nil

	case EventTypeRunRule:
		if event.Rule == nil {
			return fmt.Errorf("run rule event missing rule")
		}
		e.forceRun(ctx, event.Rule)
		return nil

	case EventTypeCron:
		e.fireCron(ctx, event.Rule)
		return nil

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// runCallback runs a host callback, converting a panic into an error.
func (e *Engine) runCallback(source string, fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s callback panicked: %v", source, p)
		}
	}()
	fn()
	return nil
}

// Context returns the context the engine loop runs with, for work started
// from callbacks outside any pass.
func (e *Engine) Context() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}
