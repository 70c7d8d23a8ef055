package alarm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/notify"
)

// Recorder receives alarm metrics. See internal/metrics.
type Recorder interface {
	AlarmActivated(alarm string)
	AlarmNotified(alarm string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) AlarmActivated(string)      {}
func (nopRecorder) AlarmNotified(string, bool) {}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. Default is the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		ld.log = l
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(ld *Loader) {
		ld.recorder = r
	}
}

// Loader loads alarm groups into one engine. Rule names of unnamed alarms
// are numbered per loader.
type Loader struct {
	engine   *engine.Engine
	log      *zap.Logger
	recorder Recorder
	seq      int
	alarms   []*Alarm
}

// NewLoader creates a loader for e.
func NewLoader(e *engine.Engine, opts ...Option) *Loader {
	ld := &Loader{engine: e, log: e.Logger(), recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load loads a single group with a fresh loader.
func Load(e *engine.Engine, g Group, opts ...Option) ([]*Alarm, error) {
	return NewLoader(e, opts...).Load(g)
}

// Alarms returns every alarm loaded so far.
func (ld *Loader) Alarms() []*Alarm {
	out := make([]*Alarm, len(ld.alarms))
	copy(out, ld.alarms)
	return out
}

// Load validates g, declares its device (a "log" text cell and one
// indicator cell per alarm) and registers two edge rules per alarm.
// Nothing is registered when validation fails.
func (ld *Loader) Load(g Group) ([]*Alarm, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	device := engine.DeviceDef{
		Name:  g.DeviceName,
		Title: g.DeviceTitle,
		Controls: []engine.ControlDef{
			{Name: LogCell, Type: cell.TypeText, Default: "", Readonly: true},
		},
	}

	out := make([]*Alarm, 0, len(g.Alarms))
	for _, spec := range g.Alarms {
		ld.seq++
		a := &Alarm{
			spec:       spec,
			engine:     ld.engine,
			group:      &g,
			log:        ld.log,
			recorder:   ld.recorder,
			watched:    cell.MustParsePath(spec.Cell),
			rulePrefix: fmt.Sprintf("__alarm%d__%s__", ld.seq, spec.Cell),
		}
		a.indicator = cell.NewRef(g.DeviceName, a.indicatorName())
		device.Controls = append(device.Controls, engine.ControlDef{
			Name:     a.indicator.Cell,
			Type:     cell.TypeAlarm,
			Default:  false,
			Readonly: true,
		})
		out = append(out, a)
	}

	if err := ld.engine.DefineDevice(device); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := a.defineRules(); err != nil {
			return nil, err
		}
	}

	ld.alarms = append(ld.alarms, out...)
	ld.log.Info("alarms loaded", zap.String("device", g.DeviceName), zap.Int("alarms", len(out)))
	return out, nil
}

// Alarm is a loaded alarm. All state is touched only from the engine
// loop.
type Alarm struct {
	spec     Spec
	engine   *engine.Engine
	group    *Group
	log      *zap.Logger
	recorder Recorder

	watched    cell.Ref
	indicator  cell.Ref
	rulePrefix string

	triggered bool
	active    bool
	remaining int // -1 is unlimited

	repeatTimer     engine.TimerID
	activateTimer   engine.TimerID
	deactivateTimer engine.TimerID
}

func (a *Alarm) indicatorName() string {
	if a.spec.Name != "" {
		return "alarm_" + a.spec.Name
	}
	return strings.ReplaceAll(a.rulePrefix, "/", "_") + "cell"
}

// Name returns the alarm name, or the watched cell path when unnamed.
func (a *Alarm) Name() string {
	if a.spec.Name != "" {
		return a.spec.Name
	}
	return a.spec.Cell
}

// Indicator returns the alarm's indicator cell.
func (a *Alarm) Indicator() cell.Ref {
	return a.indicator
}

// Active reports whether the alarm has been activated and not yet
// deactivated.
func (a *Alarm) Active() bool {
	return a.active
}

// ActivateRule and DeactivateRule return the names of the alarm's rules.
func (a *Alarm) ActivateRule() string   { return a.rulePrefix + "activate" }
func (a *Alarm) DeactivateRule() string { return a.rulePrefix + "deactivate" }

func (a *Alarm) defineRules() error {
	if _, err := a.engine.Define(a.ActivateRule(), engine.Spec{
		AsSoonAs: a.violated,
		Then:     a.onViolation,
	}); err != nil {
		return err
	}
	_, err := a.engine.Define(a.DeactivateRule(), engine.Spec{
		AsSoonAs: a.satisfied,
		Then:     a.onSatisfied,
	})
	return err
}

func (a *Alarm) violated(c *engine.Context) (bool, error) {
	ok, err := a.withinPolicy(c)
	return !ok, err
}

func (a *Alarm) satisfied(c *engine.Context) (bool, error) {
	return a.withinPolicy(c)
}

func (a *Alarm) withinPolicy(c *engine.Context) (bool, error) {
	v, err := c.GetRef(a.watched)
	if err != nil {
		return false, err
	}
	if a.spec.hasExpected() {
		return cell.Equal(v, a.spec.ExpectedValue), nil
	}
	f, ok := cell.AsFloat(v)
	if !ok {
		return false, fmt.Errorf("%s: value %v is not a number", a.spec.Cell, v)
	}
	min, max := a.spec.bounds()
	return f >= min && f <= max, nil
}

func (a *Alarm) onViolation(*engine.Context, engine.Firing) error {
	if a.triggered {
		return nil
	}
	a.triggered = true

	if !a.active {
		if a.spec.AlarmDelay > 0 {
			a.activateTimer = a.engine.SetTimeout(a.activate, a.spec.AlarmDelay)
		} else {
			a.activate()
		}
	}
	a.clearTimer(&a.deactivateTimer)
	return nil
}

func (a *Alarm) onSatisfied(*engine.Context, engine.Firing) error {
	// The first run only clears an indicator left over from before the
	// engine started.
	if !a.triggered {
		a.setIndicator(false)
		return nil
	}
	a.triggered = false

	if a.active {
		if a.spec.NoAlarmDelay > 0 {
			a.deactivateTimer = a.engine.SetTimeout(a.deactivate, a.spec.NoAlarmDelay)
		} else {
			a.deactivate()
		}
	}
	a.clearTimer(&a.activateTimer)
	return nil
}

func (a *Alarm) activate() {
	a.activateTimer = 0
	a.setIndicator(true)
	a.log.Info("alarm activated", zap.String("alarm", a.Name()), zap.Stringer("cell", a.watched))
	a.recorder.AlarmActivated(a.Name())

	a.remaining = -1
	if a.spec.MaxCount != nil {
		a.remaining = *a.spec.MaxCount
	}
	a.notifyActive()
	if a.spec.Interval > 0 && a.remaining != 0 {
		a.repeatTimer = a.engine.SetInterval(a.notifyActive, a.spec.Interval)
	}
	a.active = true
}

func (a *Alarm) notifyActive() {
	if a.remaining != 0 {
		a.send(notify.MaybeFormat(a.spec.alarmMessage(), a.value()))
	}
	if a.remaining > 0 {
		a.remaining--
		if a.remaining == 0 {
			a.clearTimer(&a.repeatTimer)
		}
	}
}

func (a *Alarm) deactivate() {
	a.deactivateTimer = 0
	a.setIndicator(false)
	a.clearTimer(&a.repeatTimer)
	a.log.Info("alarm deactivated", zap.String("alarm", a.Name()), zap.Stringer("cell", a.watched))
	a.send(notify.MaybeFormat(a.spec.noAlarmMessage(), a.value()))
	a.active = false
}

func (a *Alarm) value() cell.Value {
	v, _ := a.engine.Cells().GetRef(a.watched)
	return v
}

func (a *Alarm) setIndicator(active bool) {
	a.engine.Cells().SetRef(a.indicator, active)
}

func (a *Alarm) clearTimer(id *engine.TimerID) {
	if *id != 0 {
		a.engine.ClearTimer(*id)
		*id = 0
	}
}

// send writes the group log cell, then hands text to every recipient.
func (a *Alarm) send(text string) {
	a.engine.Cells().Set(a.group.DeviceName, LogCell, text)

	ctx := a.engine.Context()
	for _, r := range a.group.Recipients {
		err := r.Notify(ctx, text)
		a.recorder.AlarmNotified(a.Name(), err == nil)
		if err != nil {
			a.log.Error("alarm notification failed",
				zap.String("alarm", a.Name()),
				zap.String("recipient", fmt.Sprint(r)),
				zap.Error(err),
			)
		}
	}
}
