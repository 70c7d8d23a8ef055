package engine

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
)

// Kind is a rule trigger kind.
type Kind int

const (
	// KindLevel fires on every pass where the condition holds.
	KindLevel Kind = iota + 1
	// KindEdge fires when the condition goes from false (or unknown) to true.
	KindEdge
	// KindChange fires when a watched cell or value function changes.
	KindChange
	// KindCellChange fires when a single watched cell changes.
	KindCellChange
	// KindCron fires on a calendar schedule.
	KindCron
)

func (k Kind) String() string {
	switch k {
	case KindLevel:
		return "when"
	case KindEdge:
		return "asSoonAs"
	case KindChange:
		return "whenChanged"
	case KindCellChange:
		return "onCellChange"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// Condition is a rule predicate. Reads through the Context are tracked as
// rule dependencies.
type Condition func(c *Context) (bool, error)

// ValueFunc computes a watched value for WhenChanged rules.
type ValueFunc func(c *Context) (cell.Value, error)

// Action is run when a rule fires.
type Action func(c *Context, f Firing) error

// Firing describes why an action runs. Level and edge rules get a Firing
// with only Kind set. Change rules get the new value and, for literal cell
// watches, the cell identity.
type Firing struct {
	Kind   Kind
	Value  cell.Value
	Ref    cell.Ref
	Forced bool
}

// Device returns the device name of the changed cell, if any.
func (f Firing) Device() string { return f.Ref.Device }

// Cell returns the name of the changed cell, if any.
func (f Firing) Cell() string { return f.Ref.Cell }

// Watch is an entry of a WhenChanged list: a cell path, an alias, or a
// value function.
type Watch struct {
	Path string
	Func ValueFunc
}

// WatchCell watches a "device/cell" path, "device/cell#meta" path, or alias.
func WatchCell(path string) Watch {
	return Watch{Path: path}
}

// WatchValue watches the result of fn.
func WatchValue(fn ValueFunc) Watch {
	return Watch{Func: fn}
}

// Spec defines a rule. Exactly one of When, AsSoonAs, WhenChanged,
// OnCellChange or Cron must be set, plus Then.
type Spec struct {
	When         Condition
	AsSoonAs     Condition
	WhenChanged  []Watch
	OnCellChange string
	Cron         string
	Then         Action
}

type watch struct {
	ref    cell.Ref
	fn     ValueFunc
	primed bool
	last   cell.Value
}

// Rule is a registered rule.
type Rule struct {
	name    string
	kind    Kind
	cond    Condition
	watches []*watch
	action  Action
	enabled bool

	// edge trigger cache
	edgeValid bool
	edgeLast  bool

	// dependency tracking for filtered passes
	evaluated bool
	deps      map[cell.Ref]struct{}

	cronSpec string
	cronID   cron.EntryID
}

// Name returns the rule name.
func (r *Rule) Name() string { return r.name }

// Kind returns the trigger kind.
func (r *Rule) Kind() Kind { return r.kind }

// Enabled reports whether the rule takes part in passes.
func (r *Rule) Enabled() bool { return r.enabled }

// EdgeState returns the cached edge result and whether one exists.
func (r *Rule) EdgeState() (last bool, ok bool) {
	return r.edgeLast, r.edgeValid
}

func (r *Rule) noteDeps(deps map[cell.Ref]struct{}) {
	if len(deps) == 0 {
		return
	}
	if r.deps == nil {
		r.deps = make(map[cell.Ref]struct{}, len(deps))
	}
	for ref := range deps {
		r.deps[ref] = struct{}{}
	}
}

func (r *Rule) hasValueWatches() bool {
	for _, w := range r.watches {
		if w.fn != nil {
			return true
		}
	}
	return false
}

// shouldCheck reports whether a pass caused by a change of ref needs to
// look at this rule.
func (r *Rule) shouldCheck(ref cell.Ref) bool {
	switch r.kind {
	case KindCron:
		return false
	case KindChange, KindCellChange:
		for _, w := range r.watches {
			if w.fn == nil && w.ref == ref {
				return true
			}
		}
		if !r.hasValueWatches() {
			return false
		}
	}
	if !r.evaluated || len(r.deps) == 0 {
		return true
	}
	_, ok := r.deps[ref]
	return ok
}

// Define registers a rule. An empty name gets a synthetic one. Defining an
// existing name replaces that rule in place, keeping its position.
func (e *Engine) Define(name string, spec Spec) (*Rule, error) {
	if name == "" {
		name = "anon-" + e.names.Generate()
	}
	r, err := e.buildRule(name, spec)
	if err != nil {
		return nil, err
	}

	if r.kind == KindCron {
		if err := e.scheduleCron(r); err != nil {
			return nil, err
		}
	}

	if old, ok := e.byName[name]; ok {
		e.unscheduleCron(old)
		for i, existing := range e.rules {
			if existing == old {
				e.rules[i] = r
				break
			}
		}
	} else {
		e.rules = append(e.rules, r)
	}
	e.byName[name] = r

	e.log.Debug("rule defined", zap.String("rule", name), zap.Stringer("kind", r.kind))
	return r, nil
}

func (e *Engine) buildRule(name string, spec Spec) (*Rule, error) {
	triggers := 0
	r := &Rule{name: name, action: spec.Then, enabled: true}
	if spec.When != nil {
		triggers++
		r.kind, r.cond = KindLevel, spec.When
	}
	if spec.AsSoonAs != nil {
		triggers++
		r.kind, r.cond = KindEdge, spec.AsSoonAs
	}
	if spec.WhenChanged != nil {
		triggers++
		r.kind = KindChange
	}
	if spec.OnCellChange != "" {
		triggers++
		r.kind = KindCellChange
	}
	if spec.Cron != "" {
		triggers++
		r.kind, r.cronSpec = KindCron, spec.Cron
	}

	subject := "rule " + name
	switch {
	case triggers == 0:
		return nil, NewInvalidDefinition(subject, "no trigger specified")
	case triggers > 1:
		return nil, NewInvalidDefinition(subject, "more than one trigger specified")
	case spec.Then == nil:
		return nil, NewInvalidDefinition(subject, "no action specified")
	}

	switch r.kind {
	case KindChange:
		if len(spec.WhenChanged) == 0 {
			return nil, NewInvalidDefinition(subject, "empty whenChanged list")
		}
		for i, w := range spec.WhenChanged {
			if w.Func != nil {
				r.watches = append(r.watches, &watch{fn: w.Func})
				continue
			}
			ref, err := e.resolve(w.Path)
			if err != nil {
				return nil, NewInvalidDefinition(subject, "whenChanged[%d]: %v", i, err)
			}
			r.watches = append(r.watches, &watch{ref: ref})
		}
	case KindCellChange:
		ref, err := e.resolve(spec.OnCellChange)
		if err != nil {
			return nil, NewInvalidDefinition(subject, "onCellChange: %v", err)
		}
		r.watches = []*watch{{ref: ref}}
	case KindCron:
		if _, err := cronParser.Parse(spec.Cron); err != nil {
			return nil, NewInvalidDefinition(subject, "invalid cron spec %q: %v", spec.Cron, err)
		}
	}
	return r, nil
}

// Rule looks up a rule by name.
func (e *Engine) Rule(name string) (*Rule, bool) {
	r, ok := e.byName[name]
	return r, ok
}

// Rules returns all rules in registration order.
func (e *Engine) Rules() []*Rule {
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *Engine) lookupRule(name string) (*Rule, error) {
	r, ok := e.byName[name]
	if !ok {
		return nil, &Error{Code: ErrCodeUnknownRule, Rule: name, Message: "rule not defined"}
	}
	return r, nil
}

// Enable makes a rule take part in passes starting with the next pass.
func (e *Engine) Enable(name string) error {
	r, err := e.lookupRule(name)
	if err != nil {
		return err
	}
	r.enabled = true
	return nil
}

// Disable excludes a rule from passes starting with the next pass.
// The condition is not evaluated and no cache is updated while disabled.
func (e *Engine) Disable(name string) error {
	r, err := e.lookupRule(name)
	if err != nil {
		return err
	}
	r.enabled = false
	return nil
}

// RunRule force-fires a rule regardless of its condition. The action runs
// as a separate event after the current pass.
func (e *Engine) RunRule(name string) error {
	r, err := e.lookupRule(name)
	if err != nil {
		return err
	}
	e.queue.Enqueue(Event{Type: EventTypeRunRule, Rule: r})
	return nil
}
