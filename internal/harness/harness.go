package harness

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/alarm"
	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/compiler"
	"github.com/roach88/cellrules/internal/engine"
	"github.com/roach88/cellrules/internal/notify"
	"github.com/roach88/cellrules/internal/testutil"
)

// Harness holds one scenario run. Everything happens on the calling
// goroutine: the engine is drained after every step and every timer.
type Harness struct {
	engine *engine.Engine
	sched  *testutil.ManualScheduler
	result *Result

	// unchecked holds notifications not yet matched by an
	// expect_notifications step.
	unchecked []string
}

// Option configures Run.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the engine logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// Run executes a scenario and returns its result. An error means the
// scenario could not be set up; failed expectations are reported in the
// result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	defs, err := compile(scenario)
	if err != nil {
		return nil, err
	}

	sched := testutil.NewManualScheduler()
	h := &Harness{
		engine: engine.New(
			engine.WithLogger(o.log),
			engine.WithScheduler(sched),
			engine.WithNameGenerator(testutil.NewSequentialNames("")),
		),
		sched:  sched,
		result: NewResult(),
	}
	sched.SetDrain(h.drain)

	if err := h.load(defs); err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}
	h.engine.RunRules()
	h.drain()

	// Changes made while loading are not part of the trace.
	h.engine.Observe(h.traceChange)

	for i, step := range scenario.Steps {
		if err := h.runStep(i+1, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return h.result, nil
}

func compile(scenario *Scenario) (*compiler.Result, error) {
	var (
		res  *compiler.Result
		errs []error
	)
	if scenario.DefinitionsDir != "" {
		res, errs = compiler.LoadDir(scenario.DefinitionsDir, compiler.LoadModeFailFast)
	} else {
		res, errs = compiler.CompileSource(scenario.Name+".cue", scenario.Definitions, compiler.LoadModeFailFast)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to compile definitions: %w", errs[0])
	}
	return res, nil
}

func (h *Harness) load(defs *compiler.Result) error {
	for _, d := range defs.Devices {
		if err := h.engine.DefineDevice(d.Def); err != nil {
			return err
		}
	}

	loader := alarm.NewLoader(h.engine)
	for _, g := range defs.Alarms {
		recipients := make([]notify.Notifier, 0, len(g.Recipients))
		for _, spec := range g.Recipients {
			recipients = append(recipients, &tracingNotifier{name: spec.String(), h: h})
		}
		if _, err := loader.Load(g.Group(recipients)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) drain() {
	h.engine.ProcessPending(context.Background())
}

func (h *Harness) runStep(n int, step Step) error {
	switch {
	case step.Set != "":
		h.trace("step %d: set %s = %s", n, step.Set, formatValue(step.Value))
		if err := h.engine.Set(step.Set, step.Value); err != nil {
			return err
		}
		h.drain()

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.trace("step %d: advance %s", n, step.Advance)
		h.sched.Advance(d)

	case step.RunRules:
		h.trace("step %d: run rules", n)
		h.engine.RunRules()
		h.drain()

	case step.Expect != nil:
		paths := make([]string, 0, len(step.Expect))
		for p := range step.Expect {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		h.trace("step %d: expect %s", n, strings.Join(paths, ", "))
		h.checkCells(n, paths, step.Expect)

	case step.ExpectNotifications != nil:
		want := *step.ExpectNotifications
		h.trace("step %d: expect %d notifications", n, len(want))
		h.checkNotifications(n, want)
	}
	return nil
}

func (h *Harness) trace(format string, args ...any) {
	h.result.Trace = append(h.result.Trace, fmt.Sprintf(format, args...))
}

func (h *Harness) traceChange(ch cell.Change) {
	if ch.Ref.IsMeta() {
		return
	}
	h.trace("  %s: %s -> %s", ch.Ref, formatValue(ch.Old), formatValue(ch.New))
}

// formatValue renders a value for the trace: strings quoted, missing
// values as <unset>.
func formatValue(v any) string {
	switch x := cell.Normalize(v).(type) {
	case nil:
		return "<unset>"
	case string:
		return strconv.Quote(x)
	default:
		return cell.Format(x)
	}
}

// tracingNotifier stands in for a real recipient.
type tracingNotifier struct {
	name string
	h    *Harness
}

func (n *tracingNotifier) Notify(_ context.Context, text string) error {
	n.h.trace("  notify %s at %s: %s", n.name, n.h.sched.Now(), text)
	n.h.unchecked = append(n.h.unchecked, n.name+": "+text)
	return nil
}

func (n *tracingNotifier) String() string { return n.name }
