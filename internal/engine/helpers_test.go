package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/cellrules/internal/testutil"
)

type testEngine struct {
	*Engine
	sched *testutil.ManualScheduler
	logs  *observer.ObservedLogs
	ctx   context.Context
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	sched := testutil.NewManualScheduler()
	base := []Option{
		WithLogger(zap.New(core)),
		WithScheduler(sched),
		WithNameGenerator(testutil.NewSequentialNames("")),
	}
	e := New(append(base, opts...)...)
	te := &testEngine{Engine: e, sched: sched, logs: logs, ctx: context.Background()}
	sched.SetDrain(func() { e.ProcessPending(te.ctx) })
	return te
}

// set writes a cell and processes the resulting passes.
func (te *testEngine) set(t *testing.T, path string, v any) {
	t.Helper()
	if err := te.Set(path, v); err != nil {
		t.Fatalf("set %s: %v", path, err)
	}
	te.ProcessPending(te.ctx)
}

// runRules runs a full pass and processes its effects.
func (te *testEngine) runRules() {
	te.RunRules()
	te.ProcessPending(te.ctx)
}

func (te *testEngine) failures() []observer.LoggedEntry {
	return te.logs.FilterMessage("rule failed").All()
}
