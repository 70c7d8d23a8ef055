package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
)

// dispatch runs one pass over the rules. A nil change means the pass was
// not caused by a cell change (startup, timer, RunRules) and every enabled
// rule is checked.
//
// The rule list and enabled flags are captured at pass start: rules
// defined, enabled or disabled by actions take effect on the next pass.
func (e *Engine) dispatch(ctx context.Context, change *cell.Change) {
	seq := e.clock.Next()
	start := time.Now()

	trigger := "full"
	switch {
	case change != nil:
		trigger = "cell"
	case e.currentTimer != "":
		trigger = "timer"
	}

	rules := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.enabled && r.kind != KindCron {
			rules = append(rules, r)
		}
	}

	if ce := e.log.Check(zap.DebugLevel, "dispatch pass"); ce != nil {
		fields := []zap.Field{zap.Int64("pass", seq), zap.String("trigger", trigger), zap.Int("rules", len(rules))}
		if change != nil {
			fields = append(fields, zap.Stringer("cell", change.Ref))
		}
		ce.Write(fields...)
	}

	for _, r := range rules {
		if change != nil && !r.shouldCheck(change.Ref) {
			continue
		}
		e.checkRule(ctx, r, change)
	}

	e.recorder.PassCompleted(trigger, time.Since(start))
}

// checkRule evaluates and possibly fires one rule. Errors and panics stop
// at this boundary.
func (e *Engine) checkRule(ctx context.Context, r *Rule, change *cell.Change) {
	defer func() {
		if p := recover(); p != nil {
			e.ruleFailed(r, newRuleError(ErrCodeConditionFailure, r.name, fmt.Errorf("panic: %v", p)))
		}
	}()

	firing, fire, err := e.check(ctx, r, change)
	if err != nil {
		e.ruleFailed(r, newRuleError(ErrCodeConditionFailure, r.name, err))
		return
	}
	if fire {
		e.fire(ctx, r, firing)
	}
}

// fire runs a rule action outside any completeness-sensitive region.
func (e *Engine) fire(ctx context.Context, r *Rule, firing Firing) {
	defer func() {
		if p := recover(); p != nil {
			e.ruleFailed(r, newRuleError(ErrCodeActionFailure, r.name, fmt.Errorf("panic: %v", p)))
		}
	}()

	e.log.Debug("rule fired",
		zap.String("rule", r.name),
		zap.Stringer("kind", r.kind),
		zap.Bool("forced", firing.Forced),
	)
	e.recorder.RuleFired(r.name)

	if err := r.action(e.newContext(ctx, r), firing); err != nil {
		e.ruleFailed(r, newRuleError(ErrCodeActionFailure, r.name, err))
	}
}

func (e *Engine) forceRun(ctx context.Context, r *Rule) {
	if e.byName[r.name] != r {
		e.log.Debug("dropping forced run of replaced rule", zap.String("rule", r.name))
		return
	}
	e.fire(ctx, r, Firing{Kind: r.kind, Forced: true})
}

func (e *Engine) ruleFailed(r *Rule, err *Error) {
	e.recorder.RuleFailed(r.name)
	e.log.Error("rule failed",
		zap.String("rule", r.name),
		zap.Stringer("kind", r.kind),
		zap.String("code", string(err.Code)),
		zap.Error(err),
	)
}
