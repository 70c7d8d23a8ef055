package engine

import (
	"context"
	"errors"

	"github.com/roach88/cellrules/internal/cell"
)

// evalResult is the outcome of one completeness-sensitive evaluation.
// Exactly one of incomplete and err is set when the evaluation did not
// produce a usable value.
type evalResult struct {
	value      cell.Value
	incomplete *cell.IncompleteError
	err        error
}

func (r evalResult) ok() bool {
	return r.incomplete == nil && r.err == nil
}

// evaluate runs fn inside a completeness-sensitive region. The region is
// released on every exit path, including panics.
func (e *Engine) evaluate(ctx context.Context, r *Rule, fn func(*Context) (cell.Value, error)) evalResult {
	release := e.cells.RequireComplete()
	defer release()

	c := e.newContext(ctx, r)
	v, err := fn(c)
	r.noteDeps(c.deps)

	if c.incomplete != nil {
		return evalResult{incomplete: c.incomplete}
	}
	if err != nil {
		var ie *cell.IncompleteError
		if errors.As(err, &ie) {
			return evalResult{incomplete: ie}
		}
		return evalResult{err: err}
	}
	r.evaluated = true
	return evalResult{value: v}
}

func (e *Engine) evaluateCondition(ctx context.Context, r *Rule) evalResult {
	return e.evaluate(ctx, r, func(c *Context) (cell.Value, error) {
		ok, err := r.cond(c)
		return ok, err
	})
}

// check decides whether r fires for this pass. change is nil for passes
// not caused by a cell change.
func (e *Engine) check(ctx context.Context, r *Rule, change *cell.Change) (Firing, bool, error) {
	switch r.kind {
	case KindLevel:
		res := e.evaluateCondition(ctx, r)
		if !res.ok() {
			return Firing{}, false, res.err
		}
		return Firing{Kind: KindLevel}, res.value == true, nil

	case KindEdge:
		res := e.evaluateCondition(ctx, r)
		if !res.ok() {
			// cache stays untouched so a later completion can still
			// produce the edge
			return Firing{}, false, res.err
		}
		current := res.value == true
		fire := current && (!r.edgeValid || !r.edgeLast)
		r.edgeValid, r.edgeLast = true, current
		return Firing{Kind: KindEdge}, fire, nil

	case KindChange, KindCellChange:
		return e.checkWatches(ctx, r, change)

	default:
		return Firing{}, false, nil
	}
}

// checkWatches walks the watch list in order; the first watch that fires
// wins and the rest are left for later passes.
func (e *Engine) checkWatches(ctx context.Context, r *Rule, change *cell.Change) (Firing, bool, error) {
	for _, w := range r.watches {
		if w.fn == nil {
			if change != nil && change.Ref == w.ref {
				return Firing{Kind: r.kind, Value: change.New, Ref: change.Ref}, true, nil
			}
			continue
		}

		res := e.evaluate(ctx, r, func(c *Context) (cell.Value, error) {
			v, err := w.fn(c)
			return cell.Normalize(v), err
		})
		if res.incomplete != nil {
			continue
		}
		if res.err != nil {
			return Firing{}, false, res.err
		}
		if !w.primed {
			w.primed, w.last = true, res.value
			continue
		}
		if res.value == w.last {
			continue
		}
		w.last = res.value
		return Firing{Kind: r.kind, Value: res.value}, true, nil
	}
	return Firing{}, false, nil
}
