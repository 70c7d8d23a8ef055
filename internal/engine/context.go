package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
	"github.com/roach88/cellrules/internal/spawn"
)

// Context is the accessor handed to conditions, value functions and
// actions. Reads are recorded as dependencies of the rule; inside a
// condition, reading an incomplete cell marks the whole evaluation as
// incomplete even if the caller ignores the returned error.
type Context struct {
	engine     *Engine
	ctx        context.Context
	rule       *Rule
	deps       map[cell.Ref]struct{}
	incomplete *cell.IncompleteError
}

func (e *Engine) newContext(ctx context.Context, r *Rule) *Context {
	return &Context{engine: e, ctx: ctx, rule: r}
}

// Ctx returns the context.Context of the current event.
func (c *Context) Ctx() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Engine returns the owning engine.
func (c *Context) Engine() *Engine {
	return c.engine
}

// RuleName returns the name of the rule being evaluated, or "".
func (c *Context) RuleName() string {
	if c.rule == nil {
		return ""
	}
	return c.rule.name
}

// Logger returns the engine logger tagged with the rule name.
func (c *Context) Logger() *zap.Logger {
	if c.rule == nil {
		return c.engine.log
	}
	return c.engine.log.With(zap.String("rule", c.rule.name))
}

// Get reads a cell or metadata field by path or alias.
func (c *Context) Get(path string) (cell.Value, error) {
	ref, err := c.engine.resolve(path)
	if err != nil {
		return nil, err
	}
	return c.GetRef(ref)
}

// GetRef reads a cell or metadata field by reference.
func (c *Context) GetRef(ref cell.Ref) (cell.Value, error) {
	if c.deps == nil {
		c.deps = make(map[cell.Ref]struct{})
	}
	c.deps[ref] = struct{}{}

	v, err := c.engine.cells.GetRef(ref)
	if err != nil {
		var ie *cell.IncompleteError
		if errors.As(err, &ie) && c.incomplete == nil {
			c.incomplete = ie
		}
		return nil, err
	}
	return v, nil
}

// Bool reads a cell as a boolean.
func (c *Context) Bool(path string) (bool, error) {
	v, err := c.Get(path)
	if err != nil {
		return false, err
	}
	return cell.AsBool(v), nil
}

// Float reads a cell as a number.
func (c *Context) Float(path string) (float64, error) {
	v, err := c.Get(path)
	if err != nil {
		return 0, err
	}
	f, ok := cell.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: value %v is not a number", path, v)
	}
	return f, nil
}

// String reads a cell formatted as text.
func (c *Context) String(path string) (string, error) {
	v, err := c.Get(path)
	if err != nil {
		return "", err
	}
	return cell.Format(v), nil
}

// Set writes a cell or metadata field by path or alias.
func (c *Context) Set(path string, v cell.Value) error {
	return c.engine.Set(path, v)
}

// TimerFiring reports whether the named timer's firing caused this pass.
func (c *Context) TimerFiring(name string) bool {
	return c.engine.TimerFiring(name)
}

// StartTimer starts a named one-shot timer.
func (c *Context) StartTimer(name string, d time.Duration) TimerID {
	return c.engine.StartTimer(name, d)
}

// StartTicker starts a named periodic timer.
func (c *Context) StartTicker(name string, d time.Duration) TimerID {
	return c.engine.StartTicker(name, d)
}

// StopTimer stops a named timer. Unknown names are ignored.
func (c *Context) StopTimer(name string) {
	c.engine.StopTimer(name)
}

// Spawn runs a command asynchronously. See Engine.Spawn.
func (c *Context) Spawn(cmd spawn.Command, done func(spawn.Result, error)) {
	c.engine.Spawn(cmd, done)
}

// Get reads a cell by path or alias outside any rule.
func (e *Engine) Get(path string) (cell.Value, error) {
	ref, err := e.resolve(path)
	if err != nil {
		return nil, err
	}
	return e.cells.GetRef(ref)
}

// Set writes a cell or metadata field by path or alias. The change, if
// effective, is dispatched as a later pass.
func (e *Engine) Set(path string, v cell.Value) error {
	ref, err := e.resolve(path)
	if err != nil {
		return err
	}
	e.cells.SetRef(ref, v)
	return nil
}
