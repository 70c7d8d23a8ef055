package engine

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronParser accepts five or six field specs (seconds optional) and
// descriptors such as "@every 1m" or "@daily".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (e *Engine) scheduleCron(r *Rule) error {
	schedule, err := cronParser.Parse(r.cronSpec)
	if err != nil {
		return NewInvalidDefinition("rule "+r.name, "invalid cron spec %q: %v", r.cronSpec, err)
	}
	r.cronID = e.cron.Schedule(schedule, cron.FuncJob(func() {
		e.queue.Enqueue(Event{Type: EventTypeCron, Rule: r, Source: "cron"})
	}))
	return nil
}

func (e *Engine) unscheduleCron(r *Rule) {
	if r.kind == KindCron && r.cronID != 0 {
		e.cron.Remove(r.cronID)
		r.cronID = 0
	}
}

// fireCron runs a cron rule's action if the rule is still current and
// enabled.
func (e *Engine) fireCron(ctx context.Context, r *Rule) {
	if r == nil || e.byName[r.name] != r {
		e.log.Debug("dropping cron event for replaced rule")
		return
	}
	if !r.enabled {
		return
	}
	e.log.Debug("cron rule due", zap.String("rule", r.name), zap.String("spec", r.cronSpec))
	e.fire(ctx, r, Firing{Kind: KindCron})
}
