package engine

import (
	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/spawn"
)

// Spawn runs cmd off the loop goroutine. The action that calls Spawn
// returns immediately; done, if not nil, is delivered later as its own
// event and never interleaves with a pass.
func (e *Engine) Spawn(cmd spawn.Command, done func(spawn.Result, error)) {
	ctx := e.Context()
	go func() {
		res, err := e.runner.Run(ctx, cmd)
		if done == nil {
			if err != nil {
				e.log.Error("spawned command failed", zap.String("command", cmd.Name), zap.Error(err))
			}
			return
		}
		if !e.Post("spawn", func() { done(res, err) }) {
			e.log.Warn("engine stopped, dropping command completion", zap.String("command", cmd.Name))
		}
	}()
}
