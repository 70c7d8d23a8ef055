package engine

import "sync/atomic"

// Clock numbers dispatch passes.
//
// Every pass is stamped with a strictly increasing sequence number, which
// shows up in debug logs and lets tests assert how many passes ran.
// Safe for concurrent reads; only the event loop calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next pass number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued pass number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
