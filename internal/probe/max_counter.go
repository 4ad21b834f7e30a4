// Package probe holds instrumentation for asserting concurrency limits in tests.
package probe

import "sync/atomic"

// MaxCounter tracks how many units of work are running and the highest value
// ever observed. Enter and Exit bracket one unit of work.
type MaxCounter struct {
	current atomic.Int64
	max     atomic.Int64
}

// Enter records the start of a unit of work and returns the new running count.
func (c *MaxCounter) Enter() int64 {
	n := c.current.Add(1)
	for {
		seen := c.max.Load()
		if n <= seen || c.max.CompareAndSwap(seen, n) {
			return n
		}
	}
}

// Exit records the end of a unit of work.
func (c *MaxCounter) Exit() {
	if c.current.Add(-1) < 0 {
		panic("probe: Exit without matching Enter")
	}
}

// Track runs fn between Enter and Exit.
func (c *MaxCounter) Track(fn func()) {
	c.Enter()
	defer c.Exit()
	fn()
}

func (c *MaxCounter) Current() int64 {
	return c.current.Load()
}

// Max returns the highest running count observed so far.
func (c *MaxCounter) Max() int64 {
	return c.max.Load()
}
