package quadrature

import "sync/atomic"

// Counter accumulates decoder steps into an absolute position.
// Add is called from the sampling goroutine; Value may be read anywhere.
type Counter struct {
	pos atomic.Int64
}

// Add applies a step and returns the new position.
func (c *Counter) Add(direction int) int64 { return c.pos.Add(int64(direction)) }

func (c *Counter) Value() int64 { return c.pos.Load() }

// Reset sets the position back to zero and returns the old value.
func (c *Counter) Reset() int64 { return c.pos.Swap(0) }
