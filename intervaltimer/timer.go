package intervaltimer

import (
	"sync"

	"encodertick-go/internal/platform"
)

// Timer is a handle on one slot of a Mux. The zero value and handles from an
// exhausted pool have no slot; all their methods do nothing.
type Timer struct {
	mux   *Mux
	index int
}

func (t *Timer) usable() bool { return t != nil && t.mux != nil && t.index >= 0 }

// AttachMicros runs cb every us microseconds until detached. The period is
// truncated to whole ticks; one shorter than a tick, including 0, fires on
// every tick.
func (t *Timer) AttachMicros(us uint32, cb func()) {
	if t.usable() {
		t.mux.arm(t.index, TicksFromMicros(us), Repeating, cb)
	}
}

// AttachMillis runs cb every ms milliseconds until detached. A period of 0
// fires on every tick.
func (t *Timer) AttachMillis(ms uint32, cb func()) {
	if t.usable() {
		t.mux.arm(t.index, TicksFromMillis(ms), Repeating, cb)
	}
}

// OnceMicros runs cb once, us microseconds from now, truncated to whole
// ticks. A delay shorter than a tick, including 0, fires on the next tick.
func (t *Timer) OnceMicros(us uint32, cb func()) {
	if t.usable() {
		t.mux.arm(t.index, TicksFromMicros(us), OneShot, cb)
	}
}

// OnceMillis runs cb once, ms milliseconds from now. A delay of 0 fires on
// the next tick.
func (t *Timer) OnceMillis(ms uint32, cb func()) {
	if t.usable() {
		t.mux.arm(t.index, TicksFromMillis(ms), OneShot, cb)
	}
}

// Detach stops the timer and drops its callback. The slot stays with this
// handle and can be attached again. Once Detach returns no new call of the
// callback starts. While a timer callback is running, Detach and the attach
// methods take effect when it returns.
func (t *Timer) Detach() {
	if t.usable() {
		t.mux.stop(t.index)
	}
}

// Close stops the timer for good. The slot is not returned to the pool.
func (t *Timer) Close() {
	t.Detach()
}

// HasSlot reports whether the handle was given a slot from the pool.
func (t *Timer) HasSlot() bool { return t.usable() }

// Active reports whether the timer holds a slot and is counting down.
func (t *Timer) Active() bool {
	return t.usable() && t.mux.mode(t.index) != Stopped
}

// Mode returns the slot's mode, Stopped for handles without a slot.
func (t *Timer) Mode() Mode {
	if !t.usable() {
		return Stopped
	}
	return t.mux.mode(t.index)
}

// ---- process-wide pool ----

var (
	defaultOnce sync.Once
	defaultMux  *Mux
)

// Default returns the process-wide Mux, bound to the platform tick source
// on first use.
func Default() *Mux {
	defaultOnce.Do(func() {
		if defaultMux == nil {
			defaultMux = NewMux(platform.DefaultTickSource(), platform.DefaultCriticalSection(), MaxInstances)
		}
	})
	return defaultMux
}

// SetDefault replaces the process-wide Mux. Call it before the first New.
func SetDefault(m *Mux) { defaultMux = m }

// New claims a slot from the process-wide pool.
func New() *Timer { return Default().New() }
