// Package intervaltimer multiplexes a small, fixed pool of countdown timers
// onto one periodic hardware tick.
//
// The tick source is configured once, on the first New, and runs for the
// life of the process. Each handle owns one slot from the pool. Slots are
// never returned: closing a handle stops its timer but does not make room
// for another handle. Handles created once the pool is full have no slot
// and every operation on them is a no-op.
//
// Callbacks run on the tick handler and must not block.
package intervaltimer

import (
	"math"
	"sync"
	"sync/atomic"

	"encodertick-go/internal/halcore"
	"encodertick-go/x/mathx"
)

const (
	// TickMicros is the length of one hardware tick.
	TickMicros = 100

	// MaxInstances is the size of the slot pool.
	MaxInstances = 4
)

type Mode uint8

const (
	Stopped Mode = iota
	Repeating
	OneShot
)

func (m Mode) String() string {
	switch m {
	case Repeating:
		return "repeating"
	case OneShot:
		return "oneshot"
	default:
		return "stopped"
	}
}

type slot struct {
	callback  func()
	period    uint32        // ticks
	remaining uint32        // ticks
	mode      atomic.Uint32 // Mode; read by handles without cs
}

// change is one arm or stop, applied to a slot under cs.
type change struct {
	idx   int
	ticks uint32
	mode  Mode
	cb    func()
}

// Mux owns a slot pool and the tick source that drives it.
type Mux struct {
	src halcore.TickSource
	cs  sync.Locker // held by the tick handler for a whole pass

	once  sync.Once
	slots [MaxInstances]slot
	size  int

	// firing is set while the tick handler runs a callback. Changes made
	// meanwhile are queued in pending and applied when the callback returns.
	firing  atomic.Bool
	mu      sync.Mutex // guards pending, next and warned
	pending []change
	next    int // first never-allocated slot
	warned  bool
}

// NewMux creates a pool of capacity slots (clamped to 1..MaxInstances)
// driven by src. cs must not be held by anything else that blocks on the
// tick handler.
func NewMux(src halcore.TickSource, cs sync.Locker, capacity int) *Mux {
	return &Mux{
		src:  src,
		cs:   cs,
		size: mathx.Clamp(capacity, 1, MaxInstances),
	}
}

// New claims the next free slot and returns a handle for it. The first
// call configures the tick source.
func (m *Mux) New() *Timer {
	m.once.Do(m.setup)

	m.mu.Lock()
	idx := -1
	if m.next < m.size {
		idx = m.next
		m.next++
	}
	warn := idx < 0 && !m.warned
	if warn {
		m.warned = true
	}
	m.mu.Unlock()

	if warn {
		println("Warn: intervaltimer: pool of", m.size, "slots exhausted; timer is inert")
	}
	return &Timer{mux: m, index: idx}
}

func (m *Mux) setup() {
	if err := m.src.Configure(TickMicros); err != nil {
		println("Error: intervaltimer: tick source:", err.Error())
	}
	m.src.OnTick(m.tick)
}

// Allocated reports how many slots have been handed out.
func (m *Mux) Allocated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// Capacity is the pool size.
func (m *Mux) Capacity() int { return m.size }

// tick is the tick handler. Each live slot counts down by one; a slot that
// reaches zero is reloaded (or stopped, for one-shots) and then its callback
// runs. The whole pass holds cs, so a handle change made from another
// goroutine lands either before the pass or after it, never between a fire
// decision and the call. A slot fires at most once per tick however late
// the tick is.
func (m *Mux) tick() {
	m.cs.Lock()
	defer m.cs.Unlock()

	m.applyPending()
	for i := 0; i < m.size; i++ {
		s := &m.slots[i]
		if Mode(s.mode.Load()) == Stopped || s.callback == nil {
			continue
		}
		s.remaining--
		if s.remaining != 0 {
			continue
		}
		fire := s.callback
		if Mode(s.mode.Load()) == OneShot {
			s.mode.Store(uint32(Stopped))
		}
		s.remaining = s.period

		m.firing.Store(true)
		fire()
		m.firing.Store(false)
		m.applyPending()
	}
}

// submit applies c at once, or queues it when called while a callback
// runs. Queued changes take effect as soon as that callback returns, before
// any later slot is examined.
func (m *Mux) submit(c change) {
	if m.firing.Load() {
		m.mu.Lock()
		m.pending = append(m.pending, c)
		m.mu.Unlock()
		return
	}
	m.cs.Lock()
	m.applyPending()
	m.apply(c)
	m.cs.Unlock()
}

// applyPending runs queued changes in order. cs must be held.
func (m *Mux) applyPending() {
	m.mu.Lock()
	q := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, c := range q {
		m.apply(c)
	}
}

func (m *Mux) apply(c change) {
	s := &m.slots[c.idx]
	s.callback = c.cb
	if c.mode != Stopped {
		s.period = c.ticks
		s.remaining = c.ticks
	}
	s.mode.Store(uint32(c.mode))
}

func (m *Mux) arm(idx int, ticks uint32, mode Mode, cb func()) {
	m.submit(change{idx: idx, ticks: mathx.Max(ticks, 1), mode: mode, cb: cb})
}

func (m *Mux) stop(idx int) {
	m.submit(change{idx: idx, mode: Stopped})
}

// mode reports the slot's mode, counting changes still queued.
func (m *Mux) mode(idx int) Mode {
	m.mu.Lock()
	for i := len(m.pending) - 1; i >= 0; i-- {
		if m.pending[i].idx == idx {
			md := m.pending[i].mode
			m.mu.Unlock()
			return md
		}
	}
	m.mu.Unlock()
	return Mode(m.slots[idx].mode.Load())
}

// TicksFromMicros converts a period to ticks, truncating any remainder.
func TicksFromMicros(us uint32) uint32 { return us / TickMicros }

// TicksFromMillis converts a period to ticks, saturating on overflow.
func TicksFromMillis(ms uint32) uint32 {
	return mathx.SatMul(ms, 1000/TickMicros, math.MaxUint32)
}
