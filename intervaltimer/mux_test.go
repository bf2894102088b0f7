package intervaltimer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"encodertick-go/internal/platform"
)

func newTestMux(capacity int) (*Mux, *platform.ManualTickSource) {
	src := &platform.ManualTickSource{}
	return NewMux(src, new(sync.Mutex), capacity), src
}

// counter is a callback that counts its invocations.
type counter struct{ n int }

func (c *counter) fn() { c.n++ }

func TestTickSourceConfiguredOnceLazily(t *testing.T) {
	m, src := newTestMux(2)
	if src.Configured() != 0 {
		t.Fatal("tick source configured before first handle")
	}
	m.New()
	m.New()
	m.New() // exhausted, still must not reconfigure
	if src.Configured() != 1 {
		t.Fatalf("Configure called %d times, want 1", src.Configured())
	}
	if src.TickMicros() != TickMicros {
		t.Fatalf("tick = %dus, want %dus", src.TickMicros(), TickMicros)
	}
}

type failingSource struct{ platform.ManualTickSource }

func (f *failingSource) Configure(uint32) error { return errors.New("no timer") }

func TestTickSourceErrorStillRegistersHandler(t *testing.T) {
	src := &failingSource{}
	m := NewMux(src, new(sync.Mutex), 1)
	var c counter
	m.New().AttachMicros(100, c.fn)
	src.Advance(1)
	if c.n != 1 {
		t.Fatalf("fired %d times, want 1", c.n)
	}
}

func TestOneShotFiresOnceThenStops(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	var c counter
	tm.OnceMicros(500, c.fn) // 5 ticks

	src.Advance(4)
	if c.n != 0 {
		t.Fatalf("fired early after 4 ticks")
	}
	if tm.Mode() != OneShot || !tm.Active() {
		t.Fatalf("mode = %s before firing", tm.Mode())
	}
	src.Advance(1)
	if c.n != 1 {
		t.Fatalf("fired %d times after 5 ticks, want 1", c.n)
	}
	if tm.Mode() != Stopped || tm.Active() {
		t.Fatalf("mode = %s after firing, want stopped", tm.Mode())
	}
	src.Advance(100)
	if c.n != 1 {
		t.Fatalf("one-shot fired again: %d", c.n)
	}
}

func TestRepeatingFiresEveryPeriod(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	var c counter
	tm.AttachMillis(1, c.fn) // 10 ticks

	for want := 1; want <= 5; want++ {
		src.Advance(9)
		if c.n != want-1 {
			t.Fatalf("period %d: fired early (%d)", want, c.n)
		}
		src.Advance(1)
		if c.n != want {
			t.Fatalf("period %d: fired %d times", want, c.n)
		}
	}
	tm.Detach()
	src.Advance(50)
	if c.n != 5 {
		t.Fatalf("fired after detach: %d", c.n)
	}
}

func TestDetachBeforeFirstFire(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	var c counter
	tm.OnceMillis(1, c.fn)
	src.Advance(5)
	tm.Detach()
	src.Advance(1000)
	if c.n != 0 {
		t.Fatalf("detached timer fired %d times", c.n)
	}
	// The slot stays with the handle.
	tm.OnceMicros(100, c.fn)
	src.Advance(1)
	if c.n != 1 {
		t.Fatalf("re-attach after detach fired %d times", c.n)
	}
}

func TestReattachReloadsAndSwitchesMode(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	var a, b counter
	tm.AttachMicros(1000, a.fn) // 10 ticks
	src.Advance(8)
	tm.OnceMicros(300, b.fn) // 3 ticks, countdown reloaded
	src.Advance(2)
	if a.n != 0 || b.n != 0 {
		t.Fatalf("a=%d b=%d after re-attach, want none", a.n, b.n)
	}
	src.Advance(1)
	if a.n != 0 || b.n != 1 {
		t.Fatalf("a=%d b=%d, want b once", a.n, b.n)
	}
	src.Advance(30)
	if b.n != 1 || tm.Mode() != Stopped {
		t.Fatalf("b=%d mode=%s", b.n, tm.Mode())
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	m, src := newTestMux(3)
	var fast, slow, once counter
	m.New().AttachMicros(200, fast.fn)
	m.New().AttachMicros(500, slow.fn)
	m.New().OnceMicros(700, once.fn)
	src.Advance(10)
	if fast.n != 5 || slow.n != 2 || once.n != 1 {
		t.Fatalf("fast=%d slow=%d once=%d, want 5/2/1", fast.n, slow.n, once.n)
	}
}

func TestPoolExhaustion(t *testing.T) {
	m, src := newTestMux(2)
	t1, t2 := m.New(), m.New()
	extra := m.New()
	if m.Allocated() != 2 || m.Capacity() != 2 {
		t.Fatalf("allocated=%d capacity=%d", m.Allocated(), m.Capacity())
	}
	if !t1.HasSlot() || !t2.HasSlot() || extra.HasSlot() {
		t.Fatal("HasSlot does not reflect allocation")
	}

	var c counter
	extra.AttachMicros(100, c.fn)
	extra.OnceMicros(100, c.fn)
	extra.AttachMillis(1, c.fn)
	extra.OnceMillis(1, c.fn)
	src.Advance(1000)
	extra.Detach()
	extra.Close()
	if c.n != 0 {
		t.Fatalf("slotless handle fired %d times", c.n)
	}
	if extra.Active() || extra.Mode() != Stopped {
		t.Fatal("slotless handle reports activity")
	}

	// Live handles are unaffected.
	var a counter
	t1.AttachMicros(100, a.fn)
	t2.Detach()
	src.Advance(3)
	if a.n != 3 {
		t.Fatalf("live handle fired %d times, want 3", a.n)
	}
}

func TestCloseDoesNotFreeCapacity(t *testing.T) {
	m, src := newTestMux(1)
	first := m.New()
	var a counter
	first.AttachMicros(100, a.fn)
	first.Close()
	src.Advance(5)
	if a.n != 0 {
		t.Fatalf("closed timer fired %d times", a.n)
	}

	second := m.New()
	var b counter
	second.AttachMicros(100, b.fn)
	src.Advance(5)
	if b.n != 0 {
		t.Fatal("closing a handle returned its slot to the pool")
	}
	if m.Allocated() != 1 {
		t.Fatalf("allocated = %d, want 1", m.Allocated())
	}
}

func TestZeroHandleIsInert(t *testing.T) {
	var tm Timer
	tm.AttachMicros(100, func() { t.Fatal("zero handle fired") })
	tm.Detach()
	var nilTimer *Timer
	nilTimer.Close()
	if nilTimer.Active() {
		t.Fatal("nil handle active")
	}
}

func TestNilCallbackNeverCounts(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	tm.AttachMicros(100, nil)
	src.Advance(10)
	if tm.Mode() != Repeating {
		t.Fatalf("mode = %s, want repeating", tm.Mode())
	}
}

func TestCallbackMayRearmItself(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	n := 0
	var rearm func()
	rearm = func() {
		n++
		if n < 3 {
			tm.OnceMicros(200, rearm)
		}
	}
	tm.OnceMicros(200, rearm)
	src.Advance(20)
	if n != 3 {
		t.Fatalf("self re-arming one-shot fired %d times, want 3", n)
	}
	if tm.Active() {
		t.Fatal("timer still active after final shot")
	}
}

func TestCallbackMayDetachAnotherTimer(t *testing.T) {
	m, src := newTestMux(2)
	victim := m.New()
	var v counter
	victim.AttachMicros(100, v.fn)
	killer := m.New()
	killer.OnceMicros(300, victim.Detach)
	src.Advance(10)
	// victim fires on ticks 1..3, killer fires at tick 3 after victim's slot.
	if v.n != 3 {
		t.Fatalf("victim fired %d times, want 3", v.n)
	}
}

func TestSubTickPeriodFiresNextTick(t *testing.T) {
	m, src := newTestMux(1)
	tm := m.New()
	var c counter
	tm.AttachMicros(50, c.fn) // truncates to 0 ticks
	src.Advance(3)
	if c.n != 3 {
		t.Fatalf("sub-tick repeating timer fired %d times in 3 ticks", c.n)
	}
}

func TestTruncatingConversion(t *testing.T) {
	cases := []struct {
		us, want uint32
	}{
		{0, 0}, {99, 0}, {100, 1}, {199, 1}, {250, 2}, {1_000_000, 10_000},
	}
	for _, c := range cases {
		if got := TicksFromMicros(c.us); got != c.want {
			t.Fatalf("TicksFromMicros(%d) = %d, want %d", c.us, got, c.want)
		}
	}
	if TicksFromMillis(5) != 50 {
		t.Fatalf("TicksFromMillis(5) = %d", TicksFromMillis(5))
	}
	if TicksFromMillis(^uint32(0)) != ^uint32(0) {
		t.Fatal("TicksFromMillis should saturate")
	}
}

func TestCapacityClamped(t *testing.T) {
	m, _ := newTestMux(100)
	if m.Capacity() != MaxInstances {
		t.Fatalf("capacity = %d, want %d", m.Capacity(), MaxInstances)
	}
	m, _ = newTestMux(0)
	if m.Capacity() != 1 {
		t.Fatalf("capacity = %d, want 1", m.Capacity())
	}
}

func TestDefaultMux(t *testing.T) {
	src := &platform.ManualTickSource{}
	SetDefault(NewMux(src, new(sync.Mutex), MaxInstances))
	tm := New()
	var c counter
	tm.OnceMicros(100, c.fn)
	src.Advance(1)
	if c.n != 1 {
		t.Fatalf("default mux timer fired %d times", c.n)
	}
	if Default().Allocated() != 1 {
		t.Fatalf("default allocated = %d", Default().Allocated())
	}
}

func TestModeString(t *testing.T) {
	if Stopped.String() != "stopped" || Repeating.String() != "repeating" || OneShot.String() != "oneshot" {
		t.Fatal("Mode.String mapping incorrect")
	}
}

// hookLock is a mutex that runs hook once, right after the next Unlock.
type hookLock struct {
	mu   sync.Mutex
	hook func()
}

func (l *hookLock) Lock() { l.mu.Lock() }

func (l *hookLock) Unlock() {
	h := l.hook
	l.hook = nil
	l.mu.Unlock()
	if h != nil {
		h()
	}
}

func TestNoCallAfterDetachReturns(t *testing.T) {
	src := &platform.ManualTickSource{}
	lock := &hookLock{}
	m := NewMux(src, lock, 1)
	tm := m.New()

	detached, late, calls := false, 0, 0
	tm.AttachMicros(100, func() {
		calls++
		if detached {
			late++
		}
	})
	// Detach at the first point the tick handler lets go of the lock.
	lock.hook = func() {
		tm.Detach()
		detached = true
	}
	src.Advance(5)
	if late != 0 {
		t.Fatalf("callback ran %d times after Detach returned", late)
	}
	if calls != 1 || tm.Active() {
		t.Fatalf("calls=%d active=%v, want 1 call then stopped", calls, tm.Active())
	}
}

func TestDetachWhileAnotherCallbackRuns(t *testing.T) {
	m, src := newTestMux(2)
	first, second := m.New(), m.New()

	started, release, done := make(chan struct{}), make(chan struct{}), make(chan struct{})
	first.OnceMicros(100, func() {
		close(started)
		<-release
	})
	var c counter
	second.AttachMicros(100, c.fn)

	go func() {
		src.Advance(3)
		close(done)
	}()
	<-started
	second.Detach() // must not wait for the running callback
	if second.Active() {
		t.Fatal("Active after Detach returned")
	}
	close(release)
	<-done
	if c.n != 0 {
		t.Fatalf("detached timer fired %d times", c.n)
	}
}

func TestDefaultBindingHoldsOffTicker(t *testing.T) {
	src := platform.NewTickerSource()
	defer src.Stop()
	cs := platform.DefaultCriticalSection()
	m := NewMux(src, cs, 1)

	var n atomic.Int32
	m.New().AttachMicros(TickMicros, func() { n.Add(1) })
	deadline := time.Now().Add(time.Second)
	for n.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("ticker never fired")
		}
		time.Sleep(time.Millisecond)
	}

	cs.Lock()
	held := n.Load()
	time.Sleep(10 * time.Millisecond)
	if got := n.Load(); got != held {
		cs.Unlock()
		t.Fatalf("callback ran %d times while the critical section was held", got-held)
	}
	cs.Unlock()
}
