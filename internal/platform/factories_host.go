// internal/platform/factories_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"encodertick-go/internal/halcore"
)

// ----------------------------- GPIO (host) -----------------------------------

// FakePin implements GPIOPin for host-side tests and simulators.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	pull    halcore.Pull
}

func (p *FakePin) ConfigureInput(pull halcore.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	// An idle input floats to its pull level.
	switch pull {
	case halcore.PullUp:
		p.level = true
	case halcore.PullDown:
		p.level = false
	}
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

// Set drives the line. On an input pin this stands in for the outside world.
func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	v := p.level
	p.mu.RUnlock()
	return v
}

func (p *FakePin) Toggle() {
	p.mu.Lock()
	p.level = !p.level
	p.mu.Unlock()
}

func (p *FakePin) Number() int { return p.number }

// Pull returns the pull last configured with ConfigureInput.
func (p *FakePin) Pull() halcore.Pull {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pull
}

// HostPinFactory returns stable *FakePin instances per number within
// [0, MaxPin].
type HostPinFactory struct {
	mu     sync.Mutex
	pins   map[int]*FakePin
	MaxPin int
}

func (f *HostPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	p, ok := f.Get(n)
	if !ok {
		return nil, false
	}
	return p, true
}

// Get exposes the underlying *FakePin so tests can drive input levels.
func (f *HostPinFactory) Get(n int) (*FakePin, bool) {
	if n < 0 || n > f.MaxPin {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pins == nil {
		f.pins = make(map[int]*FakePin)
	}
	p, ok := f.pins[n]
	if !ok {
		p = &FakePin{number: n}
		f.pins[n] = p
	}
	return p, true
}

// NewHostPinFactory provides pins 0..28, matching the RP2 numbering.
func NewHostPinFactory() *HostPinFactory {
	return &HostPinFactory{pins: make(map[int]*FakePin), MaxPin: 28}
}

// DefaultPinFactory provides a host GPIO factory.
func DefaultPinFactory() halcore.PinFactory { return NewHostPinFactory() }

// ----------------------------- timing (host) ---------------------------------

// DefaultTickSource ticks from a time.Ticker.
func DefaultTickSource() halcore.TickSource { return NewTickerSource() }

// DefaultCriticalSection is a mutex; the tick handler takes it too.
func DefaultCriticalSection() sync.Locker { return new(sync.Mutex) }
