// internal/platform/ticksource.go
package platform

import (
	"errors"
	"sync"
	"time"
)

// ErrZeroInterval is returned by Configure for a zero tick length.
var ErrZeroInterval = errors.New("zero tick interval")

// ---------------------------- ticker-backed ----------------------------------

// TickerSource drives a tick handler from a time.Ticker in its own goroutine.
// The goroutine is the "interrupt context": the handler never runs
// concurrently with itself. Works on hosted Go and on TinyGo targets.
type TickerSource struct {
	mu       sync.Mutex
	interval time.Duration
	handler  func()
	stop     chan struct{}
}

func NewTickerSource() *TickerSource { return &TickerSource{} }

func (s *TickerSource) Configure(tickMicros uint32) error {
	if tickMicros == 0 {
		return ErrZeroInterval
	}
	s.mu.Lock()
	s.interval = time.Duration(tickMicros) * time.Microsecond
	s.mu.Unlock()
	return nil
}

// OnTick registers the handler and starts ticking. A second call replaces
// the handler without restarting the goroutine.
func (s *TickerSource) OnTick(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	if s.stop != nil || s.interval == 0 {
		return
	}
	s.stop = make(chan struct{})
	go s.run(s.interval, s.stop)
}

func (s *TickerSource) run(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			h := s.handler
			s.mu.Unlock()
			if h != nil {
				h()
			}
		}
	}
}

// Stop halts the goroutine. Firmware never calls it; tests and host tools do.
func (s *TickerSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// ------------------------------ manual ---------------------------------------

// ManualTickSource ticks only when Advance is called, on the caller's
// goroutine. Used by simulators and tests to step time exactly.
type ManualTickSource struct {
	mu         sync.Mutex
	tickMicros uint32
	configured int
	handler    func()
}

func (s *ManualTickSource) Configure(tickMicros uint32) error {
	if tickMicros == 0 {
		return ErrZeroInterval
	}
	s.mu.Lock()
	s.tickMicros = tickMicros
	s.configured++
	s.mu.Unlock()
	return nil
}

func (s *ManualTickSource) OnTick(handler func()) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// Advance delivers n ticks.
func (s *ManualTickSource) Advance(n int) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return
	}
	for i := 0; i < n; i++ {
		h()
	}
}

// AdvanceMicros delivers as many whole ticks as fit in us.
func (s *ManualTickSource) AdvanceMicros(us uint32) {
	tm := s.TickMicros()
	if tm == 0 {
		return
	}
	s.Advance(int(us / tm))
}

// TickMicros is the configured tick length, 0 before Configure.
func (s *ManualTickSource) TickMicros() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickMicros
}

// Configured counts Configure calls.
func (s *ManualTickSource) Configured() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}
