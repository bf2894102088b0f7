// Package quadrature decodes a two-phase rotary encoder into signed steps.
package quadrature

import (
	"encodertick-go/internal/halcore"

	"tinygo.org/x/drivers"
)

// ConnectionCheckLen is the number of distinct 2-bit pin states.
const ConnectionCheckLen = 4

// ConnectionCheck counts how often each raw (A<<1)|B state was sampled.
// A healthy, wired encoder turned through a few detents shows all four
// states; a stuck or disconnected line leaves some counters at zero.
type ConnectionCheck [ConnectionCheckLen]uint16

// transitions is indexed by (previous<<2)|current. Walking the Gray
// sequence 0,1,3,2 yields +1, the reverse yields -1. No change and
// double-bit flips (0<->3, 1<->2) yield 0.
var transitions = [16]int8{
	0, +1, -1, 0, // 0 -> 0,1,2,3
	-1, 0, 0, +1, // 1 -> 0,1,2,3
	+1, 0, 0, -1, // 2 -> 0,1,2,3
	0, -1, +1, 0, // 3 -> 0,1,2,3
}

// Direction returns the step for a transition between two 2-bit states.
// Bits above the low two are ignored.
func Direction(previous, current uint8) int {
	return int(transitions[(previous&3)<<2|current&3])
}

// Decoder tracks the last sampled state of an A/B pin pair.
// Sample must only be called from one goroutine (never from tick context).
type Decoder struct {
	pinA, pinB  halcore.InputPin
	previous    uint8
	onDirection func(direction int)
	check       *ConnectionCheck
}

var _ drivers.Sensor = (*Decoder)(nil)

// New creates a decoder over two already configured input pins. The current
// pin state is taken as the starting point, so no step is reported for it.
// onDirection may be nil.
func New(pinA, pinB halcore.InputPin, onDirection func(direction int)) *Decoder {
	d := &Decoder{
		pinA:        pinA,
		pinB:        pinB,
		onDirection: onDirection,
	}
	d.previous = d.read()
	return d
}

func (d *Decoder) read() uint8 {
	var s uint8
	if d.pinA.Get() {
		s |= 2
	}
	if d.pinB.Get() {
		s |= 1
	}
	return s
}

// Sample reads both pins once, reports a step through the callback when
// the transition is a valid one, and feeds the connection check.
func (d *Decoder) Sample() {
	current := d.read()
	dir := Direction(d.previous, current)
	d.previous = current

	if dir != 0 && d.onDirection != nil {
		d.onDirection(dir)
	}
	if d.check != nil {
		d.check[current]++
	}
}

// Update implements drivers.Sensor so a decoder can be polled together
// with other TinyGo sensors. which is ignored: every call, for any
// Measurement value, is exactly one Sample. It never fails.
func (d *Decoder) Update(which drivers.Measurement) error {
	d.Sample()
	return nil
}

// State returns the last sampled (A<<1)|B value.
func (d *Decoder) State() uint8 { return d.previous }

// BeginConnectionCheck installs buf as the connection-check counter array
// and clears it. The caller keeps ownership and reads it directly.
func (d *Decoder) BeginConnectionCheck(buf *ConnectionCheck) {
	d.check = buf
	d.ResetConnectionCheck()
}

// ResetConnectionCheck zeroes the installed counters, if any.
func (d *Decoder) ResetConnectionCheck() {
	if d.check == nil {
		return
	}
	*d.check = ConnectionCheck{}
}
