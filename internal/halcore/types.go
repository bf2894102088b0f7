// internal/halcore/types.go
package halcore

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// InputPin is the read side of a GPIO line; all a decoder needs.
type InputPin interface {
	Get() bool
}

type GPIOPin interface {
	InputPin
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Toggle()
	Number() int
}

// PinFactory supplies GPIO pins by the configured number scheme.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, bool)
}

// ParsePull maps a config string to a Pull. Unknown strings select PullUp,
// which is what a mechanical encoder with common-to-ground wiring needs.
func ParsePull(s string) Pull {
	switch s {
	case "none":
		return PullNone
	case "down":
		return PullDown
	default:
		return PullUp
	}
}

func PullToString(p Pull) string {
	switch p {
	case PullNone:
		return "none"
	case PullDown:
		return "down"
	default:
		return "up"
	}
}

// ---- Periodic tick source ----

// TickSource is a periodic interrupt: configured once with its interval and
// then calling the registered handler once per tick. Handlers run in tick
// context and must not block.
type TickSource interface {
	Configure(tickMicros uint32) error
	OnTick(handler func())
}
