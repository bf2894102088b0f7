package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"code", UnknownPin, UnknownPin},
		{"wrapped", &E{C: TimerUnavailable, Op: "attach", Err: cause}, TimerUnavailable},
		{"foreign", cause, Error},
	}
	for _, c := range cases {
		if got := Of(c.err); got != c.want {
			t.Fatalf("%s: Of = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestEError(t *testing.T) {
	e := Wrap(UnknownPin, "encoder", "pin 42")
	if got, want := e.Error(), "encoder: unknown_pin: pin 42"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if (&E{C: Timeout}).Error() != "timeout" {
		t.Fatal("bare code should render as the code")
	}
	cause := errors.New("io")
	if !errors.Is(&E{C: Error, Err: cause}, cause) {
		t.Fatal("Unwrap should expose the cause")
	}
}
