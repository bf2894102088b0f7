//go:build !rp2040 && !rp2350

// encoder-console drives the encoder service against simulated pins and a
// hand-stepped tick source. Commands are read from stdin, one per line.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"encodertick-go/bus"
	"encodertick-go/internal/platform"
	"encodertick-go/intervaltimer"
	"encodertick-go/services/encoder"
	"encodertick-go/types"
	"encodertick-go/x/timex"

	"github.com/google/shlex"
)

const (
	encID       = "knob"
	pinA, pinB  = 2, 3
	sampleUs    = 1000
	checkMs     = 50
	waitTimeout = time.Second
)

// cw is the clockwise successor of each 2-bit state.
var cw = [4]uint8{1, 3, 0, 2}

// ccw is the counter-clockwise successor of each 2-bit state.
var ccw = [4]uint8{2, 0, 3, 1}

const usage = `commands:
  cw [n]          turn clockwise n steps (default 1)
  ccw [n]         turn counter-clockwise n steps
  glitch          flip both lines at once
  tick [n]        deliver n raw 100us ticks
  once <dur>      one-shot user timer, e.g. once 2.5ms
  every <dur>     repeating user timer
  detach          stop the user timer
  read | reset | check_reset
  quiet | verbose toggle bus monitor output
  help | quit`

type sim struct {
	pins  *platform.HostPinFactory
	src   *platform.ManualTickSource
	svc   *encoder.Service
	conn  *bus.Connection
	user  *intervaltimer.Timer
	state uint8

	mu    sync.Mutex
	quiet bool
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &sim{
		pins: platform.NewHostPinFactory(),
		src:  &platform.ManualTickSource{},
	}
	mux := intervaltimer.NewMux(s.src, new(sync.Mutex), intervaltimer.MaxInstances)
	s.svc = encoder.New(s.pins, mux)
	s.user = mux.New()

	b := bus.NewBus(32)
	s.conn = b.NewConnection("console")
	go s.monitor(s.conn.Subscribe(bus.T(encoder.TokEncoder, "#")))

	state := s.conn.Subscribe(bus.T(encoder.TokEncoder, encoder.TokService, encoder.TokState))
	if err := s.svc.Start(ctx, b.NewConnection("encoder")); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}
	s.conn.Publish(s.conn.NewMessage(bus.T("config", encoder.TokEncoder), types.EncoderServiceConfig{
		SampleMicros: sampleUs,
		CheckMillis:  checkMs,
		Encoders:     []types.EncoderParams{{ID: encID, PinA: pinA, PinB: pinB, Check: true}},
	}, true))
	s.state = 3 // pulled-up idle
	if err := awaitConfigured(state); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	s.conn.Unsubscribe(state)

	fmt.Println(usage)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		args, err := shlex.Split(in.Text())
		if err != nil {
			fmt.Println("parse:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := s.exec(ctx, args); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (s *sim) exec(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		fmt.Println(usage)
	case "cw", "ccw":
		n, err := count(args)
		if err != nil {
			return err
		}
		next := cw
		if args[0] == "ccw" {
			next = ccw
		}
		for i := 0; i < n; i++ {
			s.state = next[s.state]
			if err := s.drive(); err != nil {
				return err
			}
		}
	case "glitch":
		s.state ^= 3
		return s.drive()
	case "tick":
		n, err := count(args)
		if err != nil {
			return err
		}
		s.src.Advance(n)
	case "once", "every":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a duration", args[0])
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return err
		}
		us := timex.Micros(d)
		fire := func() { fmt.Println("user timer fired") }
		if args[0] == "once" {
			s.user.OnceMicros(us, fire)
		} else {
			s.user.AttachMicros(us, fire)
		}
		fmt.Printf("user timer %s, %d ticks\n", s.user.Mode(), intervaltimer.TicksFromMicros(us))
	case "detach":
		s.user.Detach()
	case types.CtrlRead, types.CtrlReset, types.CtrlCheckReset:
		return s.control(ctx, args[0])
	case "quiet", "verbose":
		s.mu.Lock()
		s.quiet = args[0] == "quiet"
		s.mu.Unlock()
	default:
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	return nil
}

func awaitConfigured(sub *bus.Subscription) error {
	timeout := time.After(waitTimeout)
	for {
		select {
		case m := <-sub.Channel():
			st, _ := m.Payload.(types.ServiceState)
			switch st.Level {
			case "ready":
				return nil
			case "degraded", "error":
				return fmt.Errorf("encoder service %s: %s %s", st.Level, st.Status, st.Error)
			}
		case <-timeout:
			return fmt.Errorf("encoder service did not configure")
		}
	}
}

func count(args []string) (int, error) {
	if len(args) < 2 {
		return 1, nil
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad count %q", args[1])
	}
	return n, nil
}

// drive sets the pins to the current state and runs one sample period.
func (s *sim) drive() error {
	a, _ := s.pins.Get(pinA)
	b, _ := s.pins.Get(pinB)
	a.Set(s.state&2 != 0)
	b.Set(s.state&1 != 0)

	before := s.svc.Samples()
	s.src.AdvanceMicros(sampleUs)
	deadline := time.Now().Add(waitTimeout)
	for s.svc.Samples() == before {
		if time.Now().After(deadline) {
			return fmt.Errorf("sample pass did not run")
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (s *sim) control(ctx context.Context, verb string) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	msg := s.conn.NewMessage(bus.T(encoder.TokEncoder, encID, encoder.TokControl, verb), nil, false)
	reply, err := s.conn.RequestWait(ctx, msg)
	if err != nil {
		return err
	}
	r, ok := reply.Payload.(types.ControlReply)
	if !ok {
		return fmt.Errorf("unexpected reply %T", reply.Payload)
	}
	if !r.OK {
		return fmt.Errorf("%s: %s", verb, r.Error)
	}
	fmt.Printf("%s: %+v\n", verb, r.Value)
	return nil
}

func (s *sim) monitor(sub *bus.Subscription) {
	for m := range sub.Channel() {
		s.mu.Lock()
		quiet := s.quiet
		s.mu.Unlock()
		if quiet {
			continue
		}
		fmt.Printf("%v %+v\n", m.Topic, m.Payload)
	}
}
