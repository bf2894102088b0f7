// services/encoder/config.go
package encoder

import (
	"strconv"

	"encodertick-go/errcode"
	"encodertick-go/internal/halcore"
	"encodertick-go/intervaltimer"
	"encodertick-go/quadrature"
	"encodertick-go/types"
	"encodertick-go/x/mathx"
	"encodertick-go/x/timex"
)

// DefaultSampleMicros polls at 1 kHz, fast enough for a hand-turned knob.
const DefaultSampleMicros = 1000

func withDefaults(cfg types.EncoderServiceConfig) types.EncoderServiceConfig {
	if cfg.SampleMicros == 0 {
		cfg.SampleMicros = DefaultSampleMicros
	}
	cfg.SampleMicros = mathx.Max(cfg.SampleMicros, intervaltimer.TickMicros)
	encs := make([]types.EncoderParams, len(cfg.Encoders))
	for i, p := range cfg.Encoders {
		p.Pull = halcore.PullToString(halcore.ParsePull(p.Pull))
		encs[i] = p
	}
	cfg.Encoders = encs
	return cfg
}

func validate(p types.EncoderParams) error {
	const op = "encoder.config"
	switch {
	case p.ID == "" || p.ID == TokService || p.ID == "+" || p.ID == "#":
		return errcode.Wrap(errcode.InvalidParams, op, "bad id "+strconv.Quote(p.ID))
	case p.PinA == p.PinB:
		return errcode.Wrap(errcode.InvalidParams, op, p.ID+": pin_a equals pin_b")
	}
	return nil
}

// applyConfig replaces the encoder set. Encoders whose wiring is unchanged
// keep their decoder and position. Bad entries are skipped; the first
// error is returned once the rest are in place.
func (s *Service) applyConfig(cfg types.EncoderServiceConfig) error {
	cfg = withDefaults(cfg)

	var firstErr error
	fail := func(err error) {
		println("Error:", err.Error())
		if firstErr == nil {
			firstErr = err
		}
	}

	next := make(map[string]*channel, len(cfg.Encoders))
	order := make([]*channel, 0, len(cfg.Encoders))
	claimed := map[int]string{}

	for _, p := range cfg.Encoders {
		if err := validate(p); err != nil {
			fail(err)
			continue
		}
		if _, dup := next[p.ID]; dup {
			fail(errcode.Wrap(errcode.DuplicateEncoder, "encoder.config", p.ID))
			continue
		}
		if owner, busy := claimed[p.PinA]; busy {
			fail(errcode.Wrap(errcode.PinInUse, "encoder.config", p.ID+": GP"+strconv.Itoa(p.PinA)+" held by "+owner))
			continue
		}
		if owner, busy := claimed[p.PinB]; busy {
			fail(errcode.Wrap(errcode.PinInUse, "encoder.config", p.ID+": GP"+strconv.Itoa(p.PinB)+" held by "+owner))
			continue
		}

		ch := s.encoders[p.ID]
		if ch == nil || !sameWiring(ch.p, p) {
			var err error
			if ch, err = s.build(p); err != nil {
				fail(err)
				continue
			}
		}
		ch.p = p
		s.setCheck(ch, p.Check)

		claimed[p.PinA], claimed[p.PinB] = p.ID, p.ID
		next[p.ID] = ch
		order = append(order, ch)
	}

	// Clear retained topics of encoders that went away.
	for id := range s.encoders {
		if _, keep := next[id]; !keep {
			for _, suffix := range []string{TokValue, TokCheck, TokInfo} {
				s.conn.Publish(s.conn.NewMessage(Topic(id, suffix), nil, true))
			}
		}
	}

	s.cfg = cfg
	s.encoders = next
	s.order = order

	now := timex.NowMs()
	for _, ch := range order {
		s.publishInfo(ch)
		s.publishValue(ch, now)
	}
	s.armTimers()

	println("Info: encoder service configured", len(order), "encoder(s), sample every", cfg.SampleMicros, "us")
	return firstErr
}

func sameWiring(a, b types.EncoderParams) bool {
	return a.PinA == b.PinA && a.PinB == b.PinB && a.Pull == b.Pull
}

func (s *Service) build(p types.EncoderParams) (*channel, error) {
	const op = "encoder.build"
	pinA, ok := s.pins.ByNumber(p.PinA)
	if !ok {
		return nil, errcode.Wrap(errcode.UnknownPin, op, p.ID+": pin_a "+strconv.Itoa(p.PinA))
	}
	pinB, ok := s.pins.ByNumber(p.PinB)
	if !ok {
		return nil, errcode.Wrap(errcode.UnknownPin, op, p.ID+": pin_b "+strconv.Itoa(p.PinB))
	}
	pull := halcore.ParsePull(p.Pull)
	if err := pinA.ConfigureInput(pull); err != nil {
		return nil, &errcode.E{C: errcode.Error, Op: op, Msg: p.ID + ": pin_a", Err: err}
	}
	if err := pinB.ConfigureInput(pull); err != nil {
		return nil, &errcode.E{C: errcode.Error, Op: op, Msg: p.ID + ": pin_b", Err: err}
	}

	ch := &channel{p: p, pinA: pinA, pinB: pinB}
	ch.dec = quadrature.New(pinA, pinB, func(dir int) { s.step(ch, dir) })
	return ch, nil
}

func (s *Service) setCheck(ch *channel, on bool) {
	switch {
	case on && ch.check == nil:
		ch.check = new(quadrature.ConnectionCheck)
		ch.dec.BeginConnectionCheck(ch.check)
	case !on && ch.check != nil:
		ch.check = nil
		ch.dec.BeginConnectionCheck(nil)
	}
}

func (s *Service) armTimers() {
	if len(s.order) == 0 {
		s.sampleT.Detach()
	} else {
		s.sampleT.AttachMicros(s.cfg.SampleMicros, s.onSampleTick)
	}

	checking := false
	for _, ch := range s.order {
		checking = checking || ch.check != nil
	}
	if checking && s.cfg.CheckMillis > 0 {
		s.checkT.AttachMillis(s.cfg.CheckMillis, s.onCheckTick)
	} else {
		s.checkT.Detach()
	}
}

func (s *Service) publishInfo(ch *channel) {
	s.conn.Publish(s.conn.NewMessage(Topic(ch.p.ID, TokInfo), types.Info{
		SchemaVersion: 1,
		Kind:          types.KindEncoder,
		Driver:        "quadrature",
		Detail: types.EncoderInfo{
			PinA: ch.p.PinA,
			PinB: ch.p.PinB,
			Pull: ch.p.Pull,
		},
	}, true))
}
