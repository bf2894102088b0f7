// services/encoder/service.go
package encoder

import (
	"context"
	"sync/atomic"

	"encodertick-go/bus"
	"encodertick-go/errcode"
	"encodertick-go/internal/halcore"
	"encodertick-go/intervaltimer"
	"encodertick-go/quadrature"
	"encodertick-go/types"
	"encodertick-go/x/timex"

	"tinygo.org/x/drivers"
)

const (
	TokEncoder = "encoder"
	TokService = "service"
	TokControl = "control"
	TokValue   = "value"
	TokEvent   = "event"
	TokCheck   = "check"
	TokInfo    = "info"
	TokState   = "state"
)

var (
	topicConfig = bus.T("config", TokEncoder)
	topicCtrl   = bus.T(TokEncoder, "+", TokControl, "+")
	topicState  = bus.T(TokEncoder, TokService, TokState)
)

// Topic returns encoder/<id>/<suffix>.
func Topic(id, suffix string) bus.Topic { return bus.T(TokEncoder, id, suffix) }

// channel is one configured encoder.
type channel struct {
	p          types.EncoderParams
	pinA, pinB halcore.GPIOPin
	dec        *quadrature.Decoder
	pos        quadrature.Counter
	check      *quadrature.ConnectionCheck
	dirty      bool // position changed since the last value publish
}

type Service struct {
	conn *bus.Connection
	pins halcore.PinFactory

	sampleT *intervaltimer.Timer
	checkT  *intervaltimer.Timer

	// Written from tick context; MUST NOT block:
	sampleQ chan struct{}
	checkQ  chan struct{}
	drops   uint32

	samples atomic.Uint32

	cfg      types.EncoderServiceConfig
	encoders map[string]*channel
	order    []*channel
}

// New claims two timers from mux (the process-wide pool when nil): one
// paces sampling, the other paces connection-check reports.
func New(pins halcore.PinFactory, mux *intervaltimer.Mux) *Service {
	if mux == nil {
		mux = intervaltimer.Default()
	}
	return &Service{
		pins:     pins,
		sampleT:  mux.New(),
		checkT:   mux.New(),
		sampleQ:  make(chan struct{}, 1),
		checkQ:   make(chan struct{}, 1),
		encoders: map[string]*channel{},
	}
}

// Start the encoder service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if conn == nil {
		return errcode.Wrap(errcode.InvalidParams, "encoder.Start", "nil connection")
	}
	s.conn = conn
	cfgSub := conn.Subscribe(topicConfig)
	ctrlSub := conn.Subscribe(topicCtrl)
	go s.run(ctx, cfgSub, ctrlSub)
	return nil
}

// Samples counts completed sampling passes.
func (s *Service) Samples() uint32 { return s.samples.Load() }

// Drops counts sample ticks lost because the previous pass was still pending.
func (s *Service) Drops() uint32 { return atomic.LoadUint32(&s.drops) }

func (s *Service) run(ctx context.Context, cfgSub, ctrlSub *bus.Subscription) {
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	if !s.sampleT.HasSlot() {
		s.publishState("degraded", string(errcode.TimerUnavailable), nil)
	} else {
		s.publishState("idle", "awaiting_config", nil)
	}

	for {
		select {
		case <-ctx.Done():
			s.sampleT.Close()
			s.checkT.Close()
			s.publishState("stopped", "context_cancelled", nil)
			println("Info: encoder service stopping")
			return

		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(types.EncoderServiceConfig)
			if !ok {
				s.publishState("error", string(errcode.InvalidPayload), nil)
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.publishState("degraded", string(errcode.Of(err)), err)
				continue
			}
			if len(s.order) > 0 && !s.sampleT.HasSlot() {
				s.publishState("degraded", string(errcode.TimerUnavailable), nil)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.sampleQ:
			s.sampleAll()

		case <-s.checkQ:
			s.publishChecks()
		}
	}
}

// ---- tick context ----

func (s *Service) onSampleTick() {
	select {
	case s.sampleQ <- struct{}{}:
	default:
		atomic.AddUint32(&s.drops, 1)
	}
}

func (s *Service) onCheckTick() {
	select {
	case s.checkQ <- struct{}{}:
	default:
	}
}

// ---- sampling ----

func (s *Service) sampleAll() {
	for _, ch := range s.order {
		_ = ch.dec.Update(drivers.AllMeasurements)
	}
	now := timex.NowMs()
	for _, ch := range s.order {
		if ch.dirty {
			ch.dirty = false
			s.publishValue(ch, now)
		}
	}
	s.samples.Add(1)
}

func (s *Service) step(ch *channel, dir int) {
	pos := ch.pos.Add(dir)
	ch.dirty = true
	s.conn.Publish(s.conn.NewMessage(Topic(ch.p.ID, TokEvent),
		types.EncoderStep{Direction: dir, Position: pos, TS: timex.NowMs()}, false))
}

func (s *Service) publishValue(ch *channel, now int64) {
	s.conn.Publish(s.conn.NewMessage(Topic(ch.p.ID, TokValue),
		types.EncoderValue{Position: ch.pos.Value(), TS: now}, true))
}

func (s *Service) publishChecks() {
	now := timex.NowMs()
	for _, ch := range s.order {
		if ch.check == nil {
			continue
		}
		v := types.ConnectionCheckValue{Counts: *ch.check, OK: true, TS: now}
		for _, n := range v.Counts {
			if n == 0 {
				v.OK = false
			}
		}
		s.conn.Publish(s.conn.NewMessage(Topic(ch.p.ID, TokCheck), v, true))
		ch.dec.ResetConnectionCheck()
	}
}

// ---- control ----

func (s *Service) handleControl(msg *bus.Message) {
	if msg.Topic.Len() != 4 {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	id, _ := msg.Topic.At(1).(string)
	verb, _ := msg.Topic.At(3).(string)
	ch, ok := s.encoders[id]
	if !ok {
		s.replyErr(msg, errcode.UnknownEncoder)
		return
	}

	switch verb {
	case types.CtrlRead:
		s.conn.Reply(msg, types.ControlReply{OK: true,
			Value: types.EncoderValue{Position: ch.pos.Value(), TS: timex.NowMs()}}, false)
	case types.CtrlReset:
		old := ch.pos.Reset()
		ch.dirty = false
		s.publishValue(ch, timex.NowMs())
		s.conn.Reply(msg, types.ControlReply{OK: true, Value: old}, false)
	case types.CtrlCheckReset:
		if ch.check == nil {
			s.replyErr(msg, errcode.Unsupported)
			return
		}
		ch.dec.ResetConnectionCheck()
		s.conn.Reply(msg, types.ControlReply{OK: true}, false)
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// ---- publishing helpers ----

func (s *Service) publishState(level, status string, err error) {
	pl := types.ServiceState{
		Level:  level,
		Status: status,
		Drops:  s.Drops(),
		TS:     timex.NowMs(),
	}
	if err != nil {
		pl.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, pl, true))
}

func (s *Service) replyErr(req *bus.Message, code errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, types.ControlReply{OK: false, Error: string(code)}, false)
}
