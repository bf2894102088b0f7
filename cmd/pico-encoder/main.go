//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"time"

	"encodertick-go/bus"
	"encodertick-go/internal/platform"
	"encodertick-go/intervaltimer"
	"encodertick-go/services/encoder"
	"encodertick-go/types"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

const (
	ledPin    = 25
	logBaud   = 115200
	uartTX    = 0
	uartRX    = 1
	blinkMs   = 500
	knobPinA  = 2
	knobPinB  = 3
	checkEach = 2000
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot")

	ctx := context.Background()

	uart := uartx.UART0
	if err := uart.Configure(uartx.UARTConfig{
		BaudRate: logBaud,
		TX:       machine.Pin(uartTX),
		RX:       machine.Pin(uartRX),
	}); err != nil {
		println("Error: uart0:", err.Error())
	}

	pins := platform.DefaultPinFactory()

	// Status LED blinks from its own slot in the shared timer pool.
	if led, ok := pins.ByNumber(ledPin); ok {
		_ = led.ConfigureOutput(false)
		intervaltimer.New().AttachMillis(blinkMs, led.Toggle)
	}

	b := bus.NewBus(8)
	svcConn := b.NewConnection("encoder")
	uiConn := b.NewConnection("ui")

	mon := uiConn.Subscribe(bus.T(encoder.TokEncoder, "#"))
	go func() {
		buf := make([]byte, 0, 96)
		for m := range mon.Channel() {
			buf = encoder.AppendLine(buf[:0], m.Topic, m.Payload)
			_, _ = uart.Write(buf)
		}
	}()

	svc := encoder.New(pins, nil)
	if err := svc.Start(ctx, svcConn); err != nil {
		println("Error: encoder service:", err.Error())
		return
	}

	cfg := types.EncoderServiceConfig{
		CheckMillis: checkEach,
		Encoders: []types.EncoderParams{
			{ID: "knob", PinA: knobPinA, PinB: knobPinB, Pull: "up", Check: true},
		},
	}
	println("[main] publishing config/encoder")
	uiConn.Publish(uiConn.NewMessage(bus.T("config", encoder.TokEncoder), cfg, true))

	read := bus.T(encoder.TokEncoder, "knob", encoder.TokControl, types.CtrlRead)
	for {
		time.Sleep(5 * time.Second)
		reply, err := uiConn.RequestWait(ctx, uiConn.NewMessage(read, nil, false))
		if err != nil {
			println("[main] read error:", err.Error())
			continue
		}
		if r, ok := reply.Payload.(types.ControlReply); ok && r.OK {
			if v, ok := r.Value.(types.EncoderValue); ok {
				println("[main] knob position", v.Position, "drops", svc.Drops())
			}
		}
	}
}
