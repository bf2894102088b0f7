// services/encoder/render.go
package encoder

import (
	"encodertick-go/bus"
	"encodertick-go/types"
	"encodertick-go/x/conv"
)

// AppendLine renders a bus message from this service as one CRLF-terminated
// text line, e.g. "encoder/knob/event dir=1 pos=5". Used by firmware that
// logs to a UART without fmt.
func AppendLine(dst []byte, t bus.Topic, payload any) []byte {
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			dst = append(dst, '/')
		}
		switch v := t.At(i).(type) {
		case string:
			dst = append(dst, v...)
		case int:
			dst = conv.AppendInt(dst, int64(v))
		case uint32:
			dst = conv.AppendUint(dst, uint64(v))
		default:
			dst = append(dst, '?')
		}
	}
	dst = append(dst, ' ')

	switch p := payload.(type) {
	case types.EncoderStep:
		dst = append(dst, "dir="...)
		dst = conv.AppendInt(dst, int64(p.Direction))
		dst = append(dst, " pos="...)
		dst = conv.AppendInt(dst, p.Position)
	case types.EncoderValue:
		dst = append(dst, "pos="...)
		dst = conv.AppendInt(dst, p.Position)
	case types.ConnectionCheckValue:
		dst = append(dst, "counts="...)
		for i, n := range p.Counts {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = conv.AppendUint(dst, uint64(n))
		}
		dst = append(dst, " ok="...)
		dst = conv.AppendBool(dst, p.OK)
	case types.ServiceState:
		dst = append(dst, p.Level...)
		dst = append(dst, ' ')
		dst = append(dst, p.Status...)
		dst = append(dst, " drops="...)
		dst = conv.AppendUint(dst, uint64(p.Drops))
	case types.Info:
		dst = append(dst, p.Driver...)
		if d, ok := p.Detail.(types.EncoderInfo); ok {
			dst = append(dst, " a="...)
			dst = conv.AppendInt(dst, int64(d.PinA))
			dst = append(dst, " b="...)
			dst = conv.AppendInt(dst, int64(d.PinB))
			dst = append(dst, " pull="...)
			dst = append(dst, d.Pull...)
		}
	case nil:
		dst = append(dst, "(cleared)"...)
	default:
		dst = append(dst, '-')
	}
	return append(dst, '\r', '\n')
}
