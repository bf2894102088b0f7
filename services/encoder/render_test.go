package encoder

import (
	"testing"

	"encodertick-go/bus"
	"encodertick-go/types"
)

func TestAppendLine(t *testing.T) {
	cases := []struct {
		topic   bus.Topic
		payload any
		want    string
	}{
		{Topic("knob", TokEvent), types.EncoderStep{Direction: -1, Position: -12}, "encoder/knob/event dir=-1 pos=-12"},
		{Topic("knob", TokValue), types.EncoderValue{Position: 40}, "encoder/knob/value pos=40"},
		{Topic("knob", TokCheck), types.ConnectionCheckValue{Counts: [4]uint16{3, 0, 1, 2}}, "encoder/knob/check counts=3,0,1,2 ok=false"},
		{topicState, types.ServiceState{Level: "ready", Status: "configured", Drops: 2}, "encoder/service/state ready configured drops=2"},
		{Topic("knob", TokInfo), types.Info{Driver: "quadrature", Detail: types.EncoderInfo{PinA: 2, PinB: 3, Pull: "up"}}, "encoder/knob/info quadrature a=2 b=3 pull=up"},
		{Topic("knob", TokValue), nil, "encoder/knob/value (cleared)"},
		{bus.T("_reply", "ui", uint32(7)), types.ControlReply{OK: true}, "_reply/ui/7 -"},
	}
	for _, c := range cases {
		if got := string(AppendLine(nil, c.topic, c.payload)); got != c.want+"\r\n" {
			t.Errorf("AppendLine(%v) = %q, want %q", c.topic, got, c.want)
		}
	}
}
