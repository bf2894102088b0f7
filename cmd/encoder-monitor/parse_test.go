package main

import "testing"

func TestParseLine(t *testing.T) {
	rec, ok := parseLine("encoder/knob/event dir=-1 pos=-12\r\n")
	if !ok {
		t.Fatal("line rejected")
	}
	if rec.topic[1] != "knob" || rec.fields["dir"] != "-1" || rec.fields["pos"] != "-12" {
		t.Fatalf("rec = %+v", rec)
	}
	if _, ok := parseLine("[main] boot"); ok {
		t.Fatal("non-encoder line accepted")
	}
	rec, _ = parseLine("encoder/service/state ready configured drops=0")
	if len(rec.words) != 2 || rec.words[0] != "ready" {
		t.Fatalf("words = %v", rec.words)
	}
}

func TestTracker(t *testing.T) {
	tr := newTracker()
	feed := func(line string) string {
		rec, ok := parseLine(line)
		if !ok {
			t.Fatalf("rejected %q", line)
		}
		return tr.handle(rec)
	}
	if out := feed("encoder/knob/event dir=1 pos=1"); out != "knob     pos=1" {
		t.Fatalf("event -> %q", out)
	}
	if out := feed("encoder/knob/value pos=1"); out != "" {
		t.Fatalf("unchanged value reported: %q", out)
	}
	if out := feed("encoder/knob/check counts=4,4,4,4 ok=true"); out != "" {
		t.Fatalf("healthy check reported: %q", out)
	}
	if out := feed("encoder/knob/check counts=9,0,0,9 ok=false"); out != "knob     connection check failed, counts=9,0,0,9" {
		t.Fatalf("failed check -> %q", out)
	}
	if out := feed("encoder/service/state degraded unknown_pin drops=0"); out != "service  degraded unknown_pin" {
		t.Fatalf("state -> %q", out)
	}
}
