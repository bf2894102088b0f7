package main

import (
	"fmt"
	"strconv"
	"strings"
)

// record is one parsed log line: "encoder/<id>/<kind> word key=value ...".
type record struct {
	topic  []string
	words  []string
	fields map[string]string
}

func parseLine(line string) (record, bool) {
	line = strings.TrimRight(line, "\r\n")
	head, rest, _ := strings.Cut(line, " ")
	topic := strings.Split(head, "/")
	if len(topic) != 3 || topic[0] != "encoder" {
		return record{}, false
	}
	rec := record{topic: topic, fields: map[string]string{}}
	for _, f := range strings.Fields(rest) {
		if k, v, ok := strings.Cut(f, "="); ok {
			rec.fields[k] = v
		} else {
			rec.words = append(rec.words, f)
		}
	}
	return rec, true
}

// tracker keeps the last known position per encoder.
type tracker struct {
	positions map[string]int64
}

func newTracker() *tracker { return &tracker{positions: map[string]int64{}} }

// handle returns the summary line for rec, or "" when there is nothing new.
func (t *tracker) handle(rec record) string {
	id, kind := rec.topic[1], rec.topic[2]
	switch kind {
	case "event", "value":
		pos, err := strconv.ParseInt(rec.fields["pos"], 10, 64)
		if err != nil {
			return ""
		}
		old, seen := t.positions[id]
		t.positions[id] = pos
		if seen && old == pos {
			return ""
		}
		return fmt.Sprintf("%-8s pos=%d", id, pos)
	case "check":
		if rec.fields["ok"] == "true" {
			return ""
		}
		return fmt.Sprintf("%-8s connection check failed, counts=%s", id, rec.fields["counts"])
	case "state":
		return fmt.Sprintf("service  %s", strings.Join(rec.words, " "))
	}
	return ""
}
