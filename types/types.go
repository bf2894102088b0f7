package types

// ---- Service state (retained) ----

type ServiceState struct {
	Level  string `json:"level"`  // "idle", "ready", "degraded", "stopped"
	Status string `json:"status"` // short code, see errcode
	Drops  uint32 `json:"drops"`  // sample ticks missed because the loop was busy
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// ---- Capability kinds & info ----

type Kind string

const KindEncoder Kind = "encoder"

// Info envelope each encoder exposes (retained)
type Info struct {
	SchemaVersion int         `json:"schema_version"`
	Kind          Kind        `json:"kind"`
	Driver        string      `json:"driver"`
	Detail        interface{} `json:"detail,omitempty"`
}

type EncoderInfo struct {
	PinA int    `json:"pin_a"`
	PinB int    `json:"pin_b"`
	Pull string `json:"pull"`
}

// ---- Encoder payloads ----

// EncoderValue is the retained absolute position.
type EncoderValue struct {
	Position int64 `json:"position"`
	TS       int64 `json:"ts_ms"`
}

// EncoderStep is one decoded step (event, not retained).
type EncoderStep struct {
	Direction int   `json:"direction"` // +1 or -1
	Position  int64 `json:"position"`
	TS        int64 `json:"ts_ms"`
}

// ConnectionCheckValue reports how often each raw (A<<1)|B state was seen
// during the last check period.
type ConnectionCheckValue struct {
	Counts [4]uint16 `json:"counts"`
	OK     bool      `json:"ok"` // every state was seen at least once
	TS     int64     `json:"ts_ms"`
}

// ---- Controls ----

const (
	CtrlRead       = "read"
	CtrlReset      = "reset"
	CtrlCheckReset = "check_reset"
)

type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Value any    `json:"value,omitempty"`
}
