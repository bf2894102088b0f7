package types

// Encoder service configuration supplied on topic "config/encoder".

type EncoderServiceConfig struct {
	SampleMicros uint32          `json:"sample_us"`          // decoder poll period; 0 => default
	CheckMillis  uint32          `json:"check_ms,omitempty"` // connection-check report period; 0 => off
	Encoders     []EncoderParams `json:"encoders"`
}

type EncoderParams struct {
	ID    string `json:"id"`
	PinA  int    `json:"pin_a"`
	PinB  int    `json:"pin_b"`
	Pull  string `json:"pull,omitempty"`  // "up" (default), "down", "none"
	Check bool   `json:"check,omitempty"` // collect connection-check counts
}
