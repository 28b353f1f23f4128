package types

import "encoding/json"

// Envelope is the uniform response wrapper every verb returns to external
// clients (CLI flags, HTTP routes, tool-protocol methods all serialize it).
type Envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OKEnvelope wraps a successful result.
func OKEnvelope(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

// ErrEnvelope wraps a failure.
func ErrEnvelope(err error) Envelope {
	return Envelope{OK: false, Error: AsError(err)}
}

// MarshalIndentJSON renders the envelope the way the CLI prints it.
func (e Envelope) MarshalIndentJSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
