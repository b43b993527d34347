package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame kinds recognized on the stream socket.
const (
	FrameSignal     = "signal"
	FrameConnection = "connection"
)

// ErrMalformedFrame classifies any inbound payload that cannot be
// interpreted: invalid JSON, an unknown type tag, or a signal payload that
// fails validation. Such frames are logged and discarded, never fatal.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the tagged envelope carried on the stream socket:
// {"type":"signal","data":{...}} or {"type":"connection","message":"..."}.
type Frame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// DecodeFrame parses the envelope and rejects anything outside the known
// type set.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case FrameSignal, FrameConnection:
		return f, nil
	}
	return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
}
