package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType marks a frame whose type field is missing or not part of
	// the protocol. Callers log and drop such frames rather than failing the
	// session.
	ErrUnknownType = errors.New("unknown message type")
)

var knownTypes = map[Type]struct{}{
	TypeConnected:        {},
	TypeHeartbeat:        {},
	TypeAgentStep:        {},
	TypeAgentStreamChunk: {},
	TypeAgentResponse:    {},
	TypeAgentStopped:     {},
	TypePortsUpdate:      {},
	TypeError:            {},
	TypeUserMessage:      {},
}

// Decode parses one inbound frame. A malformed payload or an unrecognized
// type returns an error; the session itself never fails on bad frames.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if _, ok := knownTypes[msg.Type]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return &msg, nil
}
