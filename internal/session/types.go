// Package session keeps a client's view of one remote agent session: the
// websocket connection to the backend, the status state machine driven by
// inbound protocol messages, and the message/step histories rendering code
// reads from.
package session

import (
	"errors"
	"math"
	"time"

	"github.com/ikozlov666/aiagent/internal/protocol"
)

// ErrNotConnected is returned by outbound operations while no connection is
// open. Callers surface it and move on; it never ends the session.
var ErrNotConnected = errors.New("session not connected")

// Status reports whether the agent is currently acting.
type Status string

const (
	// StatusIdle means no turn is outstanding.
	StatusIdle Status = "idle"
	// StatusThinking means the agent is reasoning before acting.
	StatusThinking Status = "thinking"
	// StatusWorking means the agent is producing output or running tools.
	StatusWorking Status = "working"
	// StatusDone means the last turn completed with a response.
	StatusDone Status = "done"
	// StatusError means the last turn ended with a backend-reported failure.
	StatusError Status = "error"
)

// Role identifies the author of a ChatMessage.
type Role string

const (
	// RoleUser marks a message the user sent.
	RoleUser Role = "user"
	// RoleAssistant marks a reply from the agent.
	RoleAssistant Role = "assistant"
	// RoleError marks a backend-reported failure surfaced in the dialogue.
	RoleError Role = "error"
)

// Step is one recorded unit of agent progress. Steps are append-only; the
// history is cleared only when a new turn begins.
type Step struct {
	Kind       protocol.StepType
	Content    string
	StepNumber int
	ToolName   string
	ToolArgs   map[string]any
	ToolResult *protocol.ToolResult
	Timestamp  time.Time
}

// ChatMessage is one entry of the dialogue history, immutable once appended.
type ChatMessage struct {
	ID            string
	TurnID        string
	Role          Role
	Content       string
	Images        []string
	AttachedFiles []protocol.AttachedFile
	Timestamp     time.Time
}

// stepTime converts the backend's unix-seconds float timestamp, falling back
// to local time when the frame carries none.
func stepTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
