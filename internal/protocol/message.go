// Package protocol defines the wire messages exchanged with the agent backend
// over the chat websocket, and the decoder that turns raw frames into them.
package protocol

// Type discriminates inbound frames.
type Type string

const (
	// TypeConnected is sent once after the socket opens, with the project id
	// and the initial port mapping.
	TypeConnected Type = "connected"
	// TypeHeartbeat is a periodic liveness ping carrying no payload.
	TypeHeartbeat Type = "heartbeat"
	// TypeAgentStep reports one unit of agent progress (thought, tool call,
	// tool result, model text).
	TypeAgentStep Type = "agent_step"
	// TypeAgentStreamChunk carries a fragment of a streamed model reply.
	TypeAgentStreamChunk Type = "agent_stream_chunk"
	// TypeAgentResponse is the final reply that ends a turn.
	TypeAgentResponse Type = "agent_response"
	// TypeAgentStopped confirms a user-requested stop.
	TypeAgentStopped Type = "agent_stopped"
	// TypePortsUpdate announces a changed port mapping (e.g. a dev server
	// started inside the sandbox).
	TypePortsUpdate Type = "ports_update"
	// TypeError reports an application-level failure from the backend.
	TypeError Type = "error"
	// TypeUserMessage echoes the user's own message back; clients already
	// appended it locally at send time, so it is decoded and ignored.
	TypeUserMessage Type = "user_message"
)

// StepType discriminates agent_step payloads.
type StepType string

const (
	// StepThinking is internal reasoning text.
	StepThinking StepType = "thinking"
	// StepLLMText is model output addressed to the user.
	StepLLMText StepType = "llm_text"
	// StepToolCall is a tool invocation with its arguments.
	StepToolCall StepType = "tool_call"
	// StepToolResult is the outcome of a tool invocation.
	StepToolResult StepType = "tool_result"
)

// ToolResult carries the outcome of a tool call. The backend includes
// tool-specific keys beyond these; only success/error are contractual.
type ToolResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Content string `json:"content,omitempty"`
}

// Message is one decoded inbound frame. Fields beyond Type are populated
// depending on the frame kind; the backend flattens agent step payloads into
// the top-level object.
type Message struct {
	Type       Type           `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	Content    string         `json:"content,omitempty"`
	HasImages  bool           `json:"has_images,omitempty"`
	StepType   StepType       `json:"step_type,omitempty"`
	StepNumber int            `json:"step_number,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolResult *ToolResult    `json:"tool_result,omitempty"`
	// Ports maps container port (as a string key) to the published host port.
	Ports map[string]int `json:"ports,omitempty"`
	// Timestamp is unix seconds with fractional precision.
	Timestamp float64 `json:"timestamp,omitempty"`
}
