package protocol

import (
	"errors"
	"testing"
)

func TestDecodeAgentStep(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"type": "agent_step",
		"step_type": "tool_result",
		"step_number": 3,
		"content": "",
		"tool_name": "execute_command",
		"tool_args": {"command": "ls"},
		"tool_result": {"success": true, "content": "main.go"},
		"timestamp": 1712345678.25
	}`)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Type != TypeAgentStep {
		t.Errorf("expected type %q, got %q", TypeAgentStep, msg.Type)
	}
	if msg.StepType != StepToolResult {
		t.Errorf("expected step type %q, got %q", StepToolResult, msg.StepType)
	}
	if msg.StepNumber != 3 {
		t.Errorf("expected step number 3, got %d", msg.StepNumber)
	}
	if msg.ToolName != "execute_command" {
		t.Errorf("unexpected tool name %q", msg.ToolName)
	}
	if msg.ToolResult == nil || !msg.ToolResult.Success {
		t.Errorf("expected successful tool result, got %+v", msg.ToolResult)
	}
	if msg.Timestamp != 1712345678.25 {
		t.Errorf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestDecodeConnectedCarriesPorts(t *testing.T) {
	t.Parallel()

	msg, err := Decode([]byte(`{"type":"connected","project_id":"proj-1","ports":{"3000":33000,"6080":36080}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.ProjectID != "proj-1" {
		t.Errorf("unexpected project id %q", msg.ProjectID)
	}
	if msg.Ports["3000"] != 33000 || msg.Ports["6080"] != 36080 {
		t.Errorf("unexpected ports %v", msg.Ports)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"type":"telemetry","content":"x"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeMissingType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"content":"x"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"type":"heartbeat"`))
	if err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if errors.Is(err, ErrUnknownType) {
		t.Fatalf("malformed frame should not report ErrUnknownType: %v", err)
	}
}
