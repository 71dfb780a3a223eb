package session

import (
	"sort"
	"time"

	"github.com/ikozlov666/aiagent/internal/protocol"
)

// Dialogue entry kinds.
const (
	// DialogueKindText is model output captured from llm_text steps.
	DialogueKindText = "llm_text"
	// DialogueKindResponse is synthesized from terminal ChatMessages.
	DialogueKindResponse = "response"
)

// DialogueEntry is one item of the model-dialogue view.
type DialogueEntry struct {
	Kind      string
	Role      Role
	Content   string
	Timestamp time.Time
}

// ActivitySteps returns the operational trace: thinking, tool calls, and tool
// results. Recomputed on every call; never stored.
func (s *Store) ActivitySteps() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Step
	for _, step := range s.steps {
		switch step.Kind {
		case protocol.StepThinking, protocol.StepToolCall, protocol.StepToolResult:
			out = append(out, step)
		}
	}
	return out
}

// DialogueEntries returns what the model said: llm_text steps of the current
// turn plus response entries materialized from assistant and error messages,
// ordered by time. A step appears in exactly one of the two views.
func (s *Store) DialogueEntries() []DialogueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DialogueEntry
	for _, step := range s.steps {
		if step.Kind == protocol.StepLLMText {
			out = append(out, DialogueEntry{
				Kind:      DialogueKindText,
				Role:      RoleAssistant,
				Content:   step.Content,
				Timestamp: step.Timestamp,
			})
		}
	}
	for _, msg := range s.messages {
		if msg.Role == RoleUser {
			continue
		}
		out = append(out, DialogueEntry{
			Kind:      DialogueKindResponse,
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
