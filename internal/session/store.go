package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikozlov666/aiagent/internal/protocol"
	"github.com/ikozlov666/aiagent/internal/transcript"
)

const (
	// thinkingPlaceholder stands in for a thinking step with empty content.
	thinkingPlaceholder = "Thinking..."
	// stoppedFallback is shown when an agent_stopped frame carries no text.
	stoppedFallback = "Agent stopped."

	dispatchQueueSize = 256
)

// Sender transmits an outbound payload over the live connection. The
// connection Manager implements it.
type Sender interface {
	Send(ctx context.Context, payload any) error
}

// Recorder receives transcript events as the session progresses.
// transcript.Recorder implements it; a nil Recorder disables recording.
type Recorder interface {
	Record(ev transcript.Event)
}

// Store holds all client-side state for one session. Inbound messages are
// applied by a single reducer goroutine fed through Dispatch; snapshot
// accessors may be called from any goroutine.
type Store struct {
	logger *slog.Logger

	events chan *protocol.Message
	done   chan struct{}

	mu        sync.RWMutex
	sender    Sender
	rec       Recorder
	observer  func(*protocol.Message)
	projectID string
	status    Status
	messages  []ChatMessage
	steps     []Step
	streaming string
	live      string
	ports     map[string]int
	connected bool
	turnID    string

	closeOnce sync.Once
}

// NewStore creates a session store for the given project handle and starts
// its reducer goroutine. Call Close when the session ends.
func NewStore(projectID string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger:    logger,
		events:    make(chan *protocol.Message, dispatchQueueSize),
		done:      make(chan struct{}),
		projectID: projectID,
		status:    StatusIdle,
	}
	go s.run()
	return s
}

// BindSender attaches the outbound channel. Called by the connection Manager
// during wiring.
func (s *Store) BindSender(snd Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = snd
}

// SetRecorder attaches an optional transcript recorder.
func (s *Store) SetRecorder(rec Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
}

// SetObserver registers a callback invoked by the reducer after each applied
// message. Rendering code uses it to refresh.
func (s *Store) SetObserver(fn func(*protocol.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Dispatch enqueues a decoded inbound message for the reducer. It blocks only
// if the queue is full, providing backpressure on the read loop.
func (s *Store) Dispatch(msg *protocol.Message) {
	select {
	case s.events <- msg:
	case <-s.done:
	}
}

// Close stops the reducer. The store's snapshots remain readable.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.events:
			s.apply(msg)
			s.mu.RLock()
			observer := s.observer
			s.mu.RUnlock()
			if observer != nil {
				observer(msg)
			}
		}
	}
}

// apply mutates state per the protocol table. It is the only writer besides
// SendTurn/Stop and the connectivity flag.
func (s *Store) apply(msg *protocol.Message) {
	s.mu.Lock()

	switch msg.Type {
	case protocol.TypeConnected:
		if msg.ProjectID != "" {
			s.projectID = msg.ProjectID
		}
		s.ports = maps.Clone(msg.Ports)
		s.mu.Unlock()
		s.logger.Info("session handshake complete", "project_id", msg.ProjectID, "ports", len(msg.Ports))

	case protocol.TypeHeartbeat:
		s.mu.Unlock()

	case protocol.TypeAgentStep:
		s.applyStepLocked(msg)

	case protocol.TypeAgentStreamChunk:
		s.status = StatusWorking
		s.streaming += msg.Content
		s.mu.Unlock()

	case protocol.TypeAgentResponse:
		s.appendTerminalLocked(RoleAssistant, msg.Content, StatusDone)

	case protocol.TypeAgentStopped:
		content := msg.Content
		if content == "" {
			content = stoppedFallback
		}
		s.appendTerminalLocked(RoleAssistant, content, StatusIdle)

	case protocol.TypePortsUpdate:
		s.ports = maps.Clone(msg.Ports)
		s.mu.Unlock()
		s.logger.Debug("port mapping updated", "ports", len(msg.Ports))

	case protocol.TypeError:
		s.appendTerminalLocked(RoleError, msg.Content, StatusError)

	case protocol.TypeUserMessage:
		// Already appended locally at send time.
		s.mu.Unlock()

	default:
		s.mu.Unlock()
		s.logger.Warn("unhandled message type", "type", msg.Type)
	}
}

// applyStepLocked appends a step and advances status. Releases s.mu.
func (s *Store) applyStepLocked(msg *protocol.Message) {
	switch msg.StepType {
	case protocol.StepThinking, protocol.StepLLMText, protocol.StepToolCall, protocol.StepToolResult:
	default:
		s.mu.Unlock()
		s.logger.Warn("dropping step of unknown kind", "step_type", msg.StepType)
		return
	}

	step := Step{
		Kind:       msg.StepType,
		Content:    msg.Content,
		StepNumber: msg.StepNumber,
		ToolName:   msg.ToolName,
		ToolArgs:   msg.ToolArgs,
		ToolResult: msg.ToolResult,
		Timestamp:  stepTime(msg.Timestamp),
	}
	s.steps = append(s.steps, step)

	switch step.Kind {
	case protocol.StepThinking:
		s.status = StatusThinking
		if step.Content != "" {
			s.live = step.Content
		} else {
			s.live = thinkingPlaceholder
		}
	case protocol.StepLLMText:
		s.status = StatusWorking
		s.live = step.Content
	case protocol.StepToolCall, protocol.StepToolResult:
		s.status = StatusWorking
	}

	turnID, projectID := s.turnID, s.projectID
	s.mu.Unlock()

	s.record(transcript.Event{
		ProjectID: projectID,
		TurnID:    turnID,
		Kind:      transcript.KindStep,
		StepType:  string(step.Kind),
		Content:   step.Content,
		ToolName:  step.ToolName,
		CreatedAt: step.Timestamp,
	})
}

// appendTerminalLocked ends the current turn with a terminal ChatMessage,
// clearing both streaming buffers. Releases s.mu.
func (s *Store) appendTerminalLocked(role Role, content string, next Status) {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		TurnID:    s.turnID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.status = next
	s.streaming = ""
	s.live = ""
	projectID := s.projectID
	s.mu.Unlock()

	s.record(transcript.Event{
		ProjectID: projectID,
		TurnID:    msg.TurnID,
		Kind:      transcript.KindMessage,
		Role:      string(role),
		Content:   content,
		CreatedAt: msg.Timestamp,
	})
}

// SendTurn transmits a user turn and resets per-turn state: exactly one user
// ChatMessage is appended, status moves to thinking, and the step history and
// streaming buffers are cleared. No state changes when the send fails.
func (s *Store) SendTurn(ctx context.Context, text string, images []string, files []protocol.AttachedFile) error {
	snd, connected := s.outbound()
	if snd == nil || !connected {
		return ErrNotConnected
	}

	req := protocol.TurnRequest{Message: text, Images: images, AttachedFiles: files}
	if err := snd.Send(ctx, req); err != nil {
		return fmt.Errorf("send turn: %w", err)
	}

	turnID := uuid.NewString()
	msg := ChatMessage{
		ID:            uuid.NewString(),
		TurnID:        turnID,
		Role:          RoleUser,
		Content:       text,
		Images:        images,
		AttachedFiles: files,
		Timestamp:     time.Now(),
	}

	s.mu.Lock()
	s.turnID = turnID
	s.messages = append(s.messages, msg)
	s.status = StatusThinking
	s.steps = nil
	s.streaming = ""
	s.live = ""
	projectID := s.projectID
	s.mu.Unlock()

	s.record(transcript.Event{
		ProjectID: projectID,
		TurnID:    turnID,
		Kind:      transcript.KindMessage,
		Role:      string(RoleUser),
		Content:   text,
		CreatedAt: msg.Timestamp,
	})
	return nil
}

// Stop transmits a stop directive and optimistically flips status to idle
// without waiting for the agent_stopped confirmation.
func (s *Store) Stop(ctx context.Context) error {
	snd, connected := s.outbound()
	if snd == nil || !connected {
		return ErrNotConnected
	}
	if err := snd.Send(ctx, protocol.NewStopRequest()); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	s.mu.Lock()
	s.status = StatusIdle
	s.mu.Unlock()
	return nil
}

func (s *Store) outbound() (Sender, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender, s.connected
}

// setConnected publishes connectivity; called by the connection Manager.
func (s *Store) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *Store) record(ev transcript.Event) {
	s.mu.RLock()
	rec := s.rec
	s.mu.RUnlock()
	if rec != nil {
		rec.Record(ev)
	}
}

// Status returns the current agent status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Connected reports whether a connection is currently open.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ProjectID returns the session's project handle.
func (s *Store) ProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectID
}

// Messages returns a copy of the dialogue history.
func (s *Store) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Steps returns a copy of the current turn's step history.
func (s *Store) Steps() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// StreamingContent returns the accumulated streamed reply for this turn.
func (s *Store) StreamingContent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// LiveAssistantContent returns the latest thinking/llm_text step content.
func (s *Store) LiveAssistantContent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Ports returns a copy of the current port mapping.
func (s *Store) Ports() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.ports)
}
