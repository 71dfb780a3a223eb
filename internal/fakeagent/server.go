// Package fakeagent implements a local stand-in for the agent backend's chat
// websocket. It speaks the same frame protocol: connected handshake, periodic
// heartbeats, scripted agent steps and stream chunks per turn, and stop
// handling. Used by cmd/fakeagent for development and by session tests.
package fakeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ikozlov666/aiagent/internal/protocol"
)

// Config controls the scripted behavior.
type Config struct {
	// HeartbeatInterval between heartbeat frames; 0 disables them entirely,
	// which makes the server look silently dead to a client watchdog.
	HeartbeatInterval time.Duration
	// Ports reported in the connected handshake.
	Ports map[string]int
	// StepDelay paces the scripted frames of a turn.
	StepDelay time.Duration
	// StreamChunkSize splits the reply into stream chunks; 0 means no chunks.
	StreamChunkSize int
}

// DefaultConfig mirrors the real backend's pacing.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 8 * time.Second,
		Ports:             map[string]int{"3000": 33000},
		StepDelay:         50 * time.Millisecond,
		StreamChunkSize:   8,
	}
}

// Server hosts the fake chat endpoint.
type Server struct {
	cfg    Config
	logger *slog.Logger

	accepts atomic.Int64
}

// NewServer creates a fake agent server.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Accepts returns how many websocket connections were accepted so far.
func (s *Server) Accepts() int64 {
	return s.accepts.Load()
}

// Routes returns the router exposing GET /ws/chat/{projectID}.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws/chat/{projectID}", s.HandleChat)
	return r
}

// chatConn serializes frame writes; the heartbeat ticker and the turn script
// write concurrently.
type chatConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *chatConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// inbound mirrors the client payloads: a stop directive or a turn.
type inbound struct {
	Type          string                  `json:"type"`
	Message       string                  `json:"message"`
	Images        []string                `json:"images"`
	AttachedFiles []protocol.AttachedFile `json:"attached_files"`
}

// HandleChat upgrades and runs one chat session.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("failed to accept websocket", "error", err, "project_id", projectID)
		return
	}
	s.accepts.Add(1)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			s.logger.Debug("failed to close websocket", "error", closeErr, "project_id", projectID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &chatConn{conn: ws}
	s.logger.Info("chat session opened", "project_id", projectID, "ip", r.RemoteAddr)

	if err := conn.writeJSON(ctx, protocol.Message{
		Type:      protocol.TypeConnected,
		ProjectID: projectID,
		Ports:     s.cfg.Ports,
	}); err != nil {
		s.logger.Warn("failed to send connected frame", "error", err)
		return
	}

	if s.cfg.HeartbeatInterval > 0 {
		go s.heartbeatLoop(ctx, conn)
	}

	type turnHandle struct {
		cancel context.CancelFunc
	}
	var (
		runMu   sync.Mutex
		current *turnHandle
	)
	running := func() bool {
		runMu.Lock()
		defer runMu.Unlock()
		return current != nil
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Info("chat session closed by client", "project_id", projectID, "code", int(websocket.CloseStatus(err)))
			} else {
				s.logger.Debug("chat session read ended", "project_id", projectID, "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("ignoring malformed client frame", "error", err)
			continue
		}

		if msg.Type == "stop" {
			runMu.Lock()
			if current != nil {
				current.cancel()
				current = nil
			}
			runMu.Unlock()
			if err := conn.writeJSON(ctx, protocol.Message{
				Type:    protocol.TypeAgentStopped,
				Content: "Agent stopped.",
			}); err != nil {
				return
			}
			continue
		}

		if msg.Message == "" && len(msg.Images) == 0 && len(msg.AttachedFiles) == 0 {
			continue
		}

		if running() {
			if err := conn.writeJSON(ctx, protocol.Message{
				Type:    protocol.TypeError,
				Content: "Agent is already running a task. Stop it first.",
			}); err != nil {
				return
			}
			continue
		}

		// Echo the user message, as the real backend broadcasts it.
		if err := conn.writeJSON(ctx, protocol.Message{
			Type:      protocol.TypeUserMessage,
			Content:   msg.Message,
			HasImages: len(msg.Images) > 0,
		}); err != nil {
			return
		}

		turnCtx, turnCancel := context.WithCancel(ctx)
		h := &turnHandle{cancel: turnCancel}
		runMu.Lock()
		current = h
		runMu.Unlock()
		go func(userMessage string) {
			s.runTurn(turnCtx, conn, userMessage)
			turnCancel()
			runMu.Lock()
			if current == h {
				current = nil
			}
			runMu.Unlock()
		}(msg.Message)
	}
}

func (s *Server) heartbeatLoop(ctx context.Context, conn *chatConn) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.writeJSON(ctx, protocol.Message{Type: protocol.TypeHeartbeat}); err != nil {
				return
			}
		}
	}
}

// runTurn plays the scripted agent run: a thought, a tool round-trip, the
// reply streamed in chunks, then the final response.
func (s *Server) runTurn(ctx context.Context, conn *chatConn, userMessage string) {
	reply := fmt.Sprintf("Done. You asked: %s", userMessage)
	now := func() float64 { return float64(time.Now().UnixNano()) / float64(time.Second) }

	script := []protocol.Message{
		{
			Type:       protocol.TypeAgentStep,
			StepType:   protocol.StepThinking,
			StepNumber: 1,
			Content:    "Planning how to handle the request",
			Timestamp:  now(),
		},
		{
			Type:       protocol.TypeAgentStep,
			StepType:   protocol.StepToolCall,
			StepNumber: 2,
			ToolName:   "execute_command",
			ToolArgs:   map[string]any{"command": "echo working"},
			Timestamp:  now(),
		},
		{
			Type:       protocol.TypeAgentStep,
			StepType:   protocol.StepToolResult,
			StepNumber: 2,
			ToolName:   "execute_command",
			ToolResult: &protocol.ToolResult{Success: true, Content: "working"},
			Timestamp:  now(),
		},
	}

	for _, frame := range script {
		if !s.pace(ctx) {
			return
		}
		if err := conn.writeJSON(ctx, frame); err != nil {
			return
		}
	}

	if s.cfg.StreamChunkSize > 0 {
		for i := 0; i < len(reply); i += s.cfg.StreamChunkSize {
			if !s.pace(ctx) {
				return
			}
			end := i + s.cfg.StreamChunkSize
			if end > len(reply) {
				end = len(reply)
			}
			if err := conn.writeJSON(ctx, protocol.Message{
				Type:    protocol.TypeAgentStreamChunk,
				Content: reply[i:end],
			}); err != nil {
				return
			}
		}
	}

	if !s.pace(ctx) {
		return
	}
	if err := conn.writeJSON(ctx, protocol.Message{
		Type:    protocol.TypeAgentResponse,
		Content: reply,
	}); err != nil {
		return
	}
}

// pace waits one step delay; false means the turn was cancelled.
func (s *Server) pace(ctx context.Context) bool {
	if s.cfg.StepDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.cfg.StepDelay):
		return true
	}
}
