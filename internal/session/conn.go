package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ikozlov666/aiagent/internal/protocol"
)

// StatusLivenessTimeout is the private-use close code the watchdog uses when
// force-closing a silent connection. The reconnect policy maps it to the fast
// retry delay instead of the ordinary one.
const StatusLivenessTimeout websocket.StatusCode = 4002

// ManagerConfig holds connection tuning. Zero fields take defaults.
type ManagerConfig struct {
	HeartbeatTimeout   time.Duration
	ReconnectDelay     time.Duration
	FastReconnectDelay time.Duration
	DialTimeout        time.Duration
}

// DefaultManagerConfig returns the reference timings: a 45s liveness window
// and the two-valued reconnect delay policy (1s after a watchdog close, 5s
// after any other abnormal close).
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatTimeout:   45 * time.Second,
		ReconnectDelay:     5 * time.Second,
		FastReconnectDelay: 1 * time.Second,
		DialTimeout:        10 * time.Second,
	}
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	def := DefaultManagerConfig()
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.FastReconnectDelay <= 0 {
		c.FastReconnectDelay = def.FastReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	return c
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateOpen
)

// Manager owns the websocket for one session handle: it establishes the
// connection, feeds decoded frames to the Store, detects silent death via the
// Watchdog, and re-establishes after abnormal closure. A handle change means
// Close and a fresh Manager.
type Manager struct {
	store    *Store
	cfg      ManagerConfig
	logger   *slog.Logger
	url      string
	watchdog *Watchdog

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	conn          *websocket.Conn
	connCancel    context.CancelFunc
	state         connState
	gen           uint64
	reconnect     *time.Timer
	watchdogFired bool
	closed        bool
}

// NewManager builds a manager for the session at serverURL/ws/chat/<handle>
// and binds itself as the store's outbound sender. It does not connect.
func NewManager(serverURL, handle string, store *Store, cfg ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	target, err := sessionURL(serverURL, handle)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
		url:    target,
		ctx:    ctx,
		cancel: cancel,
	}
	m.watchdog = NewWatchdog(m.cfg.HeartbeatTimeout, m.onLivenessTimeout)
	store.BindSender(m)
	return m, nil
}

// sessionURL derives the websocket target from an http(s) base URL, mirroring
// the page scheme: http becomes ws, https becomes wss.
func sessionURL(base, handle string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = "/ws/chat/" + handle
	return u.String(), nil
}

// Connect opens the connection if none is connecting or open. Duplicate calls
// are no-ops; a pending reconnect timer is cancelled first.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.state != stateDisconnected {
		m.mu.Unlock()
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.state = stateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dial(gen)
}

func (m *Manager) dial(gen uint64) {
	dialCtx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, m.url, nil)
	cancel()

	if err != nil {
		m.logger.Warn("session dial failed", "url", m.url, "error", err)
		m.mu.Lock()
		if m.closed || gen != m.gen {
			m.mu.Unlock()
			return
		}
		m.state = stateDisconnected
		m.scheduleReconnectLocked(m.cfg.ReconnectDelay)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return
	}
	readCtx, readCancel := context.WithCancel(m.ctx)
	m.conn = conn
	m.connCancel = readCancel
	m.state = stateOpen
	m.watchdogFired = false
	m.mu.Unlock()

	m.store.setConnected(true)
	m.watchdog.Arm()
	m.logger.Info("session connected", "url", m.url)

	go m.readLoop(readCtx, conn, gen)
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.handleClose(conn, gen, err)
			return
		}

		// Arrival of any frame proves liveness, decodable or not.
		m.watchdog.Reset()

		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownType) {
				m.logger.Warn("dropping unrecognized frame", "error", err)
			} else {
				m.logger.Warn("dropping malformed frame", "error", err)
			}
			continue
		}
		m.store.Dispatch(msg)
	}
}

// handleClose runs the reconnect policy after the read loop exits. Events
// from a superseded socket are ignored by identity.
func (m *Manager) handleClose(conn *websocket.Conn, gen uint64, err error) {
	m.mu.Lock()
	if conn != m.conn || gen != m.gen {
		m.mu.Unlock()
		_ = conn.CloseNow()
		return
	}
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.state = stateDisconnected
	fired := m.watchdogFired
	m.watchdogFired = false
	closed := m.closed
	code := websocket.CloseStatus(err)

	var delay time.Duration
	switch {
	case closed, code == websocket.StatusNormalClosure:
		// Intentional close: no reconnect.
	case fired, code == StatusLivenessTimeout:
		delay = m.cfg.FastReconnectDelay
	default:
		delay = m.cfg.ReconnectDelay
	}
	if delay > 0 {
		m.scheduleReconnectLocked(delay)
	}
	m.mu.Unlock()

	m.watchdog.Disarm()
	m.store.setConnected(false)
	_ = conn.CloseNow()

	if delay > 0 {
		m.logger.Warn("session disconnected", "code", int(code), "reconnect_in", delay)
	} else {
		m.logger.Info("session closed", "code", int(code))
	}
}

// scheduleReconnectLocked arms the single reconnect timer. Requires m.mu.
func (m *Manager) scheduleReconnectLocked(delay time.Duration) {
	if m.reconnect != nil {
		return
	}
	m.reconnect = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.reconnect = nil
		m.mu.Unlock()
		m.Connect()
	})
}

// onLivenessTimeout force-closes the active socket with the distinguished
// code so the close handler schedules a fast retry.
func (m *Manager) onLivenessTimeout() {
	m.mu.Lock()
	conn := m.conn
	if conn == nil || m.closed {
		m.mu.Unlock()
		return
	}
	m.watchdogFired = true
	m.mu.Unlock()

	m.logger.Warn("no inbound traffic within liveness window, forcing close")
	_ = conn.Close(StatusLivenessTimeout, "liveness timeout")
	_ = conn.CloseNow()
}

// Close tears the connection down intentionally: pending reconnects are
// cancelled, the watchdog disarmed, and the socket closed with the normal
// code so no reconnect is scheduled.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	conn := m.conn
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.state = stateDisconnected
	m.mu.Unlock()

	m.watchdog.Disarm()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	m.cancel()
	m.store.setConnected(false)
}

// Send transmits one outbound payload as a JSON text frame. Returns
// ErrNotConnected while no connection is open.
func (m *Manager) Send(ctx context.Context, payload any) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == stateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbound payload: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
