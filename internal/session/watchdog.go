package session

import (
	"sync"
	"time"
)

// Watchdog detects a silently dead connection. It is reset on every inbound
// frame of any kind and fires only after a full quiet interval, independently
// of the transport's own close events.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatchdog creates a disarmed watchdog. onExpire runs on the timer
// goroutine when the quiet interval elapses.
func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{timeout: timeout, onExpire: onExpire}
}

// Arm starts the timer. Equivalent to Reset; named for call sites that arm on
// connection open.
func (w *Watchdog) Arm() {
	w.Reset()
}

// Reset restarts the single timer. Safe to call concurrently with expiry.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.timeout, w.onExpire)
}

// Disarm cancels the timer. Called on manual close and teardown.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
