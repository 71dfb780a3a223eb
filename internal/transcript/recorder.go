// Package transcript records session events (turns, replies, agent steps) to
// a local SQLite file for later export. Recording is strictly write-only with
// respect to a live session: nothing here is ever loaded back into one.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event kinds.
const (
	// KindMessage is a dialogue entry (user turn, assistant reply, error).
	KindMessage = "message"
	// KindStep is one unit of agent progress.
	KindStep = "step"
)

// Event is one transcript row.
type Event struct {
	ProjectID string
	TurnID    string
	Kind      string
	Role      string
	StepType  string
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// Recorder appends events through a bounded queue and a single writer
// goroutine, so recording never blocks the session. When the queue is full
// events are dropped with a warning.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewRecorder opens (creating if needed) the transcript database and starts
// the writer goroutine.
func NewRecorder(dbPath string, queueSize int, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open transcript database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping transcript database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Recorder{
		db:     db,
		logger: logger,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writeLoop()
	return r, nil
}

func initSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		turn_id TEXT,
		kind TEXT NOT NULL,
		role TEXT,
		step_type TEXT,
		content TEXT,
		tool_name TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, created_at);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("create transcript schema: %w", err)
	}
	return nil
}

// Record enqueues one event. Never blocks: a full queue drops the event.
func (r *Recorder) Record(ev Event) {
	select {
	case <-r.done:
	case r.queue <- ev:
	default:
		r.logger.Warn("transcript queue full, dropping event", "kind", ev.Kind, "project_id", ev.ProjectID)
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-r.done:
			// Drain whatever made it into the queue before shutdown.
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev Event) {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO events (project_id, turn_id, kind, role, step_type, content, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ProjectID, ev.TurnID, ev.Kind, ev.Role, ev.StepType, ev.Content, ev.ToolName, createdAt.UnixNano(),
	)
	if err != nil {
		r.logger.Warn("failed to write transcript event", "error", err, "kind", ev.Kind)
	}
}

// Close flushes queued events and closes the database.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.closeErr = r.db.Close()
	})
	return r.closeErr
}

// Events returns recorded events for a project, oldest first, for export
// tooling and tests. Live sessions never call this.
func (r *Recorder) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT project_id, turn_id, kind, role, step_type, content, tool_name, created_at
		 FROM events WHERE project_id = ? ORDER BY id LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var out []Event
	for rows.Next() {
		var ev Event
		var createdAt int64
		if err := rows.Scan(&ev.ProjectID, &ev.TurnID, &ev.Kind, &ev.Role, &ev.StepType, &ev.Content, &ev.ToolName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		ev.CreatedAt = time.Unix(0, createdAt)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return out, nil
}
