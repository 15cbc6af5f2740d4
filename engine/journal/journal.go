package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

var ErrJournalClosed = errors.New("journal is closed")

type Kind string

const (
	KindStatus          Kind = "status"
	KindAnchorCreated   Kind = "anchor_created"
	KindAnchorReleased  Kind = "anchor_released"
	KindAnchorFailed    Kind = "anchor_failed"
	KindScanStarted     Kind = "scan_started"
	KindScanFailed      Kind = "scan_failed"
	KindDatabaseReady   Kind = "database_ready"
	KindRenderableReady Kind = "renderable_ready"
	KindSessionPaused   Kind = "session_paused"
	KindSessionResumed  Kind = "session_resumed"
)

var kindByCode = map[core.EventCode]Kind{
	core.EVENT_CODE_STATUS:           KindStatus,
	core.EVENT_CODE_ANCHOR_CREATED:   KindAnchorCreated,
	core.EVENT_CODE_ANCHOR_RELEASED:  KindAnchorReleased,
	core.EVENT_CODE_ANCHOR_FAILED:    KindAnchorFailed,
	core.EVENT_CODE_SCAN_STARTED:     KindScanStarted,
	core.EVENT_CODE_SCAN_FAILED:      KindScanFailed,
	core.EVENT_CODE_DATABASE_READY:   KindDatabaseReady,
	core.EVENT_CODE_RENDERABLE_READY: KindRenderableReady,
	core.EVENT_CODE_SESSION_PAUSED:   KindSessionPaused,
	core.EVENT_CODE_SESSION_RESUMED:  KindSessionResumed,
}

// Entry is one journal row.
type Entry struct {
	ID        int64
	SessionID string
	Kind      Kind
	Target    string
	AnchorID  string
	Level     string
	Message   string
	Position  math.Vec3
	At        time.Time
}

type SessionInfo struct {
	ID        string
	Label     string
	StartedAt time.Time
	Entries   int
}

type Config struct {
	// Path of the sqlite file.
	Path string
	// Buffer is the capacity of the write queue. Entries beyond it are dropped.
	Buffer int
	Now    func() time.Time
}

// Journal persists anchor lifecycle and status events. Writes go through a
// bounded queue drained by a single writer goroutine so callers never block.
type Journal struct {
	db      *sql.DB
	now     func() time.Time
	queue   chan Entry
	done    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64

	// qmu guards closing the queue against concurrent Record calls.
	qmu    sync.RWMutex
	closed bool

	mu      sync.Mutex
	session string
	events  *core.EventSystem
}

func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.Path, err)
	}
	// A single connection keeps sqlite writes serialised.
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:    db,
		now:   cfg.Now,
		queue: make(chan Entry, cfg.Buffer),
		done:  make(chan struct{}),
	}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	go j.writer()
	core.LogDebug("journal opened at %s", cfg.Path)
	return j, nil
}

// BeginSession registers a run and makes it the session recorded entries
// belong to.
func (j *Journal) BeginSession(ctx context.Context, id, label string) error {
	j.qmu.RLock()
	closed := j.closed
	j.qmu.RUnlock()
	if closed {
		return ErrJournalClosed
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, label, started_at) VALUES (?, ?, ?)`,
		id, label, formatTime(j.now()))
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", id, err)
	}
	j.mu.Lock()
	j.session = id
	j.mu.Unlock()
	return nil
}

// Record queues an entry. It returns false when the entry was dropped.
func (j *Journal) Record(e Entry) bool {
	if e.SessionID == "" {
		j.mu.Lock()
		e.SessionID = j.session
		j.mu.Unlock()
	}
	if e.At.IsZero() {
		e.At = j.now()
	}
	j.qmu.RLock()
	defer j.qmu.RUnlock()
	if j.closed {
		return false
	}
	select {
	case j.queue <- e:
		return true
	default:
		if j.dropped.Add(1) == 1 {
			core.LogWarn("journal queue full, dropping entries")
		}
		return false
	}
}

// Subscribe records every engine event the journal knows about.
func (j *Journal) Subscribe(events *core.EventSystem) {
	j.mu.Lock()
	j.events = events
	j.mu.Unlock()
	for code := range kindByCode {
		events.Register(code, j, j.onEvent)
	}
}

func (j *Journal) onEvent(ctx core.EventContext) bool {
	e := Entry{Kind: kindByCode[ctx.Type]}
	switch data := ctx.Data.(type) {
	case core.Status:
		e.Target = data.Target
		e.Level = data.Level.String()
		e.Message = data.Message
		e.At = data.At
	case tracking.AnchorEvent:
		e.Target = data.Target
		e.AnchorID = data.AnchorID
		e.Position = data.Pose.Position
		if data.Err != nil {
			e.Level = core.StatusError.String()
			e.Message = data.Err.Error()
		} else if data.Empty {
			e.Message = "empty"
		}
	case error:
		e.Level = core.StatusError.String()
		e.Message = data.Error()
	case nil:
	default:
		e.Message = fmt.Sprint(data)
	}
	j.Record(e)
	// Other listeners still need to see the event.
	return false
}

func (j *Journal) writer() {
	defer close(j.done)
	for e := range j.queue {
		_, err := j.db.Exec(
			`INSERT INTO entries (session_id, kind, target, anchor_id, level, message, pos_x, pos_y, pos_z, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.SessionID, string(e.Kind), e.Target, e.AnchorID, e.Level, e.Message,
			e.Position.X, e.Position.Y, e.Position.Z, formatTime(e.At))
		if err != nil {
			core.LogError("failed to write journal entry %s: %v", e.Kind, err)
			continue
		}
		j.written.Add(1)
	}
}

// Entries returns the entries of one session, or of every session when id
// is empty, oldest first.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	query := `SELECT entry_id, session_id, kind, target, anchor_id, level, message, pos_x, pos_y, pos_z, at
		FROM entries`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY entry_id`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			at      string
			x, y, z float64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Target, &e.AnchorID, &e.Level, &e.Message, &x, &y, &z, &at); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Position = math.NewVec3(float32(x), float32(y), float32(z))
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.session_id, s.label, s.started_at, COUNT(e.entry_id)
		FROM sessions s LEFT JOIN entries e ON e.session_id = s.session_id
		GROUP BY s.session_id, s.label, s.started_at
		ORDER BY s.started_at, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			s  SessionInfo
			at string
		)
		if err := rows.Scan(&s.ID, &s.Label, &at, &s.Entries); err != nil {
			return nil, err
		}
		if s.StartedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Dropped is the number of entries lost to a full queue.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

func (j *Journal) Written() uint64 { return j.written.Load() }

// Close unsubscribes, flushes queued entries and closes the database.
func (j *Journal) Close() error {
	j.qmu.Lock()
	if j.closed {
		j.qmu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.qmu.Unlock()

	j.mu.Lock()
	events := j.events
	j.mu.Unlock()
	if events != nil {
		for code := range kindByCode {
			events.Unregister(code, j)
		}
	}
	<-j.done
	return j.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad journal timestamp %q: %w", s, err)
	}
	return t, nil
}
