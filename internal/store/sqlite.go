package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"hivebrain/internal/logging"
)

// SQLiteOptions tunes the embedded backend.
type SQLiteOptions struct {
	// EnableWAL switches journaling to write-ahead log mode.
	EnableWAL bool
	// CacheSize is passed straight to PRAGMA cache_size; negative
	// values are KiB, positive values are pages. Zero keeps the
	// SQLite default.
	CacheSize int
}

// SQLiteBackend is the reference Backend: one file, WAL journaling,
// and brute-force similarity over the candidate window.
type SQLiteBackend struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	opts   SQLiteOptions
	closed bool
}

// NewSQLiteBackend creates an unopened backend for the given file.
// ":memory:" is accepted for tests.
func NewSQLiteBackend(path string, opts SQLiteOptions) *SQLiteBackend {
	return &SQLiteBackend{path: path, opts: opts}
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	user_message TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	embedding BLOB NOT NULL,
	timestamp TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_device ON memories(device_id);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);

CREATE TABLE IF NOT EXISTS knowledge (
	id TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	content TEXT NOT NULL,
	source TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	embedding BLOB NOT NULL,
	timestamp TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_device ON knowledge(device_id);
CREATE INDEX IF NOT EXISTS idx_knowledge_source ON knowledge(source);
CREATE INDEX IF NOT EXISTS idx_knowledge_created ON knowledge(created_at DESC);

CREATE TABLE IF NOT EXISTS devices (
	device_id TEXT PRIMARY KEY,
	hardware_tier TEXT NOT NULL,
	capabilities TEXT NOT NULL DEFAULT '[]',
	specialization TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	hostname TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	last_seen TEXT NOT NULL,
	status TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);

CREATE TABLE IF NOT EXISTS sync_operations (
	operation_id TEXT PRIMARY KEY,
	operation_type TEXT NOT NULL,
	item_type TEXT NOT NULL,
	item_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	data BLOB,
	resolved INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_pending ON sync_operations(device_id, resolved);

CREATE TABLE IF NOT EXISTS conversations (
	session_id TEXT PRIMARY KEY,
	chatbot_name TEXT NOT NULL,
	device_id TEXT NOT NULL,
	status TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status);
CREATE INDEX IF NOT EXISTS idx_conversations_device ON conversations(device_id);
`

// Initialize opens the database, applies pragmas, and creates the
// schema. Idempotent; a second call on an open backend is a no-op.
func (s *SQLiteBackend) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && !s.closed {
		return nil
	}

	log := logging.Get(logging.CategoryStore)

	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		log.Debugf("busy_timeout pragma failed: %v", err)
	}
	if s.opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			log.Debugf("journal_mode pragma failed: %v", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL"); err != nil {
			log.Debugf("synchronous pragma failed: %v", err)
		}
	}
	if s.opts.CacheSize != 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA cache_size = %d", s.opts.CacheSize)); err != nil {
			log.Debugf("cache_size pragma failed: %v", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("%w: creating schema: %v", ErrStorageFatal, err)
	}

	s.db = db
	s.closed = false
	log.Infow("sqlite backend initialized", "path", s.path, "wal", s.opts.EnableWAL)
	return nil
}

// Close releases the database handle. Subsequent operations fail with
// ErrNotInitialized until Initialize is called again.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || s.closed {
		return nil
	}
	err := s.db.Close()
	s.closed = true
	s.db = nil
	return err
}

// handle returns the open database or ErrNotInitialized. Callers hold
// no lock; database/sql serializes access on the single connection.
func (s *SQLiteBackend) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil || s.closed {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidArgument, s)
	}
	return t, nil
}
