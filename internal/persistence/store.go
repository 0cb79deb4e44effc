// Package persistence stores the project aggregate in SQLite: phases, work
// items with their dependency edges, and the append-only versioned outputs.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/epartner/engine/internal/domain"
	_ "modernc.org/sqlite"
)

// Store is the persistence capability handed to the workflows. It satisfies
// both schedule.Applier (via ApplyItem) and pipeline.Applier.
type Store interface {
	SavePhase(ctx context.Context, phase *domain.Phase) error
	LoadPhase(ctx context.Context, phaseID string) (*domain.Phase, error)
	ListPhases(ctx context.Context) ([]*domain.Phase, error)

	ApplyPhase(ctx context.Context, phase *domain.Phase) error
	ApplyItem(ctx context.Context, phaseID string, item *domain.WorkItem) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at the given path.
// Enables WAL mode, foreign keys, and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache lets
// multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite needs the PRAGMA, not a connection-string flag.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS phases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status INTEGER NOT NULL,
		tuning TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS work_items (
		id TEXT PRIMARY KEY,
		phase_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		status INTEGER NOT NULL,
		error TEXT,
		position INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (phase_id) REFERENCES phases(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS item_dependencies (
		item_id TEXT NOT NULL,
		depends_on_id TEXT NOT NULL,
		PRIMARY KEY (item_id, depends_on_id),
		FOREIGN KEY (item_id) REFERENCES work_items(id) ON DELETE CASCADE,
		FOREIGN KEY (depends_on_id) REFERENCES work_items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_item_dependencies_item ON item_dependencies(item_id);

	CREATE TABLE IF NOT EXISTS outputs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_kind TEXT NOT NULL CHECK (owner_kind IN ('phase', 'item')),
		owner_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		content TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (owner_kind, owner_id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_outputs_owner ON outputs(owner_kind, owner_id, version);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
