// ABOUTME: SQLite-backed Store using modernc.org/sqlite
// ABOUTME: Single-row blob persistence with WAL mode and corrupt fallback

package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the current snapshot in memory and mirrors every
// commit to a single SQLite row.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	watcher *watcher

	mu      sync.Mutex
	current Snapshot
}

// NewSQLite opens (or creates) the store at the given path. Parent
// directories are created if needed. A corrupt persisted blob is logged
// and replaced by the empty snapshot; it never fails the open.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "configstore")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers unblocked during commits.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		logger:  logger,
		watcher: newWatcher(logger),
	}

	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("config store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS app_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// load reads the persisted blob into memory. Absent means empty;
// corrupt means empty plus a warning.
func (s *SQLiteStore) load(ctx context.Context) error {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM app_state WHERE key = ?", storageKey).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.current = Snapshot{}
		return nil
	case err != nil:
		return fmt.Errorf("reading persisted config: %w", err)
	}

	snap, repaired, err := decodeBlob([]byte(blob))
	if err != nil {
		if errors.Is(err, ErrConfigCorrupt) {
			s.logger.Warn("persisted config corrupt, falling back to empty snapshot",
				"error", err)
			s.current = Snapshot{}
			return nil
		}
		return err
	}
	if repaired {
		s.logger.Info("repaired legacy navigation shape in persisted config")
	}
	s.current = snap
	return nil
}

// Get returns a copy of the current snapshot.
func (s *SQLiteStore) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Update applies fn to the current snapshot, persists the result, and
// notifies subscribers. The in-memory value only advances when
// persistence succeeds.
func (s *SQLiteStore) Update(ctx context.Context, fn Updater) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.current.Clone())

	blob, err := encodeBlob(next)
	if err != nil {
		return Snapshot{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		storageKey, string(blob), time.Now().Unix())
	if err != nil {
		return Snapshot{}, fmt.Errorf("persisting config: %w", err)
	}

	s.current = next
	s.watcher.publish(next)
	return next.Clone(), nil
}

// Subscribe registers for committed snapshots.
func (s *SQLiteStore) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	return s.watcher.subscribe(ctx)
}

// Unsubscribe removes a subscription.
func (s *SQLiteStore) Unsubscribe(id string) {
	s.watcher.unsubscribe(id)
}

// Close shuts down subscriptions and the database.
func (s *SQLiteStore) Close() error {
	s.watcher.close()
	return s.db.Close()
}
