package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatsync/internal/domain"
)

// SQLiteStore implements domain.SnapshotStore on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS history_cache (
			session_id     TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			body           TEXT NOT NULL,
			cached_at      TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS drafts (
			session_id     TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			text           TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads every cache entry and draft. Rows of another schema version,
// or that fail to decode, are skipped.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Drafts: map[string]string{}}

	rows, err := s.db.QueryContext(ctx, "SELECT session_id, body FROM history_cache ORDER BY cached_at")
	if err != nil {
		return nil, fmt.Errorf("%w: query caches: %w", domain.ErrSnapshotStore, err)
	}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan cache: %w", domain.ErrSnapshotStore, err)
		}
		c, err := DecodeCache([]byte(body))
		if err != nil {
			s.logger.Warn("persist: skipping cache row", "session", id, "error", err)
			continue
		}
		snap.Caches = append(snap.Caches, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: iterate caches: %w", domain.ErrSnapshotStore, err)
	}
	rows.Close()

	drows, err := s.db.QueryContext(ctx, "SELECT session_id, schema_version, text FROM drafts")
	if err != nil {
		return nil, fmt.Errorf("%w: query drafts: %w", domain.ErrSnapshotStore, err)
	}
	defer drows.Close()
	for drows.Next() {
		var id, text string
		var version int
		if err := drows.Scan(&id, &version, &text); err != nil {
			return nil, fmt.Errorf("%w: scan draft: %w", domain.ErrSnapshotStore, err)
		}
		if version != SchemaVersion {
			s.logger.Warn("persist: skipping draft row", "session", id, "error", ErrUnsupportedVersion)
			continue
		}
		snap.Drafts[id] = text
	}
	if err := drows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate drafts: %w", domain.ErrSnapshotStore, err)
	}
	return snap, nil
}

// Save replaces the stored snapshot in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *domain.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", domain.ErrSnapshotStore, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM history_cache"); err != nil {
		return fmt.Errorf("%w: clear caches: %w", domain.ErrSnapshotStore, err)
	}
	for _, c := range snap.Caches {
		body, encErr := EncodeCache(c)
		if encErr != nil {
			return fmt.Errorf("%w: encode %s: %w", domain.ErrSnapshotStore, c.SessionID, encErr)
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO history_cache (session_id, schema_version, body, cached_at) VALUES (?, ?, ?, ?)",
			c.SessionID, SchemaVersion, string(body), c.CachedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("%w: insert cache %s: %w", domain.ErrSnapshotStore, c.SessionID, err)
		}
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM drafts"); err != nil {
		return fmt.Errorf("%w: clear drafts: %w", domain.ErrSnapshotStore, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for id, text := range snap.Drafts {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO drafts (session_id, schema_version, text, updated_at) VALUES (?, ?, ?, ?)",
			id, SchemaVersion, text, now,
		); err != nil {
			return fmt.Errorf("%w: insert draft %s: %w", domain.ErrSnapshotStore, id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", domain.ErrSnapshotStore, err)
	}
	return nil
}

var _ domain.SnapshotStore = (*SQLiteStore)(nil)
