package state

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harrisonrobin/lifeops/pkg/schedule"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    committed_at INTEGER NOT NULL,
    body TEXT NOT NULL
);
`

// DefaultHistory is how many committed snapshots the SQLite store keeps.
const DefaultHistory = 10

// SQLiteStore keeps every commit as a row and loads the newest one. Older
// rows beyond History are pruned on commit.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	History int
	now     func() time.Time
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path, History: DefaultHistory, now: time.Now}, nil
}

func (s *SQLiteStore) Location() string { return "sqlite:" + s.path }

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (schedule.Snapshot, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoState, s.Location())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}

	snap, err := schedule.DecodeSnapshot(bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Location(), err)
	}
	return snap, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, snap schedule.Snapshot) error {
	var buf bytes.Buffer
	if err := schedule.EncodeSnapshot(&buf, snap); err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin state transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (committed_at, body) VALUES (?, ?)`,
		s.now().Unix(), buf.String())
	if err != nil {
		return fmt.Errorf("failed to insert state: %w", err)
	}

	if s.History > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read state row id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id <= ?`, id-int64(s.History)); err != nil {
			return fmt.Errorf("failed to prune state history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// Count returns how many snapshots are stored.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}
