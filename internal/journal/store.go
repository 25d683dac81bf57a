package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"

	_ "modernc.org/sqlite"
)

// Store persists entries to a SQLite database.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// OpenStore opens (creating if needed) the journal database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		logging.Get(logging.CategoryJournal).Error("Failed to ensure journal schema: %v", err)
		return nil, fmt.Errorf("failed to ensure journal schema: %w", err)
	}

	logging.Get(logging.CategoryJournal).Info("run journal store opened at %s", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stage_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		output TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stage_runs_run ON stage_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_stage_runs_agent ON stage_runs(agent);
	CREATE INDEX IF NOT EXISTS idx_stage_runs_created ON stage_runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts e. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	timer := logging.StartTimer(logging.CategoryJournal, "journal.Record")
	defer timer.Stop()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var output any
	if len(e.Output) > 0 {
		output = string(e.Output)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_runs (run_id, agent, outcome, error, duration_ms, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Agent, e.Outcome, e.Error, e.DurationMs, output,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s run %s: %w", e.Agent, e.RunID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
		SELECT run_id, agent, outcome, error, duration_ms, output, created_at
		FROM stage_runs ORDER BY id DESC LIMIT ?`, limit)
}

// Run returns every entry of one run in recording order.
func (s *Store) Run(ctx context.Context, runID string) ([]Entry, error) {
	return s.query(ctx, `
		SELECT run_id, agent, outcome, error, duration_ms, output, created_at
		FROM stage_runs WHERE run_id = ? ORDER BY id ASC`, runID)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			errText sql.NullString
			output  sql.NullString
			created string
		)
		if err := rows.Scan(&e.RunID, &e.Agent, &e.Outcome, &errText, &e.DurationMs, &output, &created); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Error = errText.String
		if output.Valid {
			e.Output = []byte(output.String)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
