// Package checkpoint persists per-run phase completion records in a local
// SQLite database. The store is informational: resume decisions stay with
// the operator, who reads the last run's completed phases and re-runs the
// plan subset from there. MERGE semantics make re-running a completed phase
// safe, so the store never needs to be authoritative.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/graphmill/graphload/internal/types"
)

// RunStatus is the recorded outcome of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord describes one pipeline run.
type RunRecord struct {
	ID            string     `json:"id"`
	Manifest      string     `json:"manifest"`
	Database      string     `json:"database"`
	ServerVersion string     `json:"server_version"`
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// PhaseRecord describes one completed phase within a run.
type PhaseRecord struct {
	RunID       string    `json:"run_id"`
	PhaseID     int       `json:"phase_id"`
	Name        string    `json:"name"`
	Processed   int64     `json:"processed"`
	Failed      int64     `json:"failed"`
	Chunks      int       `json:"chunks"`
	Retries     int       `json:"retries"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store persists run and phase records.
type Store struct {
	conn *sql.DB
	path string
}

// Config holds store configuration options.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	WALMode     bool
}

// DefaultConfig returns sensible defaults for the store.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		WALMode:     true,
	}
}

// Open creates the store at the configured path, creating parent directories
// and the schema as needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.CHECKPOINT_OPEN_FAILED, "checkpoint path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, types.WrapError(types.CHECKPOINT_OPEN_FAILED, "failed to create checkpoint directory", err)
	}

	journal := "DELETE"
	if cfg.WALMode {
		journal = "WAL"
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=%s&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path, journal, cfg.BusyTimeout.Milliseconds())

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.CHECKPOINT_OPEN_FAILED, "failed to open checkpoint database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.CHECKPOINT_OPEN_FAILED, "failed to ping checkpoint database", err)
	}

	store := &Store{conn: conn, path: cfg.Path}
	if err := store.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	manifest       TEXT NOT NULL,
	database_name  TEXT NOT NULL DEFAULT '',
	server_version TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	started_at     TIMESTAMP NOT NULL,
	completed_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS phase_completions (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	phase_id     INTEGER NOT NULL,
	name         TEXT NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	chunks       INTEGER NOT NULL DEFAULT 0,
	retries      INTEGER NOT NULL DEFAULT 0,
	completed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, phase_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_manifest ON runs(manifest, started_at);
`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return types.WrapError(types.CHECKPOINT_OPEN_FAILED, "failed to create checkpoint schema", err)
	}
	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, run RunRecord) error {
	const query = `INSERT INTO runs (id, manifest, database_name, server_version, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.conn.ExecContext(ctx, query,
		run.ID, run.Manifest, run.Database, run.ServerVersion, string(RunStatusRunning), run.StartedAt.UTC())
	if err != nil {
		return types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to record run start", err)
	}
	return nil
}

// FinishRun records a run's terminal status.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus) error {
	const query = `UPDATE runs SET status = ?, completed_at = ? WHERE id = ?`
	res, err := s.conn.ExecContext(ctx, query, string(status), time.Now().UTC(), runID)
	if err != nil {
		return types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to record run finish", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewError(types.CHECKPOINT_WRITE_FAILED, fmt.Sprintf("no run with id %s", runID))
	}
	return nil
}

// RecordPhase records a completed phase. Re-recording the same phase within
// a run overwrites the earlier row; a re-run supersedes its counts.
func (s *Store) RecordPhase(ctx context.Context, rec PhaseRecord) error {
	const query = `INSERT INTO phase_completions (run_id, phase_id, name, processed, failed, chunks, retries, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, phase_id) DO UPDATE SET
			name = excluded.name,
			processed = excluded.processed,
			failed = excluded.failed,
			chunks = excluded.chunks,
			retries = excluded.retries,
			completed_at = excluded.completed_at`
	_, err := s.conn.ExecContext(ctx, query,
		rec.RunID, rec.PhaseID, rec.Name, rec.Processed, rec.Failed, rec.Chunks, rec.Retries, rec.CompletedAt.UTC())
	if err != nil {
		return types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to record phase completion", err)
	}
	return nil
}

// CompletedPhases returns the phases recorded for a run, ordered by phase id.
func (s *Store) CompletedPhases(ctx context.Context, runID string) ([]PhaseRecord, error) {
	const query = `SELECT run_id, phase_id, name, processed, failed, chunks, retries, completed_at
		FROM phase_completions WHERE run_id = ? ORDER BY phase_id`
	rows, err := s.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to query phase completions", err)
	}
	defer rows.Close()

	var records []PhaseRecord
	for rows.Next() {
		var rec PhaseRecord
		if err := rows.Scan(&rec.RunID, &rec.PhaseID, &rec.Name, &rec.Processed, &rec.Failed,
			&rec.Chunks, &rec.Retries, &rec.CompletedAt); err != nil {
			return nil, types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to scan phase completion", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LastRun returns the most recently started run for a manifest, or nil when
// the manifest has never been run.
func (s *Store) LastRun(ctx context.Context, manifest string) (*RunRecord, error) {
	const query = `SELECT id, manifest, database_name, server_version, status, started_at, completed_at
		FROM runs WHERE manifest = ? ORDER BY started_at DESC LIMIT 1`
	var run RunRecord
	var status string
	err := s.conn.QueryRowContext(ctx, query, manifest).Scan(
		&run.ID, &run.Manifest, &run.Database, &run.ServerVersion, &status, &run.StartedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.WrapError(types.CHECKPOINT_WRITE_FAILED, "failed to query last run", err)
	}
	run.Status = RunStatus(status)
	return &run, nil
}
