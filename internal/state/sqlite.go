package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open connects to the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	s.logger.Debug("opened state store", slog.String("path", path))
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun inserts a run in the running state.
func (s *SQLiteStore) CreateRun(tasks []string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        uuid.New().String(),
		Tasks:     append([]string(nil), tasks...),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, tasks, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, strings.Join(run.Tasks, ","), string(run.Status), run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Debug("created run", slog.String("id", run.ID), slog.Any("tasks", run.Tasks))
	return run, nil
}

// CompleteRun marks a run as finished.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC().UnixMilli(), errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// RecordFiles stores the per-file outcomes of a run in one transaction.
func (s *SQLiteStore) RecordFiles(runID string, files []FileRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if len(files) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO file_results (run_id, task, source, output, status, hash, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, f := range files {
		if _, err := stmt.Exec(runID, f.Task, f.Source, f.Output, f.Status, nullString(f.Hash), nullString(f.Error)); err != nil {
			return fmt.Errorf("failed to record %s: %w", f.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file results: %w", err)
	}
	return nil
}

const runColumns = `
	r.id, r.tasks, r.status, r.started_at, r.completed_at, r.error,
	(SELECT COUNT(*) FROM file_results f WHERE f.run_id = r.id AND f.status = 'compiled'),
	(SELECT COUNT(*) FROM file_results f WHERE f.run_id = r.id AND f.status = 'unchanged'),
	(SELECT COUNT(*) FROM file_results f WHERE f.run_id = r.id AND f.status = 'failed')`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FilesForRun returns the file outcomes recorded for a run, ordered by task and source.
func (s *SQLiteStore) FilesForRun(runID string) ([]FileRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`
		SELECT run_id, task, source, output, status, hash, error
		FROM file_results WHERE run_id = ? ORDER BY task, source`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var hash, errMsg sql.NullString
		if err := rows.Scan(&f.RunID, &f.Task, &f.Source, &f.Output, &f.Status, &hash, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan file result: %w", err)
		}
		f.Hash = hash.String
		f.Error = errMsg.String
		files = append(files, f)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run         Run
		tasks       string
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &tasks, &status, &startedAt, &completedAt, &errMsg,
		&run.Compiled, &run.Unchanged, &run.Failed); err != nil {
		return nil, err
	}

	if tasks != "" {
		run.Tasks = strings.Split(tasks, ",")
	}
	run.Status = RunStatus(status)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
