package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed build record store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL,
		current_stage TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS build_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		line TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	CREATE INDEX IF NOT EXISTS idx_build_logs_build ON build_logs(build_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new build record with a generated id.
func (s *SQLiteStore) Create(ctx context.Context, cfg BuildConfig) (*BuildRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, derrors.StorageError("create", fmt.Errorf("marshal config: %w", err))
	}

	now := time.Now().UTC()
	rec := &BuildRecord{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    StatusStarted,
		Progress:  0,
		Logs:      []string{},
		StartedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO builds (id, config, status, progress, current_stage, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, string(configJSON), string(rec.Status), rec.Progress, rec.CurrentStage,
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, derrors.StorageError("create", err)
	}

	return rec, nil
}

// Update applies a partial patch and bumps updated_at in the same statement.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().UnixNano()}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *patch.Progress)
	}
	if patch.CurrentStage != nil {
		sets = append(sets, "current_stage = ?")
		args = append(args, *patch.CurrentStage)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE builds SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return derrors.StorageError("update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return derrors.NotFoundError("build").WithContext("id", id)
	}
	return nil
}

// AppendLog appends one line to the record's ordered log. AUTOINCREMENT
// sequence numbers preserve emission order.
func (s *SQLiteStore) AppendLog(ctx context.Context, id, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO build_logs (build_id, line) VALUES (?, ?)", id, line)
	if err != nil {
		return derrors.StorageError("append_log", err)
	}
	return nil
}

// Get returns the full record including its complete ordered log.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, config, status, progress, current_stage, started_at, updated_at FROM builds WHERE id = ?", id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, derrors.NotFoundError("build").WithContext("id", id)
	}
	if err != nil {
		return nil, derrors.StorageError("get", err)
	}

	logs, err := s.loadLogs(ctx, id)
	if err != nil {
		return nil, derrors.StorageError("get", err)
	}
	rec.Logs = logs
	return rec, nil
}

// List returns up to limit records ordered by start time descending, each
// with its logs attached.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, config, status, progress, current_stage, started_at, updated_at FROM builds ORDER BY started_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, derrors.StorageError("list", err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, derrors.StorageError("list", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, derrors.StorageError("list", err)
	}

	for i := range records {
		logs, err := s.loadLogs(ctx, records[i].ID)
		if err != nil {
			return nil, derrors.StorageError("list", err)
		}
		records[i].Logs = logs
	}
	return records, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadLogs(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT line FROM build_logs WHERE build_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		logs = append(logs, line)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*BuildRecord, error) {
	var rec BuildRecord
	var configJSON, status string
	var startedNS, updatedNS int64

	if err := row.Scan(&rec.ID, &configJSON, &status, &rec.Progress, &rec.CurrentStage, &startedNS, &updatedNS); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(configJSON), &rec.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	rec.Status = BuildRecordStatus(status)
	rec.StartedAt = time.Unix(0, startedNS).UTC()
	rec.UpdatedAt = time.Unix(0, updatedNS).UTC()
	return &rec, nil
}
