package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteStore implements Store over SQLite, following the same pragma and
// integrity-check pattern as the Graph Store (internal/graph.SQLiteStore)
// and, originally, the teacher's internal/store/sqlite_bm25.go: WAL mode,
// a single writer connection, and a startup integrity check that clears a
// corrupted database file rather than refusing to start.
type SQLiteStore struct {
	mu     sync.Mutex // writes are serialized per §4.10
	db     *sql.DB
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) a SQLite-backed metadata
// store at path. An empty path opens an in-memory store, for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		if err := validateIntegrity(path); err != nil {
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

CREATE TABLE IF NOT EXISTS files (
	id                       TEXT PRIMARY KEY,
	path                     TEXT NOT NULL UNIQUE,
	status                   TEXT NOT NULL,
	progress                 INTEGER NOT NULL DEFAULT 0,
	current_step             TEXT NOT NULL DEFAULT '',
	hash                     TEXT NOT NULL DEFAULT '',
	size                     INTEGER NOT NULL DEFAULT 0,
	retry_count              INTEGER NOT NULL DEFAULT 0,
	max_retries              INTEGER NOT NULL DEFAULT 3,
	error_message            TEXT NOT NULL DEFAULT '',
	chunks_count             INTEGER NOT NULL DEFAULT 0,
	nodes_count              INTEGER NOT NULL DEFAULT 0,
	relationships_count      INTEGER NOT NULL DEFAULT 0,
	processing_started_at    INTEGER,
	processing_completed_at  INTEGER,
	enqueued_at              INTEGER NOT NULL,
	next_eligible_at         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}

const fileColumns = `id, path, status, progress, current_step, hash, size, retry_count,
	max_retries, error_message, chunks_count, nodes_count, relationships_count,
	processing_started_at, processing_completed_at, enqueued_at, next_eligible_at`

// InsertFile inserts a new row. Re-inserting an existing id replaces it, so
// callers can re-enqueue without a separate existence check.
func (s *SQLiteStore) InsertFile(ctx context.Context, rec *FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, status = excluded.status, progress = excluded.progress,
			current_step = excluded.current_step, hash = excluded.hash, size = excluded.size,
			retry_count = excluded.retry_count, max_retries = excluded.max_retries,
			error_message = excluded.error_message, chunks_count = excluded.chunks_count,
			nodes_count = excluded.nodes_count, relationships_count = excluded.relationships_count,
			processing_started_at = excluded.processing_started_at,
			processing_completed_at = excluded.processing_completed_at,
			enqueued_at = excluded.enqueued_at,
			next_eligible_at = excluded.next_eligible_at
	`,
		rec.ID, rec.Path, string(rec.Status), rec.Progress, rec.CurrentStep, rec.Hash, rec.Size,
		rec.RetryCount, rec.MaxRetries, rec.ErrorMessage, rec.ChunksCount, rec.NodesCount,
		rec.RelationshipsCount, toUnixPtr(rec.ProcessingStartedAt), toUnixPtr(rec.ProcessingCompletedAt),
		rec.EnqueuedAt.Unix(), toUnixPtr(rec.NextEligibleAt),
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// UpdateFile applies patch's non-nil fields to fileID's row.
func (s *SQLiteStore) UpdateFile(ctx context.Context, fileID string, patch *Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	set, args := buildPatchSet(patch)
	if len(set) == 0 {
		return nil
	}
	args = append(args, fileID)

	query := "UPDATE files SET " + strings.Join(set, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file %s not found", fileID)
	}
	return nil
}

func buildPatchSet(p *Patch) ([]string, []interface{}) {
	var set []string
	var args []interface{}

	if p.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Progress != nil {
		set = append(set, "progress = ?")
		args = append(args, *p.Progress)
	}
	if p.CurrentStep != nil {
		set = append(set, "current_step = ?")
		args = append(args, *p.CurrentStep)
	}
	if p.Hash != nil {
		set = append(set, "hash = ?")
		args = append(args, *p.Hash)
	}
	if p.Size != nil {
		set = append(set, "size = ?")
		args = append(args, *p.Size)
	}
	if p.RetryCount != nil {
		set = append(set, "retry_count = ?")
		args = append(args, *p.RetryCount)
	}
	if p.MaxRetries != nil {
		set = append(set, "max_retries = ?")
		args = append(args, *p.MaxRetries)
	}
	if p.ErrorMessage != nil {
		set = append(set, "error_message = ?")
		args = append(args, *p.ErrorMessage)
	}
	if p.ChunksCount != nil {
		set = append(set, "chunks_count = ?")
		args = append(args, *p.ChunksCount)
	}
	if p.NodesCount != nil {
		set = append(set, "nodes_count = ?")
		args = append(args, *p.NodesCount)
	}
	if p.RelationshipsCount != nil {
		set = append(set, "relationships_count = ?")
		args = append(args, *p.RelationshipsCount)
	}
	if p.ProcessingStartedAt != nil {
		set = append(set, "processing_started_at = ?")
		args = append(args, p.ProcessingStartedAt.Unix())
	}
	if p.ProcessingCompletedAt != nil {
		set = append(set, "processing_completed_at = ?")
		args = append(args, p.ProcessingCompletedAt.Unix())
	}
	if p.NextEligibleAt != nil {
		set = append(set, "next_eligible_at = ?")
		args = append(args, p.NextEligibleAt.Unix())
	}
	return set, args
}

// GetFile returns one record, or an error if fileID is unknown.
func (s *SQLiteStore) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)
	rec, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("file %s not found", fileID)
		}
		return nil, err
	}
	return rec, nil
}

// GetFileByPath looks up a record by its workspace-relative path, the key
// the Workspace Scanner and Watcher address files by.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, path string) (*FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path)
	rec, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("file %s not found", path)
		}
		return nil, err
	}
	return rec, nil
}

// ListEligiblePending returns up to limit pending rows whose backoff
// window has elapsed, ordered oldest-enqueued first. limit <= 0 means
// unbounded.
func (s *SQLiteStore) ListEligiblePending(ctx context.Context, now time.Time, limit int) ([]*FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE status = ? AND (next_eligible_at IS NULL OR next_eligible_at <= ?)
		ORDER BY enqueued_at ASC`
	args := []interface{}{string(StatusPending), now.Unix()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list eligible pending: %w", err)
	}
	defer rows.Close()
	return scanFileRecords(rows)
}

// ClaimNextPending atomically claims the oldest eligible pending row.
// Safe under concurrent callers in this process because SQLiteStore holds
// a single writer connection and serializes all methods on s.mu; a second
// caller simply sees zero rows affected by its UPDATE and is told there is
// nothing to claim (defensive — it should not occur given the lock).
func (s *SQLiteStore) ClaimNextPending(ctx context.Context, now time.Time) (*FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM files
		WHERE status = ? AND (next_eligible_at IS NULL OR next_eligible_at <= ?)
		ORDER BY enqueued_at ASC LIMIT 1
	`, string(StatusPending), now.Unix()).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next pending: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE files SET status = ?, processing_started_at = ? WHERE id = ? AND status = ?
	`, string(StatusProcessing), now.Unix(), id, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanFileRecord(row)
}

// ListByStatus returns every record with the given status.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status Status) ([]*FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE status = ? ORDER BY enqueued_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return scanFileRecords(rows)
}

var allowedSortColumns = map[string]string{
	"path":       "path",
	"status":     "status",
	"progress":   "progress",
	"enqueuedAt": "enqueued_at",
	"updatedAt":  "processing_completed_at",
}

// List paginates the full file table.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*FileRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, fmt.Errorf("metadata store is closed")
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	sortCol, ok := allowedSortColumns[opts.SortBy]
	if !ok {
		sortCol = "enqueued_at"
	}
	order := "ASC"
	if strings.EqualFold(opts.SortOrder, "desc") {
		order = "DESC"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	offset := (page - 1) * limit
	query := fmt.Sprintf(`SELECT %s FROM files ORDER BY %s %s LIMIT ? OFFSET ?`, fileColumns, sortCol, order)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	recs, err := scanFileRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// Delete removes fileID's row.
func (s *SQLiteStore) Delete(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// ResetInFlightToPending resets every StatusProcessing row back to
// StatusPending, per §4.10's crash-recovery rule.
func (s *SQLiteStore) ResetInFlightToPending(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	res, err := s.db.ExecContext(ctx, `UPDATE files SET status = ? WHERE status = ?`,
		string(StatusPending), string(StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset in-flight files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanFileRecord(row scannable) (*FileRecord, error) {
	var rec FileRecord
	var status string
	var startedAt, completedAt, nextEligibleAt sql.NullInt64
	var enqueuedAt int64

	if err := row.Scan(
		&rec.ID, &rec.Path, &status, &rec.Progress, &rec.CurrentStep, &rec.Hash, &rec.Size,
		&rec.RetryCount, &rec.MaxRetries, &rec.ErrorMessage, &rec.ChunksCount, &rec.NodesCount,
		&rec.RelationshipsCount, &startedAt, &completedAt, &enqueuedAt, &nextEligibleAt,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.EnqueuedAt = time.Unix(enqueuedAt, 0).UTC()
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		rec.ProcessingStartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		rec.ProcessingCompletedAt = &t
	}
	if nextEligibleAt.Valid {
		t := time.Unix(nextEligibleAt.Int64, 0).UTC()
		rec.NextEligibleAt = &t
	}
	return &rec, nil
}

func scanFileRecords(rows *sql.Rows) ([]*FileRecord, error) {
	var recs []*FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func toUnixPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
