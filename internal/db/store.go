package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// maxPlaceholders is SQLite's default per-statement bound-parameter ceiling
// (spec §4.F / §8 invariant 7).
const maxPlaceholders = 999

// NodeRow mirrors one row of the nodes table (spec §6), plus the mtime/atime
// supplement (SPEC_FULL.md §3.1).
type NodeRow struct {
	Path       string `json:"path"`
	ParentPath string `json:"parent_path,omitempty"`
	Depth      int    `json:"depth"`
	Logical    int64  `json:"logical_size"`
	Allocated  int64  `json:"allocated_size"`
	FileCount  int64  `json:"file_count"`
	DirCount   int64  `json:"dir_count"`
	MTime      *int64 `json:"mtime,omitempty"`
	ATime      *int64 `json:"atime,omitempty"`
}

// FileRow mirrors one row of the files table (spec §6) plus mtime/atime.
type FileRow struct {
	Path       string `json:"path"`
	ParentPath string `json:"parent_path,omitempty"`
	Logical    int64  `json:"logical_size"`
	Allocated  int64  `json:"allocated_size"`
	MTime      *int64 `json:"mtime,omitempty"`
	ATime      *int64 `json:"atime,omitempty"`
}

// WarningRow mirrors one row of the warnings table (spec §6).
type WarningRow struct {
	Path, Code, Message string
	CreatedAt           time.Time
}

// ScanSummary is the subset of the scans table exposed to HTTP consumers.
type ScanSummary struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	RootPaths  []string   `json:"root_paths"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	TotalLogicalSize    *int64 `json:"total_logical_size,omitempty"`
	TotalAllocatedSize  *int64 `json:"total_allocated_size,omitempty"`
	DirCount            *int64 `json:"dir_count,omitempty"`
	FileCount           *int64 `json:"file_count,omitempty"`
	WarningCount        *int64 `json:"warning_count,omitempty"`
}

// Store is the Store Adapter (spec §4.F): owns the relational schema and
// the batched, placeholder-clamped insert operations the core uses. All
// inserts occur inside explicit transactions.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// CreateScan inserts a new scans row with status "running".
func (s *Store) CreateScan(ctx context.Context, id string, roots []string, options any, startedAt time.Time) error {
	rootsJSON, err := json.Marshal(roots)
	if err != nil {
		return fmt.Errorf("marshal root paths: %w", err)
	}
	optsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (id, status, root_paths, options, started_at)
		VALUES (?, 'running', ?, ?, ?)`,
		id, string(rootsJSON), string(optsJSON), startedAt.UTC().Format(time.RFC3339))
	return err
}

// FinalizeScan sets status, finished_at and the five totals atomically with
// the terminal status transition (spec §3 invariant).
func (s *Store) FinalizeScan(ctx context.Context, id, status string, totalLogical, totalAllocated, dirCount, fileCount, warningCount int64, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scans
		SET status = ?, finished_at = ?,
		    total_logical_size = ?, total_allocated_size = ?,
		    dir_count = ?, file_count = ?, warning_count = ?
		WHERE id = ?`,
		status, finishedAt.UTC().Format(time.RFC3339),
		totalLogical, totalAllocated, dirCount, fileCount, warningCount, id)
	return err
}

// DeleteScan removes a scan row; ON DELETE CASCADE foreign keys remove its
// nodes/files/warnings.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	return err
}

// GetScan returns one scan's summary row.
func (s *Store) GetScan(ctx context.Context, id string) (*ScanSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, root_paths, started_at, finished_at,
		       total_logical_size, total_allocated_size, dir_count, file_count, warning_count
		FROM scans WHERE id = ?`, id)
	return scanSummaryFromRow(row)
}

// ListScans returns scan summaries, most recent first, up to limit rows
// starting after offset.
func (s *Store) ListScans(ctx context.Context, limit, offset int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, root_paths, started_at, finished_at,
		       total_logical_size, total_allocated_size, dir_count, file_count, warning_count
		FROM scans ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanSummary
	for rows.Next() {
		sc, err := scanSummaryFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummaryFromRow(r scanner) (*ScanSummary, error) {
	var sc ScanSummary
	var rootsJSON, startedAt string
	var finishedAt sql.NullString
	if err := r.Scan(&sc.ID, &sc.Status, &rootsJSON, &startedAt, &finishedAt,
		&sc.TotalLogicalSize, &sc.TotalAllocatedSize, &sc.DirCount, &sc.FileCount, &sc.WarningCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rootsJSON), &sc.RootPaths); err != nil {
		return nil, fmt.Errorf("unmarshal root_paths: %w", err)
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	sc.StartedAt = t
	if finishedAt.Valid {
		ft, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		sc.FinishedAt = &ft
	}
	return &sc, nil
}

// ChildNodes returns the direct children (spec's parent_path index) of
// parentPath within a scan, ordered by allocated size descending.
func (s *Store) ChildNodes(ctx context.Context, scanID, parentPath string) ([]NodeRow, error) {
	// parent_path is NULL for root nodes; "x = NULL" never matches in SQL,
	// so an empty parentPath needs an explicit IS NULL clause instead.
	var (
		query string
		rows  *sql.Rows
		err   error
	)
	if parentPath == "" {
		query = `
			SELECT path, parent_path, depth, logical_size, allocated_size, file_count, dir_count
			FROM nodes WHERE scan_id = ? AND parent_path IS NULL
			ORDER BY allocated_size DESC`
		rows, err = s.db.QueryContext(ctx, query, scanID)
	} else {
		query = `
			SELECT path, parent_path, depth, logical_size, allocated_size, file_count, dir_count
			FROM nodes WHERE scan_id = ? AND parent_path = ?
			ORDER BY allocated_size DESC`
		rows, err = s.db.QueryContext(ctx, query, scanID, parentPath)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodeRows(rows)
}

// TopNodes returns the top limit directories by allocated size (spec's
// (scan_id, is_dir, allocated_size desc) index), starting after offset.
func (s *Store) TopNodes(ctx context.Context, scanID string, limit, offset int) ([]NodeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, parent_path, depth, logical_size, allocated_size, file_count, dir_count
		FROM nodes WHERE scan_id = ?
		ORDER BY allocated_size DESC LIMIT ? OFFSET ?`, scanID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodeRows(rows)
}

// TopFiles returns the top limit files by allocated size (spec's
// (scan_id, allocated_size desc) index on files), starting after offset.
func (s *Store) TopFiles(ctx context.Context, scanID string, limit, offset int) ([]FileRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, parent_path, logical_size, allocated_size
		FROM files WHERE scan_id = ?
		ORDER BY allocated_size DESC LIMIT ? OFFSET ?`, scanID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var fr FileRow
		var parent sql.NullString
		if err := rows.Scan(&fr.Path, &parent, &fr.Logical, &fr.Allocated); err != nil {
			return nil, err
		}
		fr.ParentPath = parent.String
		out = append(out, fr)
	}
	return out, rows.Err()
}

func scanNodeRows(rows *sql.Rows) ([]NodeRow, error) {
	var out []NodeRow
	for rows.Next() {
		var n NodeRow
		var parent sql.NullString
		if err := rows.Scan(&n.Path, &parent, &n.Depth, &n.Logical, &n.Allocated, &n.FileCount, &n.DirCount); err != nil {
			return nil, err
		}
		n.ParentPath = parent.String
		out = append(out, n)
	}
	return out, rows.Err()
}

const nodeBindsPerRow = 10

// InsertNodes writes rows in chunks honoring the placeholder ceiling, all
// within a single transaction (spec §4.E "variable-count clamp", §8
// invariant 7).
func (s *Store) InsertNodes(ctx context.Context, scanID string, rows []NodeRow) error {
	return insertChunked(ctx, s.db, rows, nodeBindsPerRow, func(tx *sql.Tx, chunk []NodeRow) error {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO nodes (scan_id, path, parent_path, depth, is_dir, logical_size, allocated_size, file_count, dir_count, mtime, atime) VALUES `)
		args := make([]any, 0, len(chunk)*nodeBindsPerRow)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,1,?,?,?,?,?,?)")
			args = append(args, scanID, r.Path, nullableString(r.ParentPath), r.Depth,
				r.Logical, r.Allocated, r.FileCount, r.DirCount, r.MTime, r.ATime)
		}
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

const fileBindsPerRow = 7

// InsertFiles writes rows in chunks honoring the placeholder ceiling.
func (s *Store) InsertFiles(ctx context.Context, scanID string, rows []FileRow) error {
	return insertChunked(ctx, s.db, rows, fileBindsPerRow, func(tx *sql.Tx, chunk []FileRow) error {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO files (scan_id, path, parent_path, logical_size, allocated_size, mtime, atime) VALUES `)
		args := make([]any, 0, len(chunk)*fileBindsPerRow)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?,?)")
			args = append(args, scanID, r.Path, nullableString(r.ParentPath), r.Logical, r.Allocated, r.MTime)
			args = append(args, r.ATime)
		}
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

const warningBindsPerRow = 5

// InsertWarnings writes rows in chunks honoring the placeholder ceiling.
func (s *Store) InsertWarnings(ctx context.Context, scanID string, rows []WarningRow) error {
	return insertChunked(ctx, s.db, rows, warningBindsPerRow, func(tx *sql.Tx, chunk []WarningRow) error {
		var sb strings.Builder
		sb.WriteString(`INSERT INTO warnings (scan_id, path, code, message, created_at) VALUES `)
		args := make([]any, 0, len(chunk)*warningBindsPerRow)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?)")
			args = append(args, scanID, r.Path, r.Code, r.Message, r.CreatedAt.UTC().Format(time.RFC3339))
		}
		_, err := tx.ExecContext(ctx, sb.String(), args...)
		return err
	})
}

// insertChunked splits rows into chunks of floor(maxPlaceholders/bindsPerRow)
// — computed from the schema, not a hard-coded constant (spec §9) — and
// issues each chunk's multi-row INSERT within one shared transaction.
func insertChunked[T any](ctx context.Context, conn *sql.DB, rows []T, bindsPerRow int, exec func(*sql.Tx, []T) error) error {
	if len(rows) == 0 {
		return nil
	}
	rowsPerChunk := maxPlaceholders / bindsPerRow
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(rows); i += rowsPerChunk {
		end := i + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := exec(tx, rows[i:end]); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
