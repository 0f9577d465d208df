// Package state persists uploaded files, their lineage graphs and cached
// merge results in SQLite.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// ErrNotFound is returned when a file or lineage does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore stores the file registry and lineage graphs.
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

// NewSQLiteStoreWithDB wraps an existing connection. The schema is not
// migrated.
func NewSQLiteStoreWithDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	s := NewSQLiteStore(logger)
	s.db = db
	return s
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := "file::memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
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
	// one connection keeps in-memory databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", "path", path)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema brings the schema up to the latest migration.
func (s *SQLiteStore) InitSchema() error {
	_, err := s.Migrate(context.Background())
	return err
}

// Path returns the database path given to Open.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) ready() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	return nil
}

func now() int64 {
	return time.Now().UTC().UnixNano()
}

// --- File registry ---

// SaveFile registers a file for userID or updates its name and dialect.
// New files are appended after the user's existing files; updates keep the
// original upload position.
func (s *SQLiteStore) SaveFile(ctx context.Context, userID string, file core.FileDescriptor) error {
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (user_id, file_id, filename, dialect, position, uploaded_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM files WHERE user_id = ?), ?)
		ON CONFLICT (user_id, file_id) DO UPDATE SET
			filename = excluded.filename,
			dialect = excluded.dialect`,
		userID, file.FileID, file.Filename, file.Dialect, userID, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save file %s: %w", file.FileID, err)
	}
	return nil
}

// GetContentHash returns the content hash recorded for a file, or "" when
// the file is unknown.
func (s *SQLiteStore) GetContentHash(ctx context.Context, userID, fileID string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}

	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM files WHERE user_id = ? AND file_id = ?`,
		userID, fileID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get content hash of %s: %w", fileID, err)
	}
	return hash, nil
}

// SetContentHash records the content hash of a registered file.
func (s *SQLiteStore) SetContentHash(ctx context.Context, userID, fileID, hash string) error {
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET content_hash = ? WHERE user_id = ? AND file_id = ?`,
		hash, userID, fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to set content hash of %s: %w", fileID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// AddLineageRef appends a lineage to a registered file.
func (s *SQLiteStore) AddLineageRef(ctx context.Context, userID, fileID, lineageID string) error {
	if err := s.ready(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lineages (lineage_id, user_id, file_id, position, created_at)
		SELECT ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM lineages WHERE user_id = ? AND file_id = ?), ?
		WHERE EXISTS (SELECT 1 FROM files WHERE user_id = ? AND file_id = ?)`,
		lineageID, userID, fileID, userID, fileID, now(), userID, fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to add lineage %s: %w", lineageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return nil
}

// ReplaceLineageRefs swaps all lineages of a file for lineageIDs and returns
// the IDs that were removed.
func (s *SQLiteStore) ReplaceLineageRefs(ctx context.Context, userID, fileID string, lineageIDs []string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE user_id = ? AND file_id = ?`, userID, fileID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %s: %w", fileID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}

	old, err := lineageIDsTx(ctx, tx, userID, fileID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM lineages WHERE user_id = ? AND file_id = ?`, userID, fileID); err != nil {
		return nil, fmt.Errorf("failed to clear lineages of %s: %w", fileID, err)
	}
	ts := now()
	for i, id := range lineageIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lineages (lineage_id, user_id, file_id, position, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, userID, fileID, i+1, ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add lineage %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lineage replacement: %w", err)
	}
	return old, nil
}

// DeleteFile removes a file and its lineage references and returns the
// lineage IDs that belonged to it.
func (s *SQLiteStore) DeleteFile(ctx context.Context, userID, fileID string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := lineageIDsTx(ctx, tx, userID, fileID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM lineages WHERE user_id = ? AND file_id = ?`, userID, fileID); err != nil {
		return nil, fmt.Errorf("failed to delete lineages of %s: %w", fileID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE user_id = ? AND file_id = ?`, userID, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit file deletion: %w", err)
	}
	return old, nil
}

func lineageIDsTx(ctx context.Context, tx *sql.Tx, userID, fileID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT lineage_id FROM lineages WHERE user_id = ? AND file_id = ? ORDER BY position`,
		userID, fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineages of %s: %w", fileID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lineage: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFiles returns the user's files in upload order, each with its
// lineage references in insertion order.
func (s *SQLiteStore) ListFiles(ctx context.Context, userID string) ([]core.FileDescriptor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.file_id, f.filename, f.dialect, l.lineage_id
		FROM files f
		LEFT JOIN lineages l ON l.user_id = f.user_id AND l.file_id = f.file_id
		WHERE f.user_id = ?
		ORDER BY f.position, l.position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := []core.FileDescriptor{}
	for rows.Next() {
		var (
			fileID, filename, dialect string
			lineageID                 sql.NullString
		)
		if err := rows.Scan(&fileID, &filename, &dialect, &lineageID); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}

		if len(files) == 0 || files[len(files)-1].FileID != fileID {
			files = append(files, core.FileDescriptor{
				FileID:   fileID,
				Filename: filename,
				Dialect:  dialect,
				Lineages: []core.LineageRef{},
			})
		}
		if lineageID.Valid {
			last := &files[len(files)-1]
			last.Lineages = append(last.Lineages, core.LineageRef{LineageID: lineageID.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}
	return files, nil
}

// GetFiles returns the named files in the given order. An unknown file ID
// yields ErrNotFound.
func (s *SQLiteStore) GetFiles(ctx context.Context, userID string, fileIDs []string) ([]core.FileDescriptor, error) {
	all, err := s.ListFiles(ctx, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.FileDescriptor, len(all))
	for _, f := range all {
		byID[f.FileID] = f
	}

	out := make([]core.FileDescriptor, 0, len(fileIDs))
	var missing []string
	for _, id := range fileIDs {
		f, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, f)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("files %s: %w", strings.Join(missing, ", "), ErrNotFound)
	}
	return out, nil
}

// --- Lineage graphs ---

// PutLineage stores the graph of one lineage.
func (s *SQLiteStore) PutLineage(ctx context.Context, userID, lineageID string, g core.LineageGraph) error {
	if err := s.ready(); err != nil {
		return err
	}

	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode lineage %s: %w", lineageID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lineage_graphs (user_id, lineage_id, graph, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, lineage_id) DO UPDATE SET graph = excluded.graph`,
		userID, lineageID, string(data), now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store lineage %s: %w", lineageID, err)
	}
	return nil
}

// FetchLineage loads the graph of one lineage.
func (s *SQLiteStore) FetchLineage(ctx context.Context, lineageID, userID string) (*core.LineageGraph, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT graph FROM lineage_graphs WHERE user_id = ? AND lineage_id = ?`,
		userID, lineageID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lineage %s: %w", lineageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage %s: %w", lineageID, err)
	}

	var g core.LineageGraph
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("failed to decode lineage %s: %w", lineageID, err)
	}
	return &g, nil
}

// DeleteLineages removes stored graphs. Unknown IDs are ignored.
func (s *SQLiteStore) DeleteLineages(ctx context.Context, userID string, lineageIDs []string) error {
	if err := s.ready(); err != nil {
		return err
	}

	for _, id := range lineageIDs {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM lineage_graphs WHERE user_id = ? AND lineage_id = ?`,
			userID, id,
		); err != nil {
			return fmt.Errorf("failed to delete lineage %s: %w", id, err)
		}
	}
	return nil
}
