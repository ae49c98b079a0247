package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sniff-go/internal/archive"
	"sniff-go/internal/changes"
	"sniff-go/internal/database/migrations"
	"sniff-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements archive.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the index at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory index.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the index relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Changeset operations

const changesetColumns = `id, host_id, earliest_timestamp, recorded_at, entry_count, payload_size, encrypted,
	added, deleted, meta_only, entry_changed, grown, shrunk, size_delta`

func (s *SQLiteDatabase) CreateChangeset(record *model.ChangesetRecord, entries []model.ChangesetEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	sum := record.Summary
	_, err = tx.Exec(`INSERT INTO changesets (`+changesetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.HostID, record.EarliestTimestamp.String(), record.RecordedAt.UTC(),
		record.EntryCount, record.PayloadSize, record.Encrypted,
		sum.Added, sum.Deleted, sum.MetaOnlyChange, sum.EntryChange, sum.Grown, sum.Shrunk, sum.SizeDelta)
	if err != nil {
		return fmt.Errorf("inserting changeset: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO changeset_entries (changeset_id, path, kind) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.ChangesetID != record.ID {
			return fmt.Errorf("entry %s belongs to changeset %s, not %s", e.Path, e.ChangesetID, record.ID)
		}
		if _, err := stmt.Exec(e.ChangesetID, e.Path, e.Kind.String()); err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing changeset: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindChangeset(id string) (*model.ChangesetRecord, error) {
	row := s.db.QueryRow(`SELECT `+changesetColumns+` FROM changesets WHERE id = ?`, id)
	record, err := scanChangeset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding changeset: %w", err)
	}
	return record, nil
}

func (s *SQLiteDatabase) FindChangesetsByIDPrefix(prefix string) ([]*model.ChangesetRecord, error) {
	// GLOB is case-sensitive and only needs its metacharacters escaped.
	rows, err := s.db.Query(`SELECT `+changesetColumns+` FROM changesets
		WHERE id GLOB ? ORDER BY recorded_at DESC, id`, globEscape(prefix)+"*")
	if err != nil {
		return nil, fmt.Errorf("finding changesets by prefix: %w", err)
	}
	return collectChangesets(rows)
}

func (s *SQLiteDatabase) ListChangesets(limit int) ([]*model.ChangesetRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`SELECT `+changesetColumns+` FROM changesets
		ORDER BY recorded_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing changesets: %w", err)
	}
	return collectChangesets(rows)
}

func (s *SQLiteDatabase) FindEntriesForPath(path string) ([]*model.PathEntry, error) {
	rows, err := s.db.Query(`
		SELECT e.changeset_id, e.path, e.kind, c.earliest_timestamp, c.recorded_at
		FROM changeset_entries e
		JOIN changesets c ON c.id = e.changeset_id
		WHERE e.path = ?
		ORDER BY c.recorded_at DESC, c.id`, path)
	if err != nil {
		return nil, fmt.Errorf("finding entries for path: %w", err)
	}
	defer rows.Close()

	var result []*model.PathEntry
	for rows.Next() {
		var (
			e        model.PathEntry
			kind, ts string
		)
		if err := rows.Scan(&e.ChangesetID, &e.Path, &kind, &ts, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning path entry: %w", err)
		}
		if e.Kind, err = changes.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("path entry %s/%s: %w", e.ChangesetID, e.Path, err)
		}
		if e.EarliestTimestamp, err = changes.ParseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("path entry %s/%s: %w", e.ChangesetID, e.Path, err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading path entries: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChangeset(row scanner) (*model.ChangesetRecord, error) {
	var (
		r  model.ChangesetRecord
		ts string
	)
	err := row.Scan(&r.ID, &r.HostID, &ts, &r.RecordedAt, &r.EntryCount, &r.PayloadSize, &r.Encrypted,
		&r.Summary.Added, &r.Summary.Deleted, &r.Summary.MetaOnlyChange, &r.Summary.EntryChange,
		&r.Summary.Grown, &r.Summary.Shrunk, &r.Summary.SizeDelta)
	if err != nil {
		return nil, err
	}
	if r.EarliestTimestamp, err = changes.ParseTimestamp(ts); err != nil {
		return nil, fmt.Errorf("changeset %s: %w", r.ID, err)
	}
	return &r, nil
}

func collectChangesets(rows *sql.Rows) ([]*model.ChangesetRecord, error) {
	defer rows.Close()

	var result []*model.ChangesetRecord
	for rows.Next() {
		r, err := scanChangeset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning changeset: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading changesets: %w", err)
	}
	return result, nil
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*model.Operation, error) {
	op := &model.Operation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.Exec(`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	res, err := s.db.Exec(`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			finished sql.NullTime
		)
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = &finished.Time
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading operations: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	var id int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max operation id: %w", err)
	}
	return id, nil
}

// Maintenance

// Path returns the location the database was opened from.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Schema returns the CREATE statements of the index.
func (s *SQLiteDatabase) Schema() (string, error) {
	return migrations.Schema(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ archive.Database = (*SQLiteDatabase)(nil)
