package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catsync-go/internal/catsync"
	"catsync-go/internal/database/migrations"
	"catsync-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase keeps the local dataset, the safety snapshots and the
// operation history in one SQLite file.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, configured connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens a SQLite connection with foreign keys enabled.
// The pool is limited to a single connection: SQLite serializes writers
// anyway, and an in-memory database exists only on the connection that created it.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Domain store

func (s *SQLiteDatabase) Get(ctx context.Context, domain model.Domain) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM domains WHERE name = ?`, string(domain)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading domain %s: %w", domain, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *SQLiteDatabase) Put(ctx context.Context, domain model.Domain, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(domain), value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing domain %s: %w", domain, err)
	}
	return nil
}

func (s *SQLiteDatabase) Delete(ctx context.Context, domain model.Domain) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE name = ?`, string(domain)); err != nil {
		return fmt.Errorf("deleting domain %s: %w", domain, err)
	}
	return nil
}

// Safety snapshots

func (s *SQLiteDatabase) SaveSnapshot(ctx context.Context, snap *catsync.SafetySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO safety_snapshots (id, session_id, created_at) VALUES (?, ?, ?)`,
		snap.ID, snap.SessionID, snap.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("inserting safety snapshot: %w", err)
	}

	for domain, value := range snap.Domains {
		present := value != nil
		if value == nil {
			value = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO safety_snapshot_domains (snapshot_id, domain, present, value) VALUES (?, ?, ?, ?)`,
			snap.ID, string(domain), present, value); err != nil {
			return fmt.Errorf("inserting safety snapshot domain %s: %w", domain, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing safety snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetSnapshot(ctx context.Context, id string) (*catsync.SafetySnapshot, error) {
	snap := &catsync.SafetySnapshot{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at FROM safety_snapshots WHERE id = ?`, id).
		Scan(&snap.SessionID, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding safety snapshot: %w", err)
	}

	if snap.Domains, err = s.snapshotDomains(ctx, id); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteDatabase) snapshotDomains(ctx context.Context, id string) (map[model.Domain][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, present, value FROM safety_snapshot_domains WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("reading safety snapshot domains: %w", err)
	}
	defer rows.Close()

	domains := make(map[model.Domain][]byte)
	for rows.Next() {
		var name string
		var present bool
		var value []byte
		if err := rows.Scan(&name, &present, &value); err != nil {
			return nil, fmt.Errorf("scanning safety snapshot domain: %w", err)
		}
		switch {
		case !present:
			value = nil
		case value == nil:
			value = []byte{}
		}
		domains[model.Domain(name)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading safety snapshot domains: %w", err)
	}
	return domains, nil
}

func (s *SQLiteDatabase) ListSnapshots(ctx context.Context) ([]*catsync.SafetySnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at FROM safety_snapshots ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing safety snapshots: %w", err)
	}

	var snaps []*catsync.SafetySnapshot
	for rows.Next() {
		snap := &catsync.SafetySnapshot{}
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning safety snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing safety snapshots: %w", err)
	}
	// Close before the per-snapshot queries: the pool holds a single connection.
	rows.Close()

	for _, snap := range snaps {
		if snap.Domains, err = s.snapshotDomains(ctx, snap.ID); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

func (s *SQLiteDatabase) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM safety_snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting safety snapshot: %w", err)
	}
	return nil
}

// Operation history

// Operation is one recorded CLI command that changed local or remote state.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
}

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string) (*Operation, error) {
	op := &Operation{
		StartedAt:  time.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, operation, parameters, status
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op := &Operation{}
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ catsync.Store       = (*SQLiteDatabase)(nil)
	_ catsync.SafetyStore = (*SQLiteDatabase)(nil)
)
