package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const instanceColumns = `id, name, host, port, username, password, db_type, status, user_id, created_at`

// scanInstance scans a single instance row.
func scanInstance(row interface{ Scan(dest ...any) error }) (*core.Instance, error) {
	inst := &core.Instance{}
	var dbType string
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.Host, &inst.Port,
		&inst.Username, &inst.Password, &dbType,
		&inst.Status, &inst.UserID, &inst.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inst.DBType = core.DBType(dbType)
	return inst, nil
}

// ListInstances returns all instances, optionally filtered by user scope.
func (s *SQLiteStore) ListInstances(ctx context.Context, userID string) ([]*core.Instance, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var instances []*core.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// GetInstance retrieves an instance by id within the user scope.
func (s *SQLiteStore) GetInstance(ctx context.Context, id int64, userID string) (*core.Instance, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = ?`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	inst, err := scanInstance(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("instance not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// GetInstanceByName retrieves an instance by display name within the user
// scope. Returns nil, nil when no record matches.
func (s *SQLiteStore) GetInstanceByName(ctx context.Context, name, userID string) (*core.Instance, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + instanceColumns + ` FROM instances WHERE name = ?`
	args := []any{name}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	inst, err := scanInstance(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance by name: %w", err)
	}
	return inst, nil
}

// CreateInstance persists a new instance and fills in its ID.
func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *core.Instance) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (name, host, port, username, password, db_type, status, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.Name, inst.Host, inst.Port, inst.Username, inst.Password,
		string(inst.DBType), inst.Status, inst.UserID, inst.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Validationf("instance name already exists")
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read new instance id: %w", err)
	}
	inst.ID = id
	return nil
}

// UpdateInstance persists all mutable fields of an existing instance.
func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *core.Instance) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE instances
		 SET name = ?, host = ?, port = ?, username = ?, password = ?, db_type = ?, status = ?
		 WHERE id = ?`,
		inst.Name, inst.Host, inst.Port, inst.Username, inst.Password,
		string(inst.DBType), inst.Status, inst.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Validationf("instance name already exists")
		}
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.NotFoundf("instance not found")
	}
	return nil
}

// DeleteInstance removes an instance by id within the user scope.
func (s *SQLiteStore) DeleteInstance(ctx context.Context, id int64, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	query := `DELETE FROM instances WHERE id = ?`
	args := []any{id}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return core.NotFoundf("instance not found")
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint failure.
// The service layer checks uniqueness up front; the index is the backstop
// against races between check and insert.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
