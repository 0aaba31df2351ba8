// Package mysql provides a MySQL database adapter for DBDeck.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// DefaultTimeout bounds connect, read and write on every connection the
// adapter opens.
const DefaultTimeout = 10 * time.Second

// Adapter implements the adapter.Adapter interface for MySQL.
type Adapter struct {
	adapter.BaseSQLAdapter
	Timeout time.Duration
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
		Timeout:        DefaultTimeout,
	}
}

// Connect establishes a connection to MySQL and verifies it with a ping.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildMySQLDSN(cfg, a.Timeout)

	a.Logger.Debug("connecting to mysql", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// One connection per adapter; adapters are request-scoped.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping mysql: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildMySQLDSN constructs a go-sql-driver DSN:
// user:password@tcp(host:port)/database?params
func buildMySQLDSN(cfg adapter.Config, timeout time.Duration) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.Username, cfg.Password, host, port, cfg.Database)
	dsn += fmt.Sprintf("?charset=utf8mb4&parseTime=true&timeout=%s&readTimeout=%s&writeTimeout=%s",
		timeout, timeout, timeout)

	for k, v := range cfg.Options {
		dsn += fmt.Sprintf("&%s=%s", k, v)
	}

	return dsn
}

// GetTableMetadata retrieves column metadata for a table from
// information_schema, ordered by ordinal position.
func (a *Adapter) GetTableMetadata(ctx context.Context, database, table string) (*core.TableMetadata, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	query := `
		SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE,
			COLUMN_KEY,
			ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := a.DB.QueryContext(ctx, query, database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var col core.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Key, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", database, table)
	}

	// Estimated row count; non-fatal if missing.
	var rowCount sql.NullInt64
	countQuery := `SELECT TABLE_ROWS FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`
	if err := a.DB.QueryRowContext(ctx, countQuery, database, table).Scan(&rowCount); err != nil {
		rowCount = sql.NullInt64{}
	}

	return &core.TableMetadata{
		Database: database,
		Name:     table,
		Columns:  columns,
		RowCount: rowCount.Int64,
	}, nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
