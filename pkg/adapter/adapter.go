// Package adapter provides the database adapter contract used for
// connectivity probes, schema introspection and ad-hoc SQL execution.
//
// Concrete adapter implementations live in pkg/adapters/ subdirectories.
// Adapters are short-lived: every call site opens a fresh connection,
// uses it, and closes it. There is no pooling across requests.
package adapter

import (
	"context"

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Connect establishes a connection using the provided config and
	// verifies it with a ping.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// ExecAffected executes a SQL statement that doesn't return rows and
	// reports how many rows it changed.
	ExecAffected(ctx context.Context, sql string) (int64, error)

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*core.Rows, error)

	// GetTableMetadata retrieves schema metadata for a table.
	GetTableMetadata(ctx context.Context, database, table string) (*core.TableMetadata, error)
}
