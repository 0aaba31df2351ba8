// Package inspector browses the schema of registered MySQL instances:
// databases, tables, and per-table column metadata.
package inspector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/adapters/mysql"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// AdapterFactory builds a fresh adapter per introspection call.
// Injectable so tests can supply a mock-backed adapter.
type AdapterFactory func(logger *slog.Logger) adapter.Adapter

// Inspector resolves instances from the registry and introspects their
// schema over short-lived connections.
type Inspector struct {
	store   registry.Store
	factory AdapterFactory
	logger  *slog.Logger
}

// New creates an Inspector backed by the MySQL adapter.
func New(store registry.Store, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Inspector{
		store:   store,
		factory: func(l *slog.Logger) adapter.Adapter { return mysql.New(l) },
		logger:  logger,
	}
}

// NewWithFactory creates an Inspector with a custom adapter factory.
func NewWithFactory(store registry.Store, factory AdapterFactory, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Inspector{store: store, factory: factory, logger: logger}
}

// connect resolves the instance and opens a connection to it, optionally
// scoped to a database. The caller must Close the returned adapter.
func (i *Inspector) connect(ctx context.Context, instanceID int64, userID, database string) (adapter.Adapter, error) {
	inst, err := i.store.GetInstance(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}
	if !inst.IsMySQL() {
		return nil, core.ErrUnsupportedType
	}

	a := i.factory(i.logger)
	cfg := core.AdapterConfig{
		Host:     inst.Host,
		Port:     inst.Port,
		Database: database,
		Username: inst.Username,
		Password: inst.Password,
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, core.Connectivityf(err, "failed to connect to instance %q", inst.Name)
	}
	return a, nil
}

// ListDatabases returns the database names visible to the instance's
// credentials, sorted lexicographically.
func (i *Inspector) ListDatabases(ctx context.Context, instanceID int64, userID string) ([]string, error) {
	a, err := i.connect(ctx, instanceID, userID, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	return queryFirstColumn(ctx, a, "SHOW DATABASES")
}

// ListTables returns the table names of a database, sorted
// lexicographically.
func (i *Inspector) ListTables(ctx context.Context, instanceID int64, userID, database string) ([]string, error) {
	if database == "" {
		return nil, core.Validationf("database is required")
	}

	a, err := i.connect(ctx, instanceID, userID, database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	return queryFirstColumn(ctx, a, "SHOW TABLES")
}

// TableSchema returns column metadata and an estimated row count for a
// single table. The lookup is deliberately not scoped by user: the
// schema endpoint predates scoping and its callers rely on that.
func (i *Inspector) TableSchema(ctx context.Context, instanceID int64, database, table string) (*core.TableMetadata, error) {
	if database == "" {
		return nil, core.Validationf("database is required")
	}
	if table == "" {
		return nil, core.Validationf("table is required")
	}

	a, err := i.connect(ctx, instanceID, "", database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	return a.GetTableMetadata(ctx, database, table)
}

// queryFirstColumn runs a statement and collects the first column of
// every row. SHOW DATABASES and SHOW TABLES both report names in their
// first column regardless of the header MySQL picks.
func queryFirstColumn(ctx context.Context, a adapter.Adapter, stmt string) ([]string, error) {
	rows, err := a.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sort.Strings(names)
	return names, nil
}
