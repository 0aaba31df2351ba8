// Package gateway executes ad-hoc SQL against registered MySQL instances.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/adapters/mysql"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// DefaultMaxRows caps a query result when the caller doesn't specify a
// limit.
const DefaultMaxRows = 1000

// SQL type labels reported in execution results.
const (
	SQLTypeQuery    = "query"
	SQLTypeNonQuery = "non_query"
)

// AdapterFactory builds a fresh adapter per execution.
type AdapterFactory func(logger *slog.Logger) adapter.Adapter

// Request describes one SQL execution.
type Request struct {
	InstanceID int64  `json:"instanceId"`
	Database   string `json:"database"`
	SQL        string `json:"sql"`
	MaxRows    int    `json:"maxRows"`
	UserID     string `json:"-"`
}

// Result is the outcome of one SQL execution. Query statements populate
// Columns, Rows, RowCount and LimitedTo; everything else populates
// AffectedRows. The branch-specific counters are pointers so each
// response shape carries only its own fields, with zero values intact.
type Result struct {
	SQLType      string           `json:"sqlType"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     *int             `json:"rowCount,omitempty"`
	LimitedTo    int              `json:"limitedTo,omitempty"`
	AffectedRows *int64           `json:"affectedRows,omitempty"`
}

// Gateway resolves instances and runs single SQL statements over
// short-lived connections.
type Gateway struct {
	store   registry.Store
	factory AdapterFactory
	logger  *slog.Logger
}

// New creates a Gateway backed by the MySQL adapter.
func New(store registry.Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		store:   store,
		factory: func(l *slog.Logger) adapter.Adapter { return mysql.New(l) },
		logger:  logger,
	}
}

// NewWithFactory creates a Gateway with a custom adapter factory.
func NewWithFactory(store registry.Store, factory AdapterFactory, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{store: store, factory: factory, logger: logger}
}

// Execute validates the request, resolves the instance, and runs the
// statement. Multi-statement input is rejected before any connection is
// opened.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Result, error) {
	sqlText := strings.TrimSpace(req.SQL)
	if req.InstanceID <= 0 || sqlText == "" {
		return nil, core.Validationf("instanceId and sql are required")
	}
	if req.Database == "" {
		return nil, core.Validationf("database is required")
	}

	stmt, err := SingleStatement(sqlText)
	if err != nil {
		return nil, err
	}

	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	inst, err := g.store.GetInstance(ctx, req.InstanceID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !inst.IsMySQL() {
		return nil, core.ErrUnsupportedType
	}

	a := g.factory(g.logger)
	cfg := core.AdapterConfig{
		Host:     inst.Host,
		Port:     inst.Port,
		Database: req.Database,
		Username: inst.Username,
		Password: inst.Password,
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, core.Connectivityf(err, "failed to connect to instance %q", inst.Name)
	}
	defer func() { _ = a.Close() }()

	if IsQueryStatement(stmt) {
		return g.runQuery(ctx, a, stmt, maxRows)
	}
	return g.runNonQuery(ctx, a, stmt)
}

func (g *Gateway) runQuery(ctx context.Context, a adapter.Adapter, stmt string, maxRows int) (*Result, error) {
	rows, err := a.Query(ctx, stmt)
	if err != nil {
		return nil, core.Connectivityf(err, "failed to execute SQL")
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &Result{
		SQLType:   SQLTypeQuery,
		Columns:   columns,
		Rows:      []map[string]any{},
		LimitedTo: maxRows,
	}

	for len(result.Rows) < maxRows && rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	count := len(result.Rows)
	result.RowCount = &count
	return result, nil
}

func (g *Gateway) runNonQuery(ctx context.Context, a adapter.Adapter, stmt string) (*Result, error) {
	affected, err := a.ExecAffected(ctx, stmt)
	if err != nil {
		return nil, core.Connectivityf(err, "failed to execute SQL")
	}
	return &Result{SQLType: SQLTypeNonQuery, AffectedRows: &affected}, nil
}

// SingleStatement splits input on semicolons, drops empty fragments, and
// returns the statement only if exactly one remains. "SELECT 1;" is one
// statement; "SELECT 1; SELECT 2" is two.
func SingleStatement(sqlText string) (string, error) {
	var statements []string
	for _, part := range strings.Split(sqlText, ";") {
		if s := strings.TrimSpace(part); s != "" {
			statements = append(statements, s)
		}
	}
	if len(statements) != 1 {
		return "", core.Validationf("only a single SQL statement is allowed")
	}
	return statements[0], nil
}

// IsQueryStatement reports whether the statement returns a result set.
// The check mirrors the MySQL statements a console lets you read with:
// SELECT, SHOW, DESC, DESCRIBE and EXPLAIN.
func IsQueryStatement(stmt string) bool {
	s := strings.ToLower(strings.TrimSpace(stmt))
	for _, prefix := range []string{"select", "show", "desc", "describe", "explain"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// normalizeValue converts driver byte slices into strings so JSON output
// is readable text instead of base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
