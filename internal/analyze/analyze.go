// Package analyze orchestrates LLM-assisted SQL review: it gathers
// execution context from the target instance, submits it with the SQL to
// the model, and degrades gracefully when the model cannot help.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dbdeck-labs/dbdeck/internal/gateway"
	"github.com/dbdeck-labs/dbdeck/internal/llm"
	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/adapters/mysql"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// Input length limits.
const (
	MaxSQLLength      = 10000
	MaxDatabaseLength = 64
)

var databaseNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ModelClient is the slice of the LLM client the analyzer needs.
type ModelClient interface {
	AnalyzeSQL(ctx context.Context, sql, contextSummary string) (*llm.AnalysisResult, error)
	RewriteSQL(ctx context.Context, sql, contextSummary string) (string, error)
}

// AdapterFactory builds a fresh adapter for context gathering.
type AdapterFactory func(logger *slog.Logger) adapter.Adapter

// Request describes one analysis call.
type Request struct {
	InstanceID int64  `json:"instanceId"`
	SQL        string `json:"sql"`
	Database   string `json:"database"`
	UserID     string `json:"-"`
}

// Response carries the model's findings. Nil fields serialize as JSON
// null, which the caller reads as "nothing to report".
type Response struct {
	Analysis     *string `json:"analysis"`
	RewrittenSQL *string `json:"rewrittenSql"`
}

// Service wires the registry, the context summarizer and the model
// client together.
type Service struct {
	store   registry.Store
	model   ModelClient
	factory AdapterFactory
	logger  *slog.Logger
}

// New creates an analysis service backed by the MySQL adapter.
func New(store registry.Store, model ModelClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:   store,
		model:   model,
		factory: func(l *slog.Logger) adapter.Adapter { return mysql.New(l) },
		logger:  logger,
	}
}

// NewWithFactory creates an analysis service with a custom adapter
// factory.
func NewWithFactory(store registry.Store, model ModelClient, factory AdapterFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, model: model, factory: factory, logger: logger}
}

// Analyze validates the request, builds the context summary, and asks
// the model for a review. If structured analysis fails for any reason it
// falls back to a rewrite-only call; if that fails too, both fields come
// back null.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	inst, err := s.store.GetInstance(ctx, req.InstanceID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !inst.IsMySQL() {
		return nil, core.ErrUnsupportedType
	}

	// Correlates the log lines of one analysis across context gathering
	// and model calls.
	analysisID := uuid.NewString()
	log := s.logger.With("analysisId", analysisID, "instanceId", inst.ID)

	summary := fmt.Sprintf("instance=%s (%s:%d), db_type=%s, database=%s",
		inst.Name, inst.Host, inst.Port, inst.DBType, req.Database)

	if extra, cerr := s.gatherContext(ctx, inst, req.Database, req.SQL); cerr != nil {
		// Context gathering is best-effort. Tell the model it is
		// working from base metadata only.
		log.Warn("context gathering failed", "error", cerr)
		summary += fmt.Sprintf("\ncontext generation failed: %v", cerr)
	} else if extra != "" {
		summary += "\n" + extra
	}

	result, err := s.model.AnalyzeSQL(ctx, req.SQL, summary)
	if err != nil {
		log.Warn("structured analysis failed, falling back to rewrite", "error", err)
		rewritten, rerr := s.model.RewriteSQL(ctx, req.SQL, summary)
		if rerr != nil {
			log.Warn("rewrite fallback failed", "error", rerr)
			return &Response{}, nil
		}
		return &Response{RewrittenSQL: optional(rewritten)}, nil
	}

	log.Info("analysis finished",
		"hasAnalysis", result.Analysis != "", "hasRewrite", result.RewrittenSQL != "")
	return &Response{
		Analysis:     optional(result.Analysis),
		RewrittenSQL: optional(result.RewrittenSQL),
	}, nil
}

// gatherContext connects to the target database and collects an EXPLAIN
// plan for query statements. Errors here never fail the analysis.
func (s *Service) gatherContext(ctx context.Context, inst *core.Instance, database, sqlText string) (string, error) {
	stmt, err := gateway.SingleStatement(sqlText)
	if err != nil {
		// Multi-statement input still gets a base-metadata analysis.
		return "", nil
	}
	if !isExplainable(stmt) {
		return "", nil
	}

	a := s.factory(s.logger)
	cfg := core.AdapterConfig{
		Host:     inst.Host,
		Port:     inst.Port,
		Database: database,
		Username: inst.Username,
		Password: inst.Password,
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = a.Close() }()

	rows, err := a.Query(ctx, "EXPLAIN "+stmt)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return formatRows("execution plan (EXPLAIN)", rows)
}

// isExplainable reports whether EXPLAIN accepts the statement.
func isExplainable(stmt string) bool {
	s := strings.ToLower(strings.TrimSpace(stmt))
	for _, prefix := range []string{"select", "insert", "update", "delete"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// formatRows renders a result set as a compact "col=value" listing that
// fits into a model prompt.
func formatRows(title string, rows *core.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("columns: %w", err)
	}

	var b strings.Builder
	b.WriteString(title + ":")

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("scan: %w", err)
		}

		b.WriteString("\n  ")
		for i, col := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s=%s", col, renderValue(values[i])))
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate: %w", err)
	}

	return b.String(), nil
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// validateRequest enforces the input constraints before touching the
// registry or the network.
func validateRequest(req *Request) error {
	if req.InstanceID <= 0 {
		return core.Validationf("instanceId must be a positive integer")
	}

	req.SQL = strings.TrimSpace(req.SQL)
	if req.SQL == "" {
		return core.Validationf("sql is required")
	}
	if len(req.SQL) > MaxSQLLength {
		return core.Validationf("sql must be at most %d characters", MaxSQLLength)
	}

	req.Database = strings.TrimSpace(req.Database)
	if req.Database == "" {
		return core.Validationf("database is required")
	}
	if len(req.Database) > MaxDatabaseLength {
		return core.Validationf("database must be at most %d characters", MaxDatabaseLength)
	}
	if !databaseNamePattern.MatchString(req.Database) {
		return core.Validationf("database may only contain letters, digits and underscores")
	}

	return nil
}

// optional maps "" to nil so empty model output serializes as null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
