// Package server exposes the management API over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dbdeck-labs/dbdeck/internal/analyze"
	"github.com/dbdeck-labs/dbdeck/internal/gateway"
	"github.com/dbdeck-labs/dbdeck/internal/metrics"
	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// InstanceService is the registry surface the handlers need.
type InstanceService interface {
	List(ctx context.Context, userID string) ([]*core.Instance, error)
	Get(ctx context.Context, id int64, userID string) (*core.Instance, error)
	Create(ctx context.Context, p registry.CreateParams) (*core.Instance, error)
	Update(ctx context.Context, id int64, userID string, p registry.UpdateParams) (*core.Instance, error)
	Delete(ctx context.Context, id int64, userID string) error
}

// SchemaService browses databases, tables and table schemas.
type SchemaService interface {
	ListDatabases(ctx context.Context, instanceID int64, userID string) ([]string, error)
	ListTables(ctx context.Context, instanceID int64, userID, database string) ([]string, error)
	TableSchema(ctx context.Context, instanceID int64, database, table string) (*core.TableMetadata, error)
}

// SQLExecutor runs ad-hoc SQL statements.
type SQLExecutor interface {
	Execute(ctx context.Context, req gateway.Request) (*gateway.Result, error)
}

// SQLAnalyzer runs LLM-assisted SQL reviews.
type SQLAnalyzer interface {
	Analyze(ctx context.Context, req analyze.Request) (*analyze.Response, error)
}

// MetricsService builds instance metric summaries.
type MetricsService interface {
	Summary(ctx context.Context, instanceID int64, userID string) (*metrics.Summary, error)
}

// HealthChecker reports whether the metrics backend is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Server is the HTTP API server.
type Server struct {
	instances InstanceService
	schema    SchemaService
	executor  SQLExecutor
	analyzer  SQLAnalyzer
	metrics   MetricsService
	health    HealthChecker
	port      int
	logger    *slog.Logger
}

// Config holds the server's collaborators and listener settings.
type Config struct {
	Instances InstanceService
	Schema    SchemaService
	Executor  SQLExecutor
	Analyzer  SQLAnalyzer
	Metrics   MetricsService
	Health    HealthChecker
	Port      int
	Logger    *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		instances: cfg.Instances,
		schema:    cfg.Schema,
		executor:  cfg.Executor,
		analyzer:  cfg.Analyzer,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		port:      cfg.Port,
		logger:    logger,
	}
}

// Handler builds the chi router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/instances", func(r chi.Router) {
		r.Get("/", s.handleListInstances)
		r.Post("/", s.handleCreateInstance)

		r.Route("/{instanceID}", func(r chi.Router) {
			r.Get("/", s.handleGetInstance)
			r.Put("/", s.handleUpdateInstance)
			r.Delete("/", s.handleDeleteInstance)

			r.Get("/databases", s.handleListDatabases)
			r.Get("/databases/{database}/tables", s.handleListTables)
			r.Get("/databases/{database}/tables/{table}/schema", s.handleTableSchema)

			r.Get("/metrics/summary", s.handleMetricsSummary)
		})
	})

	r.Post("/sql/analyze", s.handleAnalyzeSQL)
	r.Post("/sql/execute", s.handleExecuteSQL)

	r.Get("/metrics/health", s.handleMetricsHealth)

	return r
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting API server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
