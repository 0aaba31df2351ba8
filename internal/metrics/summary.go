package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/adapters/mysql"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// DefaultService is the exporter job label assumed for MySQL hosts.
const DefaultService = "mysqld"

// PromAPI is the slice of the Prometheus client the summary needs.
type PromAPI interface {
	CPUUsage(ctx context.Context, service string) *float64
	MemoryUsage(ctx context.Context, service string) *float64
	DiskUsageFor(ctx context.Context, service string) *DiskUsage
	QPS(ctx context.Context) *float64
	TPS(ctx context.Context) *float64
	P95LatencyMS(ctx context.Context) *float64
	DiskIOLatencyMS(ctx context.Context, deviceRegex string) *float64
	Healthy(ctx context.Context) bool
}

// AdapterFactory builds a fresh adapter for MySQL status collection.
type AdapterFactory func(logger *slog.Logger) adapter.Adapter

// SystemMetrics are host-level readings from node_exporter.
type SystemMetrics struct {
	CPUUsage    *float64   `json:"cpu_usage"`
	MemoryUsage *float64   `json:"memory_usage"`
	DiskUsage   *DiskUsage `json:"disk_usage"`
}

// MySQLStatus holds connection and lock counters read directly from the
// instance.
type MySQLStatus struct {
	ThreadsConnected      *int64   `json:"threads_connected"`
	ThreadsRunning        *int64   `json:"threads_running"`
	InnodbRowLockWaits    *int64   `json:"innodb_row_lock_waits"`
	InnodbRowLockTimeMS   *int64   `json:"innodb_row_lock_time_ms"`
	ConnectionPressurePct *float64 `json:"connection_pressure_pct"`
}

// PerfMetrics are throughput and latency readings from the exporters.
type PerfMetrics struct {
	QPS          *float64 `json:"qps"`
	TPS          *float64 `json:"tps"`
	P95LatencyMS *float64 `json:"p95_latency_ms"`
	IOLatencyMS  *float64 `json:"io_latency_ms"`
}

// Summary aggregates the read-only health indicators of one instance.
// Nil fields mean the underlying source was unavailable; a partial
// summary is still a valid summary.
type Summary struct {
	System      SystemMetrics `json:"system"`
	MySQL       MySQLStatus   `json:"mysql"`
	Perf        PerfMetrics   `json:"perf"`
	GeneratedAt int64         `json:"generated_at"`
}

// SummaryService builds instance metric summaries from Prometheus and
// the instance's own status counters.
type SummaryService struct {
	store   registry.Store
	prom    PromAPI
	factory AdapterFactory
	logger  *slog.Logger
}

// NewSummaryService creates a SummaryService backed by the MySQL adapter.
func NewSummaryService(store registry.Store, prom PromAPI, logger *slog.Logger) *SummaryService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SummaryService{
		store:   store,
		prom:    prom,
		factory: func(l *slog.Logger) adapter.Adapter { return mysql.New(l) },
		logger:  logger,
	}
}

// NewSummaryServiceWithFactory creates a SummaryService with a custom
// adapter factory.
func NewSummaryServiceWithFactory(store registry.Store, prom PromAPI, factory AdapterFactory, logger *slog.Logger) *SummaryService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SummaryService{store: store, prom: prom, factory: factory, logger: logger}
}

// Summary resolves the instance and gathers all available readings.
// Every source is best-effort; only a missing instance is an error.
func (s *SummaryService) Summary(ctx context.Context, instanceID int64, userID string) (*Summary, error) {
	inst, err := s.store.GetInstance(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{GeneratedAt: time.Now().Unix()}

	summary.System = SystemMetrics{
		CPUUsage:    s.prom.CPUUsage(ctx, DefaultService),
		MemoryUsage: s.prom.MemoryUsage(ctx, DefaultService),
		DiskUsage:   s.prom.DiskUsageFor(ctx, DefaultService),
	}

	summary.Perf = PerfMetrics{
		QPS:          s.prom.QPS(ctx),
		TPS:          s.prom.TPS(ctx),
		P95LatencyMS: s.prom.P95LatencyMS(ctx),
		IOLatencyMS:  s.prom.DiskIOLatencyMS(ctx, ".*"),
	}

	if inst.IsMySQL() {
		status, serr := s.collectMySQLStatus(ctx, inst)
		if serr != nil {
			s.logger.Info("mysql status collection failed",
				"instanceId", inst.ID, "error", serr)
		} else {
			summary.MySQL = *status
		}
	}

	return summary, nil
}

// collectMySQLStatus reads connection and lock counters straight from
// the instance with SHOW GLOBAL STATUS / SHOW VARIABLES.
func (s *SummaryService) collectMySQLStatus(ctx context.Context, inst *core.Instance) (*MySQLStatus, error) {
	a := s.factory(s.logger)
	cfg := core.AdapterConfig{
		Host:     inst.Host,
		Port:     inst.Port,
		Username: inst.Username,
		Password: inst.Password,
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	vars, err := queryNameValue(ctx, a,
		`SHOW GLOBAL STATUS WHERE Variable_name IN ('Threads_connected', 'Threads_running', 'Innodb_row_lock_waits', 'Innodb_row_lock_time')`)
	if err != nil {
		return nil, err
	}

	status := &MySQLStatus{
		ThreadsConnected:    parseCounter(vars["Threads_connected"]),
		ThreadsRunning:      parseCounter(vars["Threads_running"]),
		InnodbRowLockWaits:  parseCounter(vars["Innodb_row_lock_waits"]),
		InnodbRowLockTimeMS: parseCounter(vars["Innodb_row_lock_time"]),
	}

	limits, err := queryNameValue(ctx, a, `SHOW VARIABLES LIKE 'max_connections'`)
	if err != nil {
		return status, nil
	}
	if maxConn := parseCounter(limits["max_connections"]); maxConn != nil &&
		*maxConn > 0 && status.ThreadsConnected != nil {
		pct := float64(*status.ThreadsConnected) / float64(*maxConn) * 100
		status.ConnectionPressurePct = round2(&pct)
	}

	return status, nil
}

// queryNameValue runs a two-column (name, value) statement into a map.
func queryNameValue(ctx context.Context, a adapter.Adapter, stmt string) (map[string]string, error) {
	rows, err := a.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// parseCounter converts a status value to int64, nil when absent or
// non-numeric.
func parseCounter(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
