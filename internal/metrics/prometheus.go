// Package metrics polls a Prometheus server for system and MySQL
// performance indicators. Readings are ephemeral: queried on demand,
// never persisted.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Client queries a Prometheus server over its HTTP API. A missing or
// unreachable server degrades every reading to nil, never to an error
// surfaced to callers.
type Client struct {
	api     v1.API
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client for the given base URL. The URL must point at the
// API root, not at a dashboard deep link.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	apiClient, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &Client{
		api:     v1.NewAPI(apiClient),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// queryValue runs one instant query and returns the first sample's
// value. Empty results and NaN collapse to nil.
func (c *Client) queryValue(ctx context.Context, query string) *float64 {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, warnings, err := c.api.Query(ctx, query, time.Now())
	if err != nil {
		c.logger.Debug("prometheus query failed", "query", query, "error", err)
		return nil
	}
	if len(warnings) > 0 {
		c.logger.Debug("prometheus query warnings", "query", query, "warnings", warnings)
	}

	var v float64
	switch r := result.(type) {
	case model.Vector:
		if len(r) == 0 {
			return nil
		}
		v = float64(r[0].Value)
	case *model.Scalar:
		v = float64(r.Value)
	default:
		return nil
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// firstNonEmpty tries queries in order and returns the first usable
// value. Different exporter setups expose different metric names; the
// fallback chain papers over that.
func (c *Client) firstNonEmpty(ctx context.Context, queries []string) *float64 {
	for _, q := range queries {
		if v := c.queryValue(ctx, q); v != nil {
			return v
		}
	}
	return nil
}

// CPUUsage returns the CPU usage percentage of hosts matching the
// service name, or nil when the metric is unavailable.
func (c *Client) CPUUsage(ctx context.Context, service string) *float64 {
	q := fmt.Sprintf(
		`100 - (avg(irate(node_cpu_seconds_total{mode="idle",instance=~".*%s.*"}[5m])) * 100)`,
		service)
	return round2(c.queryValue(ctx, q))
}

// MemoryUsage returns the memory usage percentage, or nil.
func (c *Client) MemoryUsage(ctx context.Context, service string) *float64 {
	q := fmt.Sprintf(
		`(1 - (node_memory_MemAvailable_bytes{instance=~".*%s.*"} / node_memory_MemTotal_bytes{instance=~".*%s.*"})) * 100`,
		service, service)
	return round2(c.queryValue(ctx, q))
}

// DiskUsage describes filesystem consumption on the monitored host.
type DiskUsage struct {
	UsedGB         float64 `json:"used_gb"`
	TotalGB        float64 `json:"total_gb"`
	UsagePercent   float64 `json:"usage_percent"`
	StorageDisplay string  `json:"storage_display"`
}

// DiskUsageFor returns filesystem usage for hosts matching the service
// name, or nil when either side of the ratio is unavailable or the
// total is zero.
func (c *Client) DiskUsageFor(ctx context.Context, service string) *DiskUsage {
	usedQ := fmt.Sprintf(
		`node_filesystem_size_bytes{instance=~".*%s.*",fstype!="tmpfs"} - node_filesystem_free_bytes{instance=~".*%s.*",fstype!="tmpfs"}`,
		service, service)
	totalQ := fmt.Sprintf(
		`node_filesystem_size_bytes{instance=~".*%s.*",fstype!="tmpfs"}`, service)

	used := c.queryValue(ctx, usedQ)
	total := c.queryValue(ctx, totalQ)
	if used == nil || total == nil || *total == 0 {
		return nil
	}

	const gb = 1024 * 1024 * 1024
	usedGB := math.Round(*used/gb*10) / 10
	totalGB := math.Round(*total/gb*10) / 10
	return &DiskUsage{
		UsedGB:         usedGB,
		TotalGB:        totalGB,
		UsagePercent:   math.Round((*used / *total)*100*100) / 100,
		StorageDisplay: fmt.Sprintf("%gGB / %gGB", usedGB, totalGB),
	}
}

// QPS returns queries per second from mysqld exporter counters.
func (c *Client) QPS(ctx context.Context) *float64 {
	return round2(c.firstNonEmpty(ctx, []string{
		`sum(rate(mysql_global_status_queries[1m]))`,
		`sum(rate(mysql_global_status_questions[1m]))`,
		`sum(irate(mysql_global_status_queries[5m]))`,
		`sum(irate(mysql_global_status_questions[5m]))`,
	}))
}

// TPS returns transactions per second as commit plus rollback rates.
func (c *Client) TPS(ctx context.Context) *float64 {
	return round2(c.firstNonEmpty(ctx, []string{
		`sum(rate(mysql_global_status_com_commit[1m])) + sum(rate(mysql_global_status_com_rollback[1m]))`,
		`sum(irate(mysql_global_status_com_commit[5m])) + sum(irate(mysql_global_status_com_rollback[5m]))`,
	}))
}

// P95LatencyMS approximates the 95th percentile query latency in
// milliseconds from whichever latency histogram the exporter exposes.
func (c *Client) P95LatencyMS(ctx context.Context) *float64 {
	return round2(c.firstNonEmpty(ctx, []string{
		`1000 * histogram_quantile(0.95, sum(rate(mysql_info_schema_query_response_time_seconds_bucket[5m])) by (le))`,
		`1000 * histogram_quantile(0.95, sum(rate(mysql_perf_schema_events_statements_seconds_bucket[5m])) by (le))`,
	}))
}

// DiskIOLatencyMS returns the average disk I/O latency in ms per
// operation, weighted across devices. When per-direction time counters
// are missing it falls back to the combined io_time counter.
func (c *Client) DiskIOLatencyMS(ctx context.Context, deviceRegex string) *float64 {
	filter := ""
	if deviceRegex != "" && deviceRegex != ".*" {
		filter = fmt.Sprintf(`{device=~"%s"}`, deviceRegex)
	}

	readTime := fmt.Sprintf(`sum(rate(node_disk_read_time_seconds_total%s[5m]))`, filter)
	writeTime := fmt.Sprintf(`sum(rate(node_disk_write_time_seconds_total%s[5m]))`, filter)
	readOps := fmt.Sprintf(`sum(rate(node_disk_reads_completed_total%s[5m]))`, filter)
	writeOps := fmt.Sprintf(`sum(rate(node_disk_writes_completed_total%s[5m]))`, filter)

	combined := fmt.Sprintf(`1000 * ((%s) + (%s)) / ((%s) + (%s))`,
		readTime, writeTime, readOps, writeOps)
	if v := c.queryValue(ctx, combined); v != nil {
		return round2(v)
	}

	fallback := fmt.Sprintf(`1000 * (sum(rate(node_disk_io_time_seconds_total[5m]))) / ((%s) + (%s))`,
		readOps, writeOps)
	return round2(c.queryValue(ctx, fallback))
}

// Healthy reports whether the Prometheus server responds to a config
// status request.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.api.Config(ctx)
	if err != nil {
		c.logger.Debug("prometheus health check failed", "error", err)
		return false
	}
	return true
}

// round2 rounds to two decimals, passing nil through.
func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}
