// Package probe verifies live connectivity to database endpoints before
// their credentials are persisted.
package probe

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	_ "github.com/go-sql-driver/mysql"   // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"   // PostgreSQL driver

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

// DefaultTimeout bounds a single connectivity probe.
const DefaultTimeout = 5 * time.Second

// Prober opens a short-lived connection per probe and pings the target.
type Prober struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Prober with the default timeout.
func New(logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Prober{timeout: DefaultTimeout, logger: logger}
}

// Validate probes the endpoint and returns whether it accepted the
// credentials, plus a message describing the outcome. The probe never
// keeps the connection: it pings and closes.
func (p *Prober) Validate(ctx context.Context, dbType core.DBType, host string, port int, username, password string) (bool, string) {
	driver, dsn, err := buildDSN(dbType, host, port, username, password, p.timeout)
	if err != nil {
		return false, err.Error()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return false, fmt.Sprintf("failed to open connection: %v", err)
	}
	defer func() { _ = db.Close() }()

	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		p.logger.Debug("connectivity probe failed",
			"dbType", string(dbType), "host", host, "port", port, "error", err)
		return false, fmt.Sprintf("connection failed: %v", err)
	}

	return true, "connection successful"
}

// buildDSN maps a database type to its driver name and DSN. Oracle has
// no pure-Go driver wired into this build and is rejected here rather
// than at ping time.
func buildDSN(dbType core.DBType, host string, port int, username, password string, timeout time.Duration) (driver, dsn string, err error) {
	switch dbType {
	case core.DBTypeMySQL:
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=%s&readTimeout=%s",
			username, password, host, port, timeout, timeout)
		return "mysql", dsn, nil

	case core.DBTypePostgreSQL:
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?connect_timeout=%d",
			url.QueryEscape(username), url.QueryEscape(password), host, port,
			int(timeout.Seconds()))
		return "pgx", dsn, nil

	case core.DBTypeSQLServer:
		dsn = fmt.Sprintf("sqlserver://%s:%s@%s:%d?dial+timeout=%d",
			url.QueryEscape(username), url.QueryEscape(password), host, port,
			int(timeout.Seconds()))
		return "sqlserver", dsn, nil

	case core.DBTypeOracle:
		return "", "", fmt.Errorf("%w: Oracle", core.ErrDriverUnavailable)

	default:
		return "", "", fmt.Errorf("unsupported database type: %s", dbType)
	}
}
