// Package core defines the domain types shared across DBDeck.
// It holds only data definitions and the error taxonomy; behavior lives
// in internal packages and pkg/adapter.
package core

import (
	"database/sql"
	"time"
)

// DBType enumerates the database engines an instance can be registered as.
type DBType string

const (
	DBTypeMySQL      DBType = "MySQL"
	DBTypePostgreSQL DBType = "PostgreSQL"
	DBTypeOracle     DBType = "Oracle"
	DBTypeSQLServer  DBType = "SQL Server"
)

// ValidDBType reports whether s is one of the supported database types.
func ValidDBType(s string) bool {
	switch DBType(s) {
	case DBTypeMySQL, DBTypePostgreSQL, DBTypeOracle, DBTypeSQLServer:
		return true
	}
	return false
}

// MaxNameLength is the maximum length of an instance display name.
const MaxNameLength = 100

// StatusRunning is the status recorded for an instance whose last
// connectivity probe succeeded. Registration requires a passing probe,
// so every persisted instance starts out running.
const StatusRunning = "running"

// Instance is a registered database instance.
//
// Name is unique within the owning user scope. Username and Password are
// opaque secrets; they are stored and returned verbatim (see DESIGN.md for
// the encryption-at-rest decision). UserID is an optional scoping key, not
// an authenticated principal.
type Instance struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	DBType    DBType    `json:"dbType"`
	Status    string    `json:"status"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsMySQL reports whether the instance supports introspection and execution.
func (i *Instance) IsMySQL() bool {
	return i.DBType == DBTypeMySQL
}

// AdapterConfig holds connection parameters for a database adapter.
type AdapterConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Options  map[string]string
}

// Column describes a column of a database table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"`
	Position int    `json:"position"`
}

// TableMetadata holds schema metadata for a single table.
type TableMetadata struct {
	Database string   `json:"database"`
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"rowCount"`
}

// Rows wraps sql.Rows so callers outside the adapter never deal with
// driver-specific row shapes.
type Rows struct {
	*sql.Rows
}

// MetricSample is an ephemeral metric reading, produced on demand and
// never persisted.
type MetricSample struct {
	Service string  `json:"service"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit,omitempty"`
}
