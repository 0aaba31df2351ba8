package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

type mockAdapter struct {
	adapter.BaseSQLAdapter
	connects int
	lastCfg  adapter.Config
}

func (m *mockAdapter) Connect(_ context.Context, cfg adapter.Config) error {
	m.connects++
	m.lastCfg = cfg
	return nil
}

func (m *mockAdapter) GetTableMetadata(context.Context, string, string) (*core.TableMetadata, error) {
	return nil, nil
}

// Close is a no-op so the shared sqlmock DB survives the gateway's
// per-execution close and stays usable across Execute calls in one test.
func (m *mockAdapter) Close() error { return nil }

func newTestGateway(t *testing.T) (*Gateway, *mockAdapter, sqlmock.Sqlmock, int64) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ma := &mockAdapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db}}

	store := registry.NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate())

	inst := &core.Instance{
		Name:     "prod-mysql",
		Host:     "db.internal",
		Port:     3306,
		Username: "root",
		Password: "secret",
		DBType:   core.DBTypeMySQL,
		Status:   core.StatusRunning,
		UserID:   "u1",
	}
	require.NoError(t, store.CreateInstance(context.Background(), inst))

	gw := NewWithFactory(store,
		func(*slog.Logger) adapter.Adapter { return ma }, nil)
	return gw, ma, mock, inst.ID
}

func TestIsQueryStatement(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"SELECT 1", true},
		{"  select id from t", true},
		{"SHOW TABLES", true},
		{"DESC orders", true},
		{"DESCRIBE orders", true},
		{"EXPLAIN SELECT * FROM t", true},
		{"INSERT INTO t VALUES (1)", false},
		{"UPDATE t SET x = 1", false},
		{"DELETE FROM t", false},
		{"CREATE TABLE t (id INT)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsQueryStatement(tt.stmt), tt.stmt)
	}
}

func TestSingleStatement(t *testing.T) {
	stmt, err := SingleStatement("SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", stmt)

	// A trailing semicolon is still one statement.
	stmt, err = SingleStatement("SELECT 1;")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", stmt)

	stmt, err = SingleStatement("  SELECT 1 ; ; ")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", stmt)

	_, err = SingleStatement("SELECT 1; DROP TABLE t")
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
}

func TestExecute_Query(t *testing.T) {
	gw, ma, mock, id := newTestGateway(t)

	mock.ExpectQuery("SELECT id, name FROM customers").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "alice").AddRow(2, []byte("bob")))

	res, err := gw.Execute(context.Background(), Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "SELECT id, name FROM customers;",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLTypeQuery, res.SQLType)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	require.NotNil(t, res.RowCount)
	assert.Equal(t, 2, *res.RowCount)
	assert.Equal(t, DefaultMaxRows, res.LimitedTo)
	assert.Nil(t, res.AffectedRows)
	// Byte slices come back as strings.
	assert.Equal(t, "bob", res.Rows[1]["name"])
	assert.Equal(t, "shop", ma.lastCfg.Database)
}

func TestExecute_QueryRowLimit(t *testing.T) {
	gw, _, mock, id := newTestGateway(t)

	rows := sqlmock.NewRows([]string{"id"})
	for i := 1; i <= 5; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT id FROM t").WillReturnRows(rows)

	res, err := gw.Execute(context.Background(), Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "SELECT id FROM t",
		MaxRows:    3,
	})
	require.NoError(t, err)
	require.NotNil(t, res.RowCount)
	assert.Equal(t, 3, *res.RowCount)
	assert.Equal(t, 3, res.LimitedTo)
	assert.Len(t, res.Rows, 3)
}

func TestExecute_NonQuery(t *testing.T) {
	gw, _, mock, id := newTestGateway(t)

	mock.ExpectExec("UPDATE customers SET name").
		WillReturnResult(sqlmock.NewResult(0, 7))

	res, err := gw.Execute(context.Background(), Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "UPDATE customers SET name = 'x'",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLTypeNonQuery, res.SQLType)
	require.NotNil(t, res.AffectedRows)
	assert.Equal(t, int64(7), *res.AffectedRows)
	assert.Nil(t, res.RowCount)
	assert.Empty(t, res.Columns)
}

func TestResult_JSONShapes(t *testing.T) {
	gw, _, mock, id := newTestGateway(t)
	ctx := context.Background()

	// A zero-row query still reports rowCount and never affectedRows.
	mock.ExpectQuery("SELECT id FROM empty_t").WillReturnRows(
		sqlmock.NewRows([]string{"id"}))
	res, err := gw.Execute(ctx, Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "SELECT id FROM empty_t",
	})
	require.NoError(t, err)

	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"rowCount":0`)
	assert.NotContains(t, string(body), "affectedRows")

	// A non-query reports affectedRows and never rowCount.
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))
	res, err = gw.Execute(ctx, Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "DELETE FROM t",
	})
	require.NoError(t, err)

	body, err = json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"affectedRows":0`)
	assert.NotContains(t, string(body), "rowCount")
}

func TestExecute_MultiStatementRejectedBeforeConnect(t *testing.T) {
	gw, ma, _, id := newTestGateway(t)

	_, err := gw.Execute(context.Background(), Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "SELECT 1; DELETE FROM t",
	})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.Zero(t, ma.connects)
}

func TestExecute_MissingParams(t *testing.T) {
	gw, _, _, id := newTestGateway(t)
	ctx := context.Background()

	_, err := gw.Execute(ctx, Request{Database: "shop", SQL: "SELECT 1"})
	assert.True(t, core.IsValidation(err))

	_, err = gw.Execute(ctx, Request{InstanceID: id, Database: "shop"})
	assert.True(t, core.IsValidation(err))

	_, err = gw.Execute(ctx, Request{InstanceID: id, SQL: "SELECT 1"})
	assert.True(t, core.IsValidation(err))
}

func TestExecute_UserScoping(t *testing.T) {
	gw, _, mock, id := newTestGateway(t)

	_, err := gw.Execute(context.Background(), Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "SELECT 1",
		UserID:     "someone-else",
	})
	assert.True(t, core.IsNotFound(err))

	mock.ExpectQuery("SELECT 1").WillReturnRows(
		sqlmock.NewRows([]string{"1"}).AddRow(1))

	_, err = gw.Execute(context.Background(), Request{
		InstanceID: id,
		Database:   "shop",
		SQL:        "SELECT 1",
		UserID:     "u1",
	})
	require.NoError(t, err)
}

func TestExecute_NonMySQLRejected(t *testing.T) {
	gw, _, _, _ := newTestGateway(t)

	pg := &core.Instance{
		Name:     "warehouse",
		Host:     "pg.internal",
		Port:     5432,
		Username: "root",
		Password: "x",
		DBType:   core.DBTypePostgreSQL,
		Status:   core.StatusRunning,
	}
	require.NoError(t, gw.store.CreateInstance(context.Background(), pg))

	_, err := gw.Execute(context.Background(), Request{
		InstanceID: pg.ID,
		Database:   "shop",
		SQL:        "SELECT 1",
	})
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}
