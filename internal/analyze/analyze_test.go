package analyze

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeck-labs/dbdeck/internal/llm"
	"github.com/dbdeck-labs/dbdeck/internal/registry"
	"github.com/dbdeck-labs/dbdeck/pkg/adapter"
	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

type fakeModel struct {
	analyzeResult *llm.AnalysisResult
	analyzeErr    error
	rewriteResult string
	rewriteErr    error
	lastSummary   string
	rewriteCalls  int
}

func (f *fakeModel) AnalyzeSQL(_ context.Context, _, summary string) (*llm.AnalysisResult, error) {
	f.lastSummary = summary
	return f.analyzeResult, f.analyzeErr
}

func (f *fakeModel) RewriteSQL(_ context.Context, _, _ string) (string, error) {
	f.rewriteCalls++
	return f.rewriteResult, f.rewriteErr
}

type mockAdapter struct {
	adapter.BaseSQLAdapter
	connectErr error
}

func (m *mockAdapter) Connect(_ context.Context, _ adapter.Config) error {
	return m.connectErr
}

func (m *mockAdapter) GetTableMetadata(context.Context, string, string) (*core.TableMetadata, error) {
	return nil, nil
}

func newTestService(t *testing.T, model ModelClient) (*Service, sqlmock.Sqlmock, int64) {
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

	svc := NewWithFactory(store, model,
		func(*slog.Logger) adapter.Adapter { return ma }, nil)
	return svc, mock, inst.ID
}

func validRequest(id int64) Request {
	return Request{InstanceID: id, SQL: "SELECT * FROM orders", Database: "shop"}
}

func TestAnalyze(t *testing.T) {
	model := &fakeModel{analyzeResult: &llm.AnalysisResult{
		Analysis:     "full scan",
		RewrittenSQL: "SELECT id FROM orders",
	}}
	svc, mock, id := newTestService(t, model)

	mock.ExpectQuery("EXPLAIN SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "type", "rows"}).AddRow(1, "ALL", 50000))

	resp, err := svc.Analyze(context.Background(), validRequest(id))
	require.NoError(t, err)
	require.NotNil(t, resp.Analysis)
	assert.Equal(t, "full scan", *resp.Analysis)
	require.NotNil(t, resp.RewrittenSQL)
	assert.Equal(t, "SELECT id FROM orders", *resp.RewrittenSQL)

	// The summary carries both base metadata and the plan.
	assert.Contains(t, model.lastSummary, "instance=prod-mysql (db.internal:3306)")
	assert.Contains(t, model.lastSummary, "db_type=MySQL, database=shop")
	assert.Contains(t, model.lastSummary, "execution plan (EXPLAIN)")
	assert.Contains(t, model.lastSummary, "type=ALL")
}

func TestAnalyze_ContextFailureIsNotFatal(t *testing.T) {
	model := &fakeModel{analyzeResult: &llm.AnalysisResult{Analysis: "ok"}}
	svc, mock, id := newTestService(t, model)

	mock.ExpectQuery("EXPLAIN SELECT").
		WillReturnError(errors.New("table 'shop.orders' doesn't exist"))

	resp, err := svc.Analyze(context.Background(), validRequest(id))
	require.NoError(t, err)
	require.NotNil(t, resp.Analysis)
	assert.Contains(t, model.lastSummary, "context generation failed")
}

func TestAnalyze_FallbackToRewrite(t *testing.T) {
	model := &fakeModel{
		analyzeErr:    errors.New("model unavailable"),
		rewriteResult: "SELECT id FROM orders",
	}
	svc, mock, id := newTestService(t, model)

	mock.ExpectQuery("EXPLAIN SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1))

	resp, err := svc.Analyze(context.Background(), validRequest(id))
	require.NoError(t, err)
	assert.Nil(t, resp.Analysis)
	require.NotNil(t, resp.RewrittenSQL)
	assert.Equal(t, "SELECT id FROM orders", *resp.RewrittenSQL)
	assert.Equal(t, 1, model.rewriteCalls)
}

func TestAnalyze_AllModelCallsFail(t *testing.T) {
	model := &fakeModel{
		analyzeErr: llm.ErrDisabled,
		rewriteErr: llm.ErrDisabled,
	}
	svc, mock, id := newTestService(t, model)

	mock.ExpectQuery("EXPLAIN SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1))

	resp, err := svc.Analyze(context.Background(), validRequest(id))
	require.NoError(t, err)
	assert.Nil(t, resp.Analysis)
	assert.Nil(t, resp.RewrittenSQL)
}

func TestAnalyze_Validation(t *testing.T) {
	svc, _, id := newTestService(t, &fakeModel{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"bad instance id", Request{InstanceID: 0, SQL: "SELECT 1", Database: "shop"}},
		{"empty sql", Request{InstanceID: id, SQL: "  ", Database: "shop"}},
		{"sql too long", Request{InstanceID: id, SQL: strings.Repeat("x", 10001), Database: "shop"}},
		{"empty database", Request{InstanceID: id, SQL: "SELECT 1", Database: ""}},
		{"database too long", Request{InstanceID: id, SQL: "SELECT 1", Database: strings.Repeat("d", 65)}},
		{"database bad chars", Request{InstanceID: id, SQL: "SELECT 1", Database: "shop; DROP"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Analyze(ctx, tt.req)
			assert.True(t, core.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestAnalyze_InstanceScoping(t *testing.T) {
	svc, _, id := newTestService(t, &fakeModel{})

	req := validRequest(id)
	req.UserID = "someone-else"
	_, err := svc.Analyze(context.Background(), req)
	assert.True(t, core.IsNotFound(err))
}

func TestAnalyze_NonMySQLRejected(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeModel{})

	pg := &core.Instance{
		Name:     "warehouse",
		Host:     "pg.internal",
		Port:     5432,
		Username: "root",
		Password: "x",
		DBType:   core.DBTypePostgreSQL,
		Status:   core.StatusRunning,
	}
	require.NoError(t, svc.store.CreateInstance(context.Background(), pg))

	_, err := svc.Analyze(context.Background(), validRequest(pg.ID))
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}

func TestIsExplainable(t *testing.T) {
	assert.True(t, isExplainable("SELECT 1"))
	assert.True(t, isExplainable("  update t set x = 1"))
	assert.False(t, isExplainable("SHOW TABLES"))
	assert.False(t, isExplainable("CREATE TABLE t (id INT)"))
}
