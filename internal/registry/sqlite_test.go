package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbdeck-labs/dbdeck/pkg/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func testInstance(name, userID string) *core.Instance {
	return &core.Instance{
		Name:     name,
		Host:     "db.internal",
		Port:     3306,
		Username: "root",
		Password: "secret",
		DBType:   core.DBTypeMySQL,
		Status:   core.StatusRunning,
		UserID:   userID,
	}
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := testInstance("prod-mysql", "u1")
	require.NoError(t, store.CreateInstance(ctx, inst))
	assert.NotZero(t, inst.ID)
	assert.False(t, inst.CreatedAt.IsZero())

	got, err := store.GetInstance(ctx, inst.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "prod-mysql", got.Name)
	assert.Equal(t, core.DBTypeMySQL, got.DBType)
	assert.Equal(t, "secret", got.Password)
}

func TestSQLiteStore_GetScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := testInstance("prod-mysql", "u1")
	require.NoError(t, store.CreateInstance(ctx, inst))

	// Wrong user scope behaves like a missing record.
	_, err := store.GetInstance(ctx, inst.ID, "u2")
	assert.True(t, core.IsNotFound(err))

	// Unscoped lookup sees everything.
	got, err := store.GetInstance(ctx, inst.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestSQLiteStore_GetInstanceByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInstance(ctx, testInstance("alpha", "u1")))

	got, err := store.GetInstanceByName(ctx, "alpha", "u1")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Miss is nil, nil rather than an error.
	got, err = store.GetInstanceByName(ctx, "alpha", "u2")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetInstanceByName(ctx, "missing", "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_UniqueNamePerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInstance(ctx, testInstance("alpha", "u1")))

	// Same name in another user scope is allowed.
	require.NoError(t, store.CreateInstance(ctx, testInstance("alpha", "u2")))

	// Same name in the same scope violates the unique index.
	err := store.CreateInstance(ctx, testInstance("alpha", "u1"))
	assert.True(t, core.IsValidation(err))
}

func TestSQLiteStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInstance(ctx, testInstance("alpha", "u1")))
	require.NoError(t, store.CreateInstance(ctx, testInstance("beta", "u1")))
	require.NoError(t, store.CreateInstance(ctx, testInstance("gamma", "u2")))

	scoped, err := store.ListInstances(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, scoped, 2)

	all, err := store.ListInstances(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := testInstance("alpha", "u1")
	require.NoError(t, store.CreateInstance(ctx, inst))

	inst.Host = "replica.internal"
	inst.Port = 3307
	require.NoError(t, store.UpdateInstance(ctx, inst))

	got, err := store.GetInstance(ctx, inst.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "replica.internal", got.Host)
	assert.Equal(t, 3307, got.Port)

	missing := testInstance("ghost", "u1")
	missing.ID = 9999
	err = store.UpdateInstance(ctx, missing)
	assert.True(t, core.IsNotFound(err))
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := testInstance("alpha", "u1")
	require.NoError(t, store.CreateInstance(ctx, inst))

	// Deleting in the wrong scope leaves the record in place.
	err := store.DeleteInstance(ctx, inst.ID, "u2")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, store.DeleteInstance(ctx, inst.ID, "u1"))

	_, err = store.GetInstance(ctx, inst.ID, "u1")
	assert.True(t, core.IsNotFound(err))
}
