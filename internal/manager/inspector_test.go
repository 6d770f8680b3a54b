package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/schema"
)

func ordersColumns() []schema.Column {
	return []schema.Column{
		{Name: "id", DeclaredType: "int(11)", Nullable: false, Key: "PRI"},
		{Name: "total", DeclaredType: "decimal(10,2)", Nullable: false},
		{Name: "placed_at", DeclaredType: "datetime", Nullable: true},
	}
}

func schemaFixture(t *testing.T) *testFixture {
	t.Helper()
	return newFixture(t, &fakeDriver{newConn: func() *fakeConn {
		return &fakeConn{
			tables:  []string{"orders", "customers"},
			columns: map[string][]schema.Column{"orders": ordersColumns()},
			indexes: map[string][]schema.Index{
				"orders": {{Name: "PRIMARY", Columns: []string{"id"}, Unique: true}},
			},
			rows: map[string][]map[string]interface{}{
				"orders": {{"id": int64(1), "total": "19.99"}},
			},
		}
	}})
}

func TestGetTableSchema(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	got, err := fx.manager.GetTableSchema(ctx, id, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Table)
	assert.Equal(t, ordersColumns(), got.Columns)
	require.Len(t, got.Indexes, 1)
	assert.Equal(t, "PRIMARY", got.Indexes[0].Name)
	assert.Equal(t, fx.clock.Now(), got.CapturedAt)
}

func TestGetTableSchemaCachedWithinTTL(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	first, err := fx.manager.GetTableSchema(ctx, id, "orders")
	require.NoError(t, err)

	fx.clock.Advance(fx.manager.cfg.Cache.SchemaTTL - time.Second)

	second, err := fx.manager.GetTableSchema(ctx, id, "orders")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	conn := fx.driver.lastOpened()
	require.NotNil(t, conn)
	assert.Equal(t, int32(1), conn.describeCalls.Load())
}

func TestGetTableSchemaRefreshesAfterTTL(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	_, err = fx.manager.GetTableSchema(ctx, id, "orders")
	require.NoError(t, err)

	fx.clock.Advance(fx.manager.cfg.Cache.SchemaTTL)

	refreshed, err := fx.manager.GetTableSchema(ctx, id, "orders")
	require.NoError(t, err)
	assert.Equal(t, fx.clock.Now(), refreshed.CapturedAt)

	conn := fx.driver.lastOpened()
	require.NotNil(t, conn)
	assert.Equal(t, int32(2), conn.describeCalls.Load())
}

func TestGetTableSchemaUnknownTable(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	_, err = fx.manager.GetTableSchema(ctx, id, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaFetchFailed))
	assert.Contains(t, err.Error(), "missing")
}

func TestUnregisterDropsCachedSchemas(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	_, err = fx.manager.GetTableSchema(ctx, id, "orders")
	require.NoError(t, err)

	_, ok := fx.manager.cache.get(cacheKey{connectionID: id, table: "orders"})
	require.True(t, ok)

	require.NoError(t, fx.manager.Unregister(ctx, id))

	_, ok = fx.manager.cache.get(cacheKey{connectionID: id, table: "orders"})
	assert.False(t, ok)
}

func TestPreviewTableData(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	rows, err := fx.manager.PreviewTableData(ctx, id, "orders", 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])

	conn := fx.driver.lastOpened()
	require.NotNil(t, conn)
	assert.Equal(t, int32(5), conn.lastLimit.Load())
}

func TestPreviewDefaultLimit(t *testing.T) {
	fx := schemaFixture(t)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	_, err = fx.manager.PreviewTableData(ctx, id, "orders", 0)
	require.NoError(t, err)

	conn := fx.driver.lastOpened()
	require.NotNil(t, conn)
	assert.Equal(t, int32(fx.manager.cfg.Import.DefaultPreviewLimit), conn.lastLimit.Load())
}
