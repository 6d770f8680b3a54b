package manager

import (
	"context"
	"sync"
	"time"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/metrics"
	"github.com/tablelink/tablelink/pkg/schema"
)

// cacheKey identifies one cached table schema.
type cacheKey struct {
	connectionID string
	table        string
}

// schemaCache holds table schemas with a TTL. Entries past the TTL are
// treated as absent. Two overlapping refreshes for the same key may race;
// last write wins since both reflect the same underlying schema.
type schemaCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]schema.TableSchema
	ttl     time.Duration
	now     func() time.Time
}

func newSchemaCache(ttl time.Duration, now func() time.Time) *schemaCache {
	return &schemaCache{
		entries: make(map[cacheKey]schema.TableSchema),
		ttl:     ttl,
		now:     now,
	}
}

// get returns a fresh entry or reports a miss.
func (c *schemaCache) get(key cacheKey) (schema.TableSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return schema.TableSchema{}, false
	}
	if c.now().Sub(entry.CapturedAt) >= c.ttl {
		return schema.TableSchema{}, false
	}
	return entry, true
}

func (c *schemaCache) put(key cacheKey, entry schema.TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// dropConnection removes all cached schemas for one connection id.
func (c *schemaCache) dropConnection(connectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.connectionID == connectionID {
			delete(c.entries, key)
		}
	}
}

// clear empties the cache.
func (c *schemaCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]schema.TableSchema)
}

// GetTableSchema returns column and index metadata for one table,
// cache-first. A fresh cached entry is authoritative and returned without a
// network round-trip; a miss or expiry triggers a bounded-time metadata
// refresh.
func (m *Manager) GetTableSchema(ctx context.Context, id, table string) (schema.TableSchema, error) {
	if m.draining.Load() {
		return schema.TableSchema{}, errShuttingDown()
	}

	key := cacheKey{connectionID: id, table: table}
	if cached, ok := m.cache.get(key); ok {
		metrics.SchemaCacheHits.Inc()
		return cached, nil
	}
	metrics.SchemaCacheMisses.Inc()

	conn, err := m.acquireConn(ctx, id)
	if err != nil {
		return schema.TableSchema{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, m.cfg.Pool.MetadataTimeout)
	defer cancel()

	columns, err := conn.DescribeColumns(queryCtx, table)
	if err != nil {
		return schema.TableSchema{}, err
	}
	if len(columns) == 0 {
		return schema.TableSchema{}, errors.Newf(errors.ErrorTypeSchemaFetchFailed, "table %s not found", table)
	}

	indexes, err := conn.ListIndexes(queryCtx, table)
	if err != nil {
		return schema.TableSchema{}, err
	}

	result := schema.TableSchema{
		Table:      table,
		Columns:    columns,
		Indexes:    indexes,
		CapturedAt: m.now(),
	}
	m.cache.put(key, result)

	return result, nil
}

// ListTables returns the table names of the connected database. Table lists
// change rarely but are cheap to query, so there is no caching.
func (m *Manager) ListTables(ctx context.Context, id string) ([]string, error) {
	if m.draining.Load() {
		return nil, errShuttingDown()
	}

	conn, err := m.acquireConn(ctx, id)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, m.cfg.Pool.MetadataTimeout)
	defer cancel()

	return conn.ListTables(queryCtx)
}

// PreviewTableData returns up to limit rows from the table. A non-positive
// limit falls back to the configured default.
func (m *Manager) PreviewTableData(ctx context.Context, id, table string, limit int) ([]map[string]interface{}, error) {
	if m.draining.Load() {
		return nil, errShuttingDown()
	}

	if limit <= 0 {
		limit = m.cfg.Import.DefaultPreviewLimit
	}

	conn, err := m.acquireConn(ctx, id)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, m.cfg.Pool.PreviewTimeout)
	defer cancel()

	return conn.Preview(queryCtx, table, limit)
}
