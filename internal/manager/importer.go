package manager

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/metrics"
	"github.com/tablelink/tablelink/pkg/schema"
)

// ImportSuccess records one successfully imported table.
type ImportSuccess struct {
	TableName      string `json:"table_name"`
	CollectionName string `json:"collection_name"`
	FieldCount     int    `json:"field_count"`
}

// ImportFailure records one failed table import.
type ImportFailure struct {
	TableName string `json:"table_name"`
	Error     string `json:"error"`
}

// ImportOutcome aggregates one batch import run. It is built fresh per
// invocation and never persisted.
type ImportOutcome struct {
	Total      int             `json:"total"`
	Successful []ImportSuccess `json:"successful"`
	Failed     []ImportFailure `json:"failed"`
}

// ImportOne fetches a table's schema, maps its columns and writes the
// derived collection through the collection store. The three failure kinds
// stay distinct from connection-level errors so callers can decide whether
// to retry the whole table or just the write.
func (m *Manager) ImportOne(ctx context.Context, id, table, collectionName string) (schema.DerivedCollection, error) {
	if m.draining.Load() {
		return schema.DerivedCollection{}, errShuttingDown()
	}
	if collectionName == "" {
		collectionName = table
	}

	tableSchema, err := m.GetTableSchema(ctx, id, table)
	if err != nil {
		return schema.DerivedCollection{}, errors.Wrap(err, errors.ErrorTypeSchemaFetchFailed, "failed to fetch table schema")
	}

	exists, err := m.collections.Exists(ctx, collectionName)
	if err != nil {
		return schema.DerivedCollection{}, errors.Wrap(err, errors.ErrorTypeCollectionWriteFailed, "failed to check target collection")
	}
	if exists {
		return schema.DerivedCollection{}, errors.Newf(errors.ErrorTypeCollectionAlreadyExists, "collection %s already exists", collectionName)
	}

	collection := schema.DerivedCollection{
		Name:        collectionName,
		SourceTable: table,
		Fields:      schema.MapColumns(tableSchema.Columns),
	}

	if err := m.collections.Create(ctx, collection); err != nil {
		if errors.IsType(err, errors.ErrorTypeCollectionAlreadyExists) {
			return schema.DerivedCollection{}, err
		}
		return schema.DerivedCollection{}, errors.Wrap(err, errors.ErrorTypeCollectionWriteFailed, "failed to write derived collection")
	}

	m.logger.Info("table imported",
		zap.String("id", id),
		zap.String("table", table),
		zap.String("collection", collectionName),
		zap.Int("fields", len(collection.Fields)))

	return collection, nil
}

// ImportMany imports tables in chunks of at most ChunkSize, chunks
// sequential, tables within a chunk concurrent. Per-table failures are
// recorded in the outcome and never abort siblings or later chunks. The cap
// bounds load on both the external database and the collection store's
// write path. Once draining begins, no new chunks launch and the partial
// outcome is returned.
func (m *Manager) ImportMany(ctx context.Context, id string, tables []string) (ImportOutcome, error) {
	if m.draining.Load() {
		return ImportOutcome{}, errShuttingDown()
	}

	outcome := ImportOutcome{Total: len(tables)}
	chunkSize := m.cfg.Import.ChunkSize

	var mu sync.Mutex
	for start := 0; start < len(tables); start += chunkSize {
		if m.draining.Load() {
			m.logger.Warn("import interrupted by shutdown, returning partial outcome",
				zap.String("id", id),
				zap.Int("completed", len(outcome.Successful)+len(outcome.Failed)),
				zap.Int("total", outcome.Total))
			break
		}

		end := start + chunkSize
		if end > len(tables) {
			end = len(tables)
		}

		var wg sync.WaitGroup
		for _, table := range tables[start:end] {
			wg.Add(1)
			go func(table string) {
				defer wg.Done()

				collection, err := m.ImportOne(ctx, id, table, table)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					outcome.Failed = append(outcome.Failed, ImportFailure{
						TableName: table,
						Error:     err.Error(),
					})
					metrics.ImportedTables.WithLabelValues("failure").Inc()
					return
				}
				outcome.Successful = append(outcome.Successful, ImportSuccess{
					TableName:      table,
					CollectionName: collection.Name,
					FieldCount:     len(collection.Fields),
				})
				metrics.ImportedTables.WithLabelValues("success").Inc()
			}(table)
		}
		wg.Wait()
	}

	m.logger.Info("batch import finished",
		zap.String("id", id),
		zap.Int("total", outcome.Total),
		zap.Int("succeeded", len(outcome.Successful)),
		zap.Int("failed", len(outcome.Failed)))

	return outcome, nil
}
