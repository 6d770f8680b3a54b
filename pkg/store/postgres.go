package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/errors"
)

const createConnectionsTable = `
CREATE TABLE IF NOT EXISTS tablelink_connections (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	database_name TEXT NOT NULL,
	username TEXT NOT NULL,
	encrypted_password TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PostgresCredentialStore persists connection records in PostgreSQL.
type PostgresCredentialStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresCredentialStore connects to PostgreSQL and ensures the
// connections table exists.
func NewPostgresCredentialStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresCredentialStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create credential store pool")
	}

	if _, err := pool.Exec(ctx, createConnectionsTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to ensure connections table")
	}

	return &PostgresCredentialStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "credential_store")),
	}, nil
}

// Create persists a new connection record.
func (s *PostgresCredentialStore) Create(ctx context.Context, record ConnectionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tablelink_connections
			(id, name, host, port, database_name, username, encrypted_password, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Name, record.Host, record.Port,
		record.Database, record.Username, record.EncryptedPassword, record.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to persist connection record")
	}

	s.logger.Debug("connection record persisted", zap.String("id", record.ID))
	return nil
}

// Find returns the record with the given id.
func (s *PostgresCredentialStore) Find(ctx context.Context, id string) (ConnectionRecord, error) {
	var record ConnectionRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, host, port, database_name, username, encrypted_password, created_at
		 FROM tablelink_connections WHERE id = $1`, id).
		Scan(&record.ID, &record.Name, &record.Host, &record.Port,
			&record.Database, &record.Username, &record.EncryptedPassword, &record.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ConnectionRecord{}, errors.Newf(errors.ErrorTypeNotFound, "connection %s not found", id)
		}
		return ConnectionRecord{}, errors.Wrap(err, errors.ErrorTypeConnection, "failed to load connection record")
	}
	return record, nil
}

// Delete removes the record with the given id. Absent records are ignored.
func (s *PostgresCredentialStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tablelink_connections WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete connection record")
	}
	return nil
}

// List returns all persisted records.
func (s *PostgresCredentialStore) List(ctx context.Context) ([]ConnectionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, host, port, database_name, username, encrypted_password, created_at
		 FROM tablelink_connections ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list connection records")
	}
	defer rows.Close()

	var records []ConnectionRecord
	for rows.Next() {
		var record ConnectionRecord
		if err := rows.Scan(&record.ID, &record.Name, &record.Host, &record.Port,
			&record.Database, &record.Username, &record.EncryptedPassword, &record.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to scan connection record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read connection records")
	}

	return records, nil
}

// Ping verifies the store is reachable.
func (s *PostgresCredentialStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool.
func (s *PostgresCredentialStore) Close() {
	s.pool.Close()
}
