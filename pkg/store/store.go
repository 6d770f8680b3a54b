// Package store defines the persistence collaborators the connection
// manager depends on: a credential store for connection records and a
// collection store for derived table metadata. The manager only ever sees
// these interfaces; concrete implementations are wired at startup.
package store

import (
	"context"
	"time"

	"github.com/tablelink/tablelink/pkg/schema"
)

// ConnectionRecord is the persisted form of one external database
// connection. The password is encrypted at rest; the plaintext only lives
// transiently inside the manager's in-memory registry.
type ConnectionRecord struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Host              string    `json:"host"`
	Port              int       `json:"port"`
	Database          string    `json:"database"`
	Username          string    `json:"username"`
	EncryptedPassword string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// CredentialStore is the durable repository of connection records. It is
// owned by the host's persistence layer; the manager treats it as a plain
// find/create/delete repository.
type CredentialStore interface {
	// Create persists a new connection record.
	Create(ctx context.Context, record ConnectionRecord) error

	// Find returns the record with the given id, or an error when absent.
	Find(ctx context.Context, id string) (ConnectionRecord, error)

	// Delete removes the record with the given id. Deleting an absent
	// record is not an error so retries after partial failures stay safe.
	Delete(ctx context.Context, id string) error

	// List returns all persisted records.
	List(ctx context.Context) ([]ConnectionRecord, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}

// CollectionStore is the host's metadata store that receives derived
// collections produced by table imports.
type CollectionStore interface {
	// Exists reports whether a collection with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Create writes a derived collection. Creating a duplicate name is an
	// error; callers check Exists first but the store must still reject
	// duplicates to stay safe under races.
	Create(ctx context.Context, collection schema.DerivedCollection) error
}
