package manager

import (
	"context"

	"github.com/tablelink/tablelink/pkg/schema"
)

// ConnTarget identifies one external database endpoint with plaintext
// credentials. It only ever lives in memory.
type ConnTarget struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

// Driver opens physical database handles. The production implementation
// speaks MySQL; tests substitute function-hook doubles.
type Driver interface {
	// Probe opens a short-lived connection, verifies it and closes it.
	// Used to validate credentials before persisting them.
	Probe(ctx context.Context, target ConnTarget) error

	// Open constructs a bounded connection pool for the target and
	// verifies it with one get-and-release round-trip.
	Open(ctx context.Context, target ConnTarget, maxConns int) (Conn, error)
}

// Conn is a pooled physical connection handle bound to one connection
// record. All query methods suspend on the network and must be called with
// a deadline-carrying context.
type Conn interface {
	// Ping verifies the pool is alive.
	Ping(ctx context.Context) error

	// ListTables returns the table names of the connected database.
	ListTables(ctx context.Context) ([]string, error)

	// DescribeColumns returns column metadata for one table using
	// parameterized table-name binding.
	DescribeColumns(ctx context.Context, table string) ([]schema.Column, error)

	// ListIndexes returns index metadata for one table.
	ListIndexes(ctx context.Context, table string) ([]schema.Index, error)

	// Preview returns up to limit rows of the table.
	Preview(ctx context.Context, table string, limit int) ([]map[string]interface{}, error)

	// Close releases all pooled sockets.
	Close() error
}
