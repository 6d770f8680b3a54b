package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMySQLDriverDSN(t *testing.T) {
	driver := NewMySQLDriver(MySQLDriverConfig{ConnectTimeout: 10 * time.Second}, zap.NewNop())

	dsn := driver.dsn(ConnTarget{
		Host:     "db.internal",
		Port:     3306,
		Database: "shop",
		Username: "reader",
		Password: "s3cret",
	})

	assert.Contains(t, dsn, "reader:s3cret@tcp(db.internal:3306)/shop")
	assert.Contains(t, dsn, "timeout=10s")
	assert.Contains(t, dsn, "parseTime=true")
	// Reads are bounded per query, never at the socket level
	assert.NotContains(t, dsn, "readTimeout")
	assert.NotContains(t, dsn, "tls=")
}

func TestMySQLDriverDSNWithTLS(t *testing.T) {
	driver := NewMySQLDriver(MySQLDriverConfig{
		ConnectTimeout: 10 * time.Second,
		EnableTLS:      true,
	}, zap.NewNop())

	dsn := driver.dsn(ConnTarget{Host: "db.internal", Port: 3306, Database: "shop", Username: "reader"})
	assert.Contains(t, dsn, "tls=true")

	driver = NewMySQLDriver(MySQLDriverConfig{
		ConnectTimeout: 10 * time.Second,
		EnableTLS:      true,
		TLSSkipVerify:  true,
	}, zap.NewNop())

	dsn = driver.dsn(ConnTarget{Host: "db.internal", Port: 3306, Database: "shop", Username: "reader"})
	assert.Contains(t, dsn, "tls=skip-verify")
}

func TestIdentifierPattern(t *testing.T) {
	valid := []string{"orders", "order_items", "Orders2", "tmp$table", "_hidden"}
	for _, name := range valid {
		assert.True(t, identifierPattern.MatchString(name), "expected %q to be valid", name)
	}

	invalid := []string{"", "orders; DROP TABLE users", "orders`", "or ders", "orders-archive", "café"}
	for _, name := range invalid {
		assert.False(t, identifierPattern.MatchString(name), "expected %q to be rejected", name)
	}
}
