package manager

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/schema"
)

// identifierPattern accepts the unquoted MySQL identifier alphabet. Preview
// targets must match it because identifiers cannot be bound as parameters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_$]+$`)

// MySQLDriverConfig controls physical connection establishment.
type MySQLDriverConfig struct {
	ConnectTimeout time.Duration
	EnableTLS      bool
	TLSSkipVerify  bool
}

// MySQLDriver opens MySQL handles through database/sql and the
// go-sql-driver/mysql driver.
type MySQLDriver struct {
	config MySQLDriverConfig
	logger *zap.Logger
}

// NewMySQLDriver creates a MySQL driver.
func NewMySQLDriver(config MySQLDriverConfig, logger *zap.Logger) *MySQLDriver {
	return &MySQLDriver{
		config: config,
		logger: logger.With(zap.String("component", "mysql_driver")),
	}
}

// dsn builds the driver DSN for a target.
func (d *MySQLDriver) dsn(target ConnTarget) string {
	cfg := mysql.NewConfig()
	cfg.User = target.Username
	cfg.Passwd = target.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", target.Host, target.Port)
	cfg.DBName = target.Database
	// No DSN-level read timeout: every query carries its own deadline, and
	// a socket-level cap sized for connects would cut previews short.
	cfg.Timeout = d.config.ConnectTimeout
	cfg.ParseTime = true
	if d.config.EnableTLS {
		if d.config.TLSSkipVerify {
			cfg.TLSConfig = "skip-verify"
		} else {
			cfg.TLSConfig = "true"
		}
	}
	return cfg.FormatDSN()
}

// Probe opens a short-lived connection, pings it and closes it.
func (d *MySQLDriver) Probe(ctx context.Context, target ConnTarget) error {
	db, err := sql.Open("mysql", d.dsn(target))
	if err != nil {
		return errors.Classify(err, "failed to open probe connection")
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			d.logger.Warn("probe close failed", zap.Error(closeErr))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.Classify(err, "connection probe failed")
	}
	return nil
}

// Open constructs a bounded pool and verifies it with one round-trip.
// database/sql queues callers rather than failing when the pool is
// exhausted, which matches the required queueing behavior.
func (d *MySQLDriver) Open(ctx context.Context, target ConnTarget, maxConns int) (Conn, error) {
	db, err := sql.Open("mysql", d.dsn(target))
	if err != nil {
		return nil, errors.Classify(err, "failed to open connection pool")
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, d.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Classify(err, "pool validation round-trip failed")
	}

	return &mysqlConn{db: db}, nil
}

// mysqlConn adapts *sql.DB to the Conn interface.
type mysqlConn struct {
	db *sql.DB
}

func (c *mysqlConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *mysqlConn) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT TABLE_NAME FROM information_schema.TABLES
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		 ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, errors.Classify(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Classify(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Classify(err, "failed to read table list")
	}
	return tables, nil
}

func (c *mysqlConn) DescribeColumns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT
		 FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, errors.Classify(err, "failed to describe columns")
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var (
			col        schema.Column
			isNullable string
			defaultVal sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.DeclaredType, &isNullable, &col.Key, &defaultVal); err != nil {
			return nil, errors.Classify(err, "failed to scan column metadata")
		}
		col.Nullable = strings.EqualFold(isNullable, "YES")
		if defaultVal.Valid {
			value := defaultVal.String
			col.Default = &value
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Classify(err, "failed to read column metadata")
	}
	return columns, nil
}

func (c *mysqlConn) ListIndexes(ctx context.Context, table string) ([]schema.Index, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE
		 FROM information_schema.STATISTICS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		 ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table)
	if err != nil {
		return nil, errors.Classify(err, "failed to list indexes")
	}
	defer rows.Close()

	byName := make(map[string]*schema.Index)
	var order []string
	for rows.Next() {
		var (
			indexName  string
			columnName string
			nonUnique  int
		)
		if err := rows.Scan(&indexName, &columnName, &nonUnique); err != nil {
			return nil, errors.Classify(err, "failed to scan index metadata")
		}
		idx, ok := byName[indexName]
		if !ok {
			idx = &schema.Index{Name: indexName, Unique: nonUnique == 0}
			byName[indexName] = idx
			order = append(order, indexName)
		}
		idx.Columns = append(idx.Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Classify(err, "failed to read index metadata")
	}

	indexes := make([]schema.Index, 0, len(order))
	for _, name := range order {
		indexes = append(indexes, *byName[name])
	}
	return indexes, nil
}

func (c *mysqlConn) Preview(ctx context.Context, table string, limit int) ([]map[string]interface{}, error) {
	// Identifiers cannot be bound as parameters; validate against the
	// identifier alphabet and backtick-quote instead.
	if !identifierPattern.MatchString(table) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "invalid table name %q", table)
	}

	query := fmt.Sprintf("SELECT * FROM `%s` LIMIT ?", table)
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Classify(err, "failed to preview table data")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Classify(err, "failed to read preview columns")
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]sql.RawBytes, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, errors.Classify(err, "failed to scan preview row")
		}

		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			if values[i] == nil {
				row[name] = nil
			} else {
				row[name] = string(values[i])
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Classify(err, "failed to read preview rows")
	}
	return result, nil
}

func (c *mysqlConn) Close() error {
	return c.db.Close()
}
