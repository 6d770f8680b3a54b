// Package config provides the unified configuration system for TableLink.
// It defines a single Config structure organized into logical sections:
//
//   - Pool: physical connection limits and per-operation timeouts
//   - Cache: schema metadata caching
//   - Import: bulk-import concurrency and preview limits
//   - Reaper: idle-handle sweeping
//   - Security: password encryption and TLS toggles
//   - Observability: logging, metrics, tracing
//   - Store: credential and collection store endpoints
//
// Example usage:
//
//	cfg := config.NewDefaultConfig()
//	cfg.Pool.MaxOpenConns = 20
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the single unified configuration structure.
type Config struct {
	// Pool controls physical connection pooling against external databases
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Cache controls schema metadata caching
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Import controls bulk table import
	Import ImportConfig `yaml:"import" json:"import"`

	// Reaper controls idle-handle sweeping
	Reaper ReaperConfig `yaml:"reaper" json:"reaper"`

	// Security configuration for password encryption and TLS
	Security SecurityConfig `yaml:"security" json:"security"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Store holds collaborator store endpoints
	Store StoreConfig `yaml:"store" json:"store"`
}

// PoolConfig contains connection pool limits and timeouts.
// Every database round-trip is bounded by one of these timeouts so an
// unbounded hang always converts into a timeout error.
type PoolConfig struct {
	// MaxOpenConns bounds concurrent physical connections per pool
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`
	// ConnectTimeout bounds probe and pool connection establishment
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// MetadataTimeout bounds schema and table-listing queries
	MetadataTimeout time.Duration `yaml:"metadata_timeout" json:"metadata_timeout"`
	// PreviewTimeout bounds data preview queries
	PreviewTimeout time.Duration `yaml:"preview_timeout" json:"preview_timeout"`
	// CloseTimeout bounds each pool close during shutdown
	CloseTimeout time.Duration `yaml:"close_timeout" json:"close_timeout"`
}

// CacheConfig contains schema cache settings.
type CacheConfig struct {
	// SchemaTTL is how long a cached table schema stays authoritative
	SchemaTTL time.Duration `yaml:"schema_ttl" json:"schema_ttl"`
}

// ImportConfig contains bulk-import settings.
type ImportConfig struct {
	// ChunkSize bounds concurrent single-table imports within a batch
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// DefaultPreviewLimit is the row limit when a preview request omits one
	DefaultPreviewLimit int `yaml:"default_preview_limit" json:"default_preview_limit"`
}

// ReaperConfig contains idle-handle sweep settings.
type ReaperConfig struct {
	// SweepInterval is how often the reaper scans for idle handles
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	// IdleThreshold is how long a handle may sit unused before closing
	IdleThreshold time.Duration `yaml:"idle_threshold" json:"idle_threshold"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// EncryptionKey is the key material for password encryption at rest
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	// EnableTLS requires TLS on external database connections
	EnableTLS bool `yaml:"enable_tls" json:"enable_tls"`
	// TLSSkipVerify disables certificate verification (insecure)
	TLSSkipVerify bool `yaml:"tls_skip_verify" json:"tls_skip_verify"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat selects the log encoding (json or console)
	LogFormat string `yaml:"log_format" json:"log_format"`
	// EnableMetrics activates prometheus metrics
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates span creation around service operations
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
}

// StoreConfig contains collaborator store endpoints.
type StoreConfig struct {
	// PostgresDSN is the credential store connection string
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
	// MongoURI is the collection metadata store connection string
	MongoURI string `yaml:"mongo_uri" json:"mongo_uri"`
	// MongoDatabase is the collection metadata store database name
	MongoDatabase string `yaml:"mongo_database" json:"mongo_database"`
}

// NewDefaultConfig creates a Config with production defaults. Environment
// variables supply the secrets that must not live in files: the encryption
// key (TABLELINK_ENCRYPTION_KEY) and the TLS toggle (TABLELINK_SSL).
func NewDefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			MaxOpenConns:    10,
			ConnectTimeout:  10 * time.Second,
			MetadataTimeout: 10 * time.Second,
			PreviewTimeout:  30 * time.Second,
			CloseTimeout:    5 * time.Second,
		},
		Cache: CacheConfig{
			SchemaTTL: 10 * time.Minute,
		},
		Import: ImportConfig{
			ChunkSize:           3,
			DefaultPreviewLimit: 10,
		},
		Reaper: ReaperConfig{
			SweepInterval: 30 * time.Minute,
			IdleThreshold: time.Hour,
		},
		Security: SecurityConfig{
			EncryptionKey: os.Getenv("TABLELINK_ENCRYPTION_KEY"),
			EnableTLS:     os.Getenv("TABLELINK_SSL") == "true",
			TLSSkipVerify: false,
		},
		Observability: ObservabilityConfig{
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			LogFormat:     getEnv("LOG_FORMAT", "json"),
			EnableMetrics: true,
			EnableTracing: false,
		},
		Store: StoreConfig{
			PostgresDSN:   os.Getenv("TABLELINK_POSTGRES_DSN"),
			MongoURI:      os.Getenv("TABLELINK_MONGO_URI"),
			MongoDatabase: getEnv("TABLELINK_MONGO_DATABASE", "tablelink"),
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Pool.MaxOpenConns <= 0 {
		return fmt.Errorf("pool.max_open_conns must be positive")
	}
	if c.Pool.ConnectTimeout <= 0 {
		return fmt.Errorf("pool.connect_timeout must be positive")
	}
	if c.Pool.MetadataTimeout <= 0 {
		return fmt.Errorf("pool.metadata_timeout must be positive")
	}
	if c.Pool.PreviewTimeout <= 0 {
		return fmt.Errorf("pool.preview_timeout must be positive")
	}
	if c.Pool.CloseTimeout <= 0 {
		return fmt.Errorf("pool.close_timeout must be positive")
	}
	if c.Cache.SchemaTTL <= 0 {
		return fmt.Errorf("cache.schema_ttl must be positive")
	}
	if c.Import.ChunkSize <= 0 {
		return fmt.Errorf("import.chunk_size must be positive")
	}
	if c.Import.DefaultPreviewLimit <= 0 {
		return fmt.Errorf("import.default_preview_limit must be positive")
	}
	if c.Reaper.SweepInterval <= 0 {
		return fmt.Errorf("reaper.sweep_interval must be positive")
	}
	if c.Reaper.IdleThreshold <= 0 {
		return fmt.Errorf("reaper.idle_threshold must be positive")
	}
	return nil
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
