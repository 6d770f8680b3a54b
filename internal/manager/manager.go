// Package manager implements the connection lifecycle core: the registry of
// named external-database credentials, lazy pool materialization, TTL-cached
// schema inspection, bounded-concurrency bulk import, idle reaping and
// coordinated shutdown.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/config"
	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/metrics"
	"github.com/tablelink/tablelink/pkg/secret"
	"github.com/tablelink/tablelink/pkg/store"
)

// Credentials is the input for registering a new connection.
type Credentials struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Name     string
}

// ConnectionSummary is the network-free view of one registry entry.
type ConnectionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Database  string    `json:"database"`
	Username  string    `json:"username"`
	Status    string    `json:"status"` // connected or disconnected
	CreatedAt time.Time `json:"created_at"`
}

const (
	// StatusConnected marks entries holding a live pooled handle.
	StatusConnected = "connected"
	// StatusDisconnected marks entries without a handle; they re-materialize
	// on next use.
	StatusDisconnected = "disconnected"
)

// entry is one registry slot. The plaintext password is retained so a
// reaped or never-materialized connection can reconnect without the caller
// re-entering credentials.
type entry struct {
	record   store.ConnectionRecord
	password string
	conn     Conn
	lastUsed time.Time
}

// Manager owns the connection registry and every lifecycle operation over
// it. The registry map is the single piece of shared mutable state; each
// entry's handle is set by whichever acquire call finished last
// (last-write-wins, see acquireConn).
type Manager struct {
	cfg         *config.Config
	credentials store.CredentialStore
	collections store.CollectionStore
	driver      Driver
	cipher      *secret.Cipher
	logger      *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	cache *schemaCache

	draining atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	// now is a clock hook for tests
	now func() time.Time
}

// New creates a Manager with the given collaborators.
func New(cfg *config.Config, credentials store.CredentialStore, collections store.CollectionStore, driver Driver, cipher *secret.Cipher, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:         cfg,
		credentials: credentials,
		collections: collections,
		driver:      driver,
		cipher:      cipher,
		logger:      logger.With(zap.String("component", "connection_manager")),
		entries:     make(map[string]*entry),
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
	m.cache = newSchemaCache(cfg.Cache.SchemaTTL, m.nowFunc)
	return m
}

func (m *Manager) nowFunc() time.Time {
	return m.now()
}

// Draining reports whether shutdown has begun.
func (m *Manager) Draining() bool {
	return m.draining.Load()
}

// errShuttingDown is the fail-fast error every operation returns once
// draining has begun.
func errShuttingDown() *errors.Error {
	return errors.New(errors.ErrorTypeShuttingDown, "manager is shutting down")
}

// Register validates credentials with a short-lived probe, persists the
// record with an encrypted password and inserts an in-memory entry. No pool
// is created; the connection starts disconnected.
func (m *Manager) Register(ctx context.Context, creds Credentials) (string, error) {
	if m.draining.Load() {
		return "", errShuttingDown()
	}

	if err := validateCredentials(creds); err != nil {
		return "", err
	}

	target := ConnTarget{
		Host:     creds.Host,
		Port:     creds.Port,
		Database: creds.Database,
		Username: creds.Username,
		Password: creds.Password,
	}
	if err := m.driver.Probe(ctx, target); err != nil {
		return "", err
	}

	encrypted, err := m.cipher.Encrypt(creds.Password)
	if err != nil {
		return "", err
	}

	name := creds.Name
	if name == "" {
		name = fmt.Sprintf("%s:%d/%s", creds.Host, creds.Port, creds.Database)
	}

	record := store.ConnectionRecord{
		ID:                uuid.NewString(),
		Name:              name,
		Host:              creds.Host,
		Port:              creds.Port,
		Database:          creds.Database,
		Username:          creds.Username,
		EncryptedPassword: encrypted,
		CreatedAt:         m.now(),
	}

	if err := m.credentials.Create(ctx, record); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.entries[record.ID] = &entry{record: record, password: creds.Password}
	m.mu.Unlock()
	metrics.RegisteredConnections.Inc()

	m.logger.Info("connection registered",
		zap.String("id", record.ID),
		zap.String("name", record.Name),
		zap.String("host", record.Host),
		zap.Int("port", record.Port),
		zap.String("database", record.Database))

	return record.ID, nil
}

// Unregister closes any live handle, deletes the persisted record and
// removes the in-memory entry. Safe to retry after a partial failure: the
// entry is only removed once the persisted delete succeeded.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	if m.draining.Load() {
		return errShuttingDown()
	}

	m.mu.Lock()
	ent, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return errors.Newf(errors.ErrorTypeNotFound, "connection %s not found", id)
	}
	conn := ent.conn
	ent.conn = nil
	m.mu.Unlock()

	// Close failures never block removal; they are logged only.
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Warn("handle close failed during unregister",
				zap.String("id", id), zap.Error(err))
		}
		metrics.LiveHandles.Dec()
	}

	if err := m.credentials.Delete(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	m.cache.dropConnection(id)
	metrics.RegisteredConnections.Dec()

	m.logger.Info("connection unregistered", zap.String("id", id))
	return nil
}

// List returns summaries of every registry entry. Never touches the
// network.
func (m *Manager) List() []ConnectionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]ConnectionSummary, 0, len(m.entries))
	for _, ent := range m.entries {
		status := StatusDisconnected
		if ent.conn != nil {
			status = StatusConnected
		}
		summaries = append(summaries, ConnectionSummary{
			ID:        ent.record.ID,
			Name:      ent.record.Name,
			Host:      ent.record.Host,
			Port:      ent.record.Port,
			Database:  ent.record.Database,
			Username:  ent.record.Username,
			Status:    status,
			CreatedAt: ent.record.CreatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Restore seeds the registry from the credential store so registered
// connections survive process restarts. All restored entries start
// disconnected.
func (m *Manager) Restore(ctx context.Context) error {
	records, err := m.credentials.List(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, record := range records {
		password, err := m.cipher.Decrypt(record.EncryptedPassword)
		if err != nil {
			m.logger.Error("skipping connection with undecryptable password",
				zap.String("id", record.ID), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if _, exists := m.entries[record.ID]; !exists {
			m.entries[record.ID] = &entry{record: record, password: password}
			restored++
			metrics.RegisteredConnections.Inc()
		}
		m.mu.Unlock()
	}

	m.logger.Info("registry restored", zap.Int("connections", restored))
	return nil
}

// acquireConn returns the entry's live handle, materializing one on demand.
// Two concurrent calls for a handle-less id may both construct a pool; the
// registry retains the last one written, closing the displaced pool. The
// duplicate construction is accepted overhead, not a correctness bug; no
// durable state depends on which pool wins.
func (m *Manager) acquireConn(ctx context.Context, id string) (Conn, error) {
	if m.draining.Load() {
		return nil, errShuttingDown()
	}

	m.mu.Lock()
	ent, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %s not found", id)
	}
	if ent.conn != nil {
		conn := ent.conn
		ent.lastUsed = m.now()
		m.mu.Unlock()
		return conn, nil
	}
	target := ConnTarget{
		Host:     ent.record.Host,
		Port:     ent.record.Port,
		Database: ent.record.Database,
		Username: ent.record.Username,
		Password: ent.password,
	}
	m.mu.Unlock()

	// Pool construction happens outside the registry lock; it suspends on
	// the network.
	conn, err := m.driver.Open(ctx, target, m.cfg.Pool.MaxOpenConns)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePoolCreationFailed, "failed to materialize connection pool")
	}

	m.mu.Lock()
	ent, ok = m.entries[id]
	if !ok {
		// Unregistered while we were connecting.
		m.mu.Unlock()
		if closeErr := conn.Close(); closeErr != nil {
			m.logger.Warn("orphaned pool close failed", zap.String("id", id), zap.Error(closeErr))
		}
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %s not found", id)
	}
	var displaced Conn
	if ent.conn == nil {
		metrics.LiveHandles.Inc()
	} else {
		// Lost the materialization race; the displaced pool must not leak
		// its sockets.
		m.logger.Debug("concurrent pool construction, retaining last written",
			zap.String("id", id))
		displaced = ent.conn
	}
	ent.conn = conn
	ent.lastUsed = m.now()
	m.mu.Unlock()

	if displaced != nil {
		if closeErr := displaced.Close(); closeErr != nil {
			m.logger.Warn("displaced pool close failed", zap.String("id", id), zap.Error(closeErr))
		}
	}

	m.logger.Debug("connection pool materialized", zap.String("id", id))
	return conn, nil
}

// validateCredentials checks the statically checkable parts of credentials.
func validateCredentials(creds Credentials) error {
	if creds.Host == "" {
		return errors.New(errors.ErrorTypeValidation, "host is required")
	}
	if creds.Port < 1 || creds.Port > 65535 {
		return errors.Newf(errors.ErrorTypeValidation, "port %d out of range", creds.Port)
	}
	if creds.Database == "" {
		return errors.New(errors.ErrorTypeValidation, "database is required")
	}
	if creds.Username == "" {
		return errors.New(errors.ErrorTypeValidation, "username is required")
	}
	return nil
}
