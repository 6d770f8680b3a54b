package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/config"
	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/schema"
	"github.com/tablelink/tablelink/pkg/secret"
	"github.com/tablelink/tablelink/pkg/store"
)

// fakeConn is a function-hook Conn double. Zero-value hooks fall back to the
// canned tables/columns maps.
type fakeConn struct {
	tables  []string
	columns map[string][]schema.Column
	indexes map[string][]schema.Index
	rows    map[string][]map[string]interface{}

	describeDelay time.Duration
	closeDelay    time.Duration
	closeErr      error

	describeCalls atomic.Int32
	inFlight      atomic.Int32
	maxInFlight   atomic.Int32
	lastLimit     atomic.Int32
	closed        atomic.Bool
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) ListTables(context.Context) ([]string, error) {
	return c.tables, nil
}

func (c *fakeConn) DescribeColumns(_ context.Context, table string) ([]schema.Column, error) {
	c.describeCalls.Add(1)

	current := c.inFlight.Add(1)
	for {
		peak := c.maxInFlight.Load()
		if current <= peak || c.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	if c.describeDelay > 0 {
		time.Sleep(c.describeDelay)
	}
	c.inFlight.Add(-1)

	return c.columns[table], nil
}

func (c *fakeConn) ListIndexes(_ context.Context, table string) ([]schema.Index, error) {
	return c.indexes[table], nil
}

func (c *fakeConn) Preview(_ context.Context, table string, limit int) ([]map[string]interface{}, error) {
	c.lastLimit.Store(int32(limit))
	return c.rows[table], nil
}

func (c *fakeConn) Close() error {
	if c.closeDelay > 0 {
		time.Sleep(c.closeDelay)
	}
	c.closed.Store(true)
	return c.closeErr
}

// fakeDriver hands out fakeConns and records every open. When openGate is
// set, every Open signals openStarted and then blocks until the gate closes,
// letting tests line up concurrent materializations.
type fakeDriver struct {
	probeErr    error
	openErr     error
	newConn     func() *fakeConn
	openStarted chan struct{}
	openGate    chan struct{}

	mu     sync.Mutex
	opened []*fakeConn
}

func (d *fakeDriver) Probe(context.Context, ConnTarget) error {
	return d.probeErr
}

func (d *fakeDriver) Open(context.Context, ConnTarget, int) (Conn, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.openGate != nil {
		d.openStarted <- struct{}{}
		<-d.openGate
	}
	conn := &fakeConn{}
	if d.newConn != nil {
		conn = d.newConn()
	}
	d.mu.Lock()
	d.opened = append(d.opened, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}

func (d *fakeDriver) lastOpened() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

// fakeClock is a settable clock for TTL and idle-threshold tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testFixture struct {
	manager     *Manager
	driver      *fakeDriver
	credentials *store.MemoryCredentialStore
	collections *store.MemoryCollectionStore
	clock       *fakeClock
}

func newFixture(t *testing.T, driver *fakeDriver) *testFixture {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cipher, err := secret.NewCipher("test-encryption-key")
	require.NoError(t, err)

	credentials := store.NewMemoryCredentialStore()
	collections := store.NewMemoryCollectionStore()

	m := New(cfg, credentials, collections, driver, cipher, zap.NewNop())
	clock := newFakeClock()
	m.now = clock.Now

	return &testFixture{
		manager:     m,
		driver:      driver,
		credentials: credentials,
		collections: collections,
		clock:       clock,
	}
}

func testCredentials() Credentials {
	return Credentials{
		Host:     "db.internal",
		Port:     3306,
		Database: "shop",
		Username: "reader",
		Password: "s3cret",
	}
}

func TestRegisterStartsDisconnected(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})

	id, err := fx.manager.Register(context.Background(), testCredentials())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	summaries := fx.manager.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, StatusDisconnected, summaries[0].Status)
	assert.Equal(t, "db.internal:3306/shop", summaries[0].Name)

	// No pool until first use
	assert.Equal(t, 0, fx.driver.openCount())

	// Password is persisted encrypted
	record, err := fx.credentials.Find(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, record.EncryptedPassword)
	assert.NotEqual(t, "s3cret", record.EncryptedPassword)
}

func TestRegisterExplicitName(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})

	creds := testCredentials()
	creds.Name = "primary shop db"
	id, err := fx.manager.Register(context.Background(), creds)
	require.NoError(t, err)

	summaries := fx.manager.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, "primary shop db", summaries[0].Name)
}

func TestRegisterProbeFailure(t *testing.T) {
	probeErr := errors.New(errors.ErrorTypeAuthenticationFailed, "access denied for user 'reader'")
	fx := newFixture(t, &fakeDriver{probeErr: probeErr})

	_, err := fx.manager.Register(context.Background(), testCredentials())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthenticationFailed))

	// Nothing persisted, nothing in the registry
	assert.Empty(t, fx.manager.List())
	records, err := fx.credentials.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegisterValidation(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})

	tests := []struct {
		name   string
		mutate func(*Credentials)
	}{
		{"missing host", func(c *Credentials) { c.Host = "" }},
		{"zero port", func(c *Credentials) { c.Port = 0 }},
		{"port too large", func(c *Credentials) { c.Port = 70000 }},
		{"missing database", func(c *Credentials) { c.Database = "" }},
		{"missing username", func(c *Credentials) { c.Username = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := testCredentials()
			tt.mutate(&creds)
			_, err := fx.manager.Register(context.Background(), creds)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		})
	}
}

func TestUnregisterClosesHandle(t *testing.T) {
	fx := newFixture(t, &fakeDriver{newConn: func() *fakeConn {
		return &fakeConn{tables: []string{"orders"}}
	}})
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	_, err = fx.manager.ListTables(ctx, id)
	require.NoError(t, err)
	conn := fx.driver.lastOpened()
	require.NotNil(t, conn)

	require.NoError(t, fx.manager.Unregister(ctx, id))
	assert.True(t, conn.closed.Load())
	assert.Empty(t, fx.manager.List())

	// Second unregister of the same id is a clean not-found
	err = fx.manager.Unregister(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestUnregisterUnknownID(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})

	err := fx.manager.Unregister(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestListSortedByCreation(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})
	ctx := context.Background()

	var ids []string
	for _, db := range []string{"alpha", "beta", "gamma"} {
		creds := testCredentials()
		creds.Database = db
		id, err := fx.manager.Register(ctx, creds)
		require.NoError(t, err)
		ids = append(ids, id)
		fx.clock.Advance(time.Minute)
	}

	summaries := fx.manager.List()
	require.Len(t, summaries, 3)
	for i, id := range ids {
		assert.Equal(t, id, summaries[i].ID)
	}
}

func TestLazyPoolMaterialization(t *testing.T) {
	fx := newFixture(t, &fakeDriver{newConn: func() *fakeConn {
		return &fakeConn{tables: []string{"orders", "customers"}}
	}})
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)
	assert.Equal(t, 0, fx.driver.openCount())

	tables, err := fx.manager.ListTables(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "customers"}, tables)
	assert.Equal(t, 1, fx.driver.openCount())

	// Second use rides the existing handle
	_, err = fx.manager.ListTables(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.driver.openCount())

	summaries := fx.manager.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, StatusConnected, summaries[0].Status)
}

func TestAcquireWrapsOpenFailure(t *testing.T) {
	openErr := errors.New(errors.ErrorTypeConnectionRefused, "connection refused")
	fx := newFixture(t, &fakeDriver{openErr: openErr})
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	_, err = fx.manager.ListTables(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePoolCreationFailed))

	// The entry survives a failed materialization
	summaries := fx.manager.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, StatusDisconnected, summaries[0].Status)
}

func TestAcquireUnknownID(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})

	_, err := fx.manager.ListTables(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestRestoreSeedsRegistry(t *testing.T) {
	fx := newFixture(t, &fakeDriver{newConn: func() *fakeConn {
		return &fakeConn{tables: []string{"orders"}}
	}})
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	// A fresh manager sharing the credential store sees the record after
	// Restore, disconnected, and can materialize a pool from the decrypted
	// password.
	cipher, err := secret.NewCipher("test-encryption-key")
	require.NoError(t, err)
	restored := New(config.NewDefaultConfig(), fx.credentials, fx.collections, fx.driver, cipher, zap.NewNop())

	require.NoError(t, restored.Restore(ctx))
	summaries := restored.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, StatusDisconnected, summaries[0].Status)

	_, err = restored.ListTables(ctx, id)
	require.NoError(t, err)
}

// flakyDeleteStore fails Delete a fixed number of times before delegating.
type flakyDeleteStore struct {
	*store.MemoryCredentialStore
	deleteFailures int
}

func (s *flakyDeleteStore) Delete(ctx context.Context, id string) error {
	if s.deleteFailures > 0 {
		s.deleteFailures--
		return errors.New(errors.ErrorTypeConnection, "credential store write failed")
	}
	return s.MemoryCredentialStore.Delete(ctx, id)
}

func TestUnregisterRetryAfterFailedDelete(t *testing.T) {
	flaky := &flakyDeleteStore{
		MemoryCredentialStore: store.NewMemoryCredentialStore(),
		deleteFailures:        1,
	}
	driver := &fakeDriver{newConn: func() *fakeConn {
		return &fakeConn{tables: []string{"orders"}}
	}}
	cipher, err := secret.NewCipher("test-encryption-key")
	require.NoError(t, err)
	m := New(config.NewDefaultConfig(), flaky, store.NewMemoryCollectionStore(), driver, cipher, zap.NewNop())
	ctx := context.Background()

	id, err := m.Register(ctx, testCredentials())
	require.NoError(t, err)
	_, err = m.ListTables(ctx, id)
	require.NoError(t, err)

	// First attempt closes the handle but the persisted delete fails; the
	// registry entry must survive so the caller can retry.
	err = m.Unregister(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, driver.lastOpened().closed.Load())

	summaries := m.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, StatusDisconnected, summaries[0].Status)

	// Retry succeeds and removes the entry and the record.
	require.NoError(t, m.Unregister(ctx, id))
	assert.Empty(t, m.List())
	_, err = flaky.Find(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	// A further retry is the usual clean not-found.
	err = m.Unregister(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestConcurrentMaterializationClosesDisplacedPool(t *testing.T) {
	driver := &fakeDriver{
		newConn:     func() *fakeConn { return &fakeConn{tables: []string{"orders"}} },
		openStarted: make(chan struct{}, 2),
		openGate:    make(chan struct{}),
	}
	fx := newFixture(t, driver)
	ctx := context.Background()

	id, err := fx.manager.Register(ctx, testCredentials())
	require.NoError(t, err)

	// Hold both materializations inside Open so each saw a handle-less
	// entry, then release them together.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, listErr := fx.manager.ListTables(ctx, id)
			assert.NoError(t, listErr)
		}()
	}
	<-driver.openStarted
	<-driver.openStarted
	close(driver.openGate)
	wg.Wait()

	require.Equal(t, 2, fx.driver.openCount())
	fx.driver.mu.Lock()
	first, second := fx.driver.opened[0], fx.driver.opened[1]
	fx.driver.mu.Unlock()

	// Exactly one pool survives on the entry; the displaced one is closed.
	assert.NotEqual(t, first.closed.Load(), second.closed.Load())

	summaries := fx.manager.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, StatusConnected, summaries[0].Status)
}

func TestRestoreSkipsUndecryptable(t *testing.T) {
	fx := newFixture(t, &fakeDriver{})
	ctx := context.Background()

	require.NoError(t, fx.credentials.Create(ctx, store.ConnectionRecord{
		ID:                "bad-record",
		Host:              "db.internal",
		Port:              3306,
		Database:          "shop",
		Username:          "reader",
		EncryptedPassword: "garbage",
		CreatedAt:         time.Now(),
	}))

	require.NoError(t, fx.manager.Restore(ctx))
	assert.Empty(t, fx.manager.List())
}
