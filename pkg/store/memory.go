package store

import (
	"context"
	"sync"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/schema"
)

// MemoryCredentialStore is an in-memory CredentialStore for tests and
// standalone runs without a PostgreSQL backend.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	records map[string]ConnectionRecord
}

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{records: make(map[string]ConnectionRecord)}
}

func (s *MemoryCredentialStore) Create(_ context.Context, record ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *MemoryCredentialStore) Find(_ context.Context, id string) (ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return ConnectionRecord{}, errors.Newf(errors.ErrorTypeNotFound, "connection %s not found", id)
	}
	return record, nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryCredentialStore) List(_ context.Context) ([]ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]ConnectionRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

func (s *MemoryCredentialStore) Ping(_ context.Context) error {
	return nil
}

// MemoryCollectionStore is an in-memory CollectionStore for tests.
type MemoryCollectionStore struct {
	mu          sync.RWMutex
	collections map[string]schema.DerivedCollection
}

// NewMemoryCollectionStore creates an empty in-memory collection store.
func NewMemoryCollectionStore() *MemoryCollectionStore {
	return &MemoryCollectionStore{collections: make(map[string]schema.DerivedCollection)}
}

func (s *MemoryCollectionStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryCollectionStore) Create(_ context.Context, collection schema.DerivedCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection.Name]; ok {
		return errors.Newf(errors.ErrorTypeCollectionAlreadyExists, "collection %s already exists", collection.Name)
	}
	s.collections[collection.Name] = collection
	return nil
}

// Get returns a stored collection, for assertions in tests.
func (s *MemoryCollectionStore) Get(name string) (schema.DerivedCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	collection, ok := s.collections[name]
	return collection, ok
}
