package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/schema"
)

func TestMemoryCredentialStore(t *testing.T) {
	s := NewMemoryCredentialStore()
	ctx := context.Background()

	record := ConnectionRecord{
		ID:                "conn-1",
		Name:              "shop",
		Host:              "db.internal",
		Port:              3306,
		Database:          "shop",
		Username:          "reader",
		EncryptedPassword: "ciphertext",
		CreatedAt:         time.Now(),
	}
	require.NoError(t, s.Create(ctx, record))

	found, err := s.Find(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, record, found)

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, s.Delete(ctx, "conn-1"))
	_, err = s.Find(ctx, "conn-1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	// Deleting an absent record is not an error
	assert.NoError(t, s.Delete(ctx, "conn-1"))
}

func TestMemoryCollectionStore(t *testing.T) {
	s := NewMemoryCollectionStore()
	ctx := context.Background()

	exists, err := s.Exists(ctx, "orders")
	require.NoError(t, err)
	assert.False(t, exists)

	collection := schema.DerivedCollection{
		Name:        "orders",
		SourceTable: "orders",
		Fields:      []schema.Field{{Name: "id", Type: schema.FieldTypeInteger, PrimaryKey: true}},
	}
	require.NoError(t, s.Create(ctx, collection))

	exists, err = s.Exists(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.Create(ctx, collection)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCollectionAlreadyExists))
}
