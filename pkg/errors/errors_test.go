package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndWrap(t *testing.T) {
	base := New(ErrorTypeNotFound, "connection abc not found")
	assert.Equal(t, ErrorTypeNotFound, base.Type)
	assert.Contains(t, base.Error(), "not_found")
	assert.Contains(t, base.Error(), "connection abc not found")
	assert.NotEmpty(t, base.Stack)

	wrapped := Wrap(base, ErrorTypeSchemaFetchFailed, "failed to fetch table schema")
	assert.Equal(t, ErrorTypeSchemaFetchFailed, wrapped.Type)
	assert.Contains(t, wrapped.Error(), "failed to fetch table schema")
	assert.Contains(t, wrapped.Error(), "connection abc not found")

	// Unwrap chain preserved
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConnection, "nothing"))
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeShuttingDown, "manager is shutting down")
	assert.True(t, IsType(err, ErrorTypeShuttingDown))
	assert.False(t, IsType(err, ErrorTypeTimeout))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeTimeout))

	// Type visible through plain fmt wrapping
	outer := fmt.Errorf("outer: %w", err)
	assert.True(t, IsType(outer, ErrorTypeShuttingDown))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeTimeout, "deadline")))
	assert.True(t, IsRetryable(New(ErrorTypeConnectionRefused, "refused")))
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "generic")))
	assert.False(t, IsRetryable(New(ErrorTypeAuthenticationFailed, "denied")))
	assert.False(t, IsRetryable(New(ErrorTypeNotFound, "missing")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypePoolCreationFailed, "pool failed").
		WithDetail("connection_id", "abc").
		WithDetail("attempt", 2)

	require.NotNil(t, err.Details)
	assert.Equal(t, "abc", err.Details["connection_id"])
	assert.Equal(t, 2, err.Details["attempt"])
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeTimeout, TypeOf(New(ErrorTypeTimeout, "deadline")))
	assert.Equal(t, ErrorTypeConnection, TypeOf(fmt.Errorf("plain")))
}
