package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *EngineError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewError(CHAIN_NOT_FOUND, "chain missing"),
			expected: "[CHAIN_NOT_FOUND] chain missing",
		},
		{
			name:     "with cause",
			err:      WrapError(STORE_QUERY_FAILED, "list chains", errors.New("connection refused")),
			expected: "[STORE_QUERY_FAILED] list chains: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestEngineError_Is(t *testing.T) {
	base := NewError(NODE_TIMEOUT, "handler exceeded deadline")
	wrapped := fmt.Errorf("execute node: %w", base)

	assert.True(t, errors.Is(wrapped, NewError(NODE_TIMEOUT, "different message")))
	assert.False(t, errors.Is(wrapped, NewError(NODE_FAULT, "different code")))
	assert.True(t, IsCode(wrapped, NODE_TIMEOUT))
	assert.False(t, IsCode(errors.New("plain"), NODE_TIMEOUT))
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(NODE_FAULT, "handler panicked", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestEngineError_Retryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError(STORE_QUERY_FAILED, "timeout")))
	assert.False(t, IsRetryable(NewError(STORE_QUERY_FAILED, "bad query")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestID_RoundTrip(t *testing.T) {
	id := NewID()
	require.NoError(t, id.Validate())

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseID_Invalid(t *testing.T) {
	_, err := ParseID("")
	assert.Error(t, err)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)

	var zero ID
	assert.True(t, zero.IsZero())
	assert.Error(t, zero.Validate())
}
