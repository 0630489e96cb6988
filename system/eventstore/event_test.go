package eventstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumState_StableAcrossKeyOrder(t *testing.T) {
	a, err := ChecksumState(json.RawMessage(`{"b":2,"a":1}`))
	require.NoError(t, err)
	b, err := ChecksumState(json.RawMessage(`{"a":1,"b":2}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChecksumState_DiffersOnDifferentState(t *testing.T) {
	a, err := ChecksumState(json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	b, err := ChecksumState(json.RawMessage(`{"n":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
