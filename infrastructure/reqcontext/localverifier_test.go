package reqcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalVerifier_ExtractsRegisteredClaims(t *testing.T) {
	v := NewLocalVerifier()
	require.NoError(t, v.Register("alice", "s3cret", Claims{Subject: "alice", TenantID: "tenant-a"}))

	claims, err := v.Extract("alice:s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
}

func TestLocalVerifier_RejectsWrongKey(t *testing.T) {
	v := NewLocalVerifier()
	require.NoError(t, v.Register("alice", "s3cret", Claims{Subject: "alice"}))

	_, err := v.Extract("alice:wrong")
	assert.Error(t, err)
}

func TestLocalVerifier_RejectsUnknownIdentity(t *testing.T) {
	v := NewLocalVerifier()
	_, err := v.Extract("bob:whatever")
	assert.Error(t, err)
}

func TestLocalVerifier_RejectsMalformedToken(t *testing.T) {
	v := NewLocalVerifier()
	_, err := v.Extract("no-colon-here")
	assert.Error(t, err)
}
