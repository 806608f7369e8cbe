// FILE: token_test.go
package sasl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRevocationListRevokeAndUnrevoke(t *testing.T) {
	r := NewRevocationList()
	id := "identity-id-1"

	assert.False(t, r.IsRevoked(id))

	r.Revoke(id)
	assert.True(t, r.IsRevoked(id))

	r.Unrevoke(id)
	assert.False(t, r.IsRevoked(id))
}

func TestRevocationListDistinguishesIDs(t *testing.T) {
	r := NewRevocationList()
	r.Revoke("identity-a")

	assert.True(t, r.IsRevoked("identity-a"))
	assert.False(t, r.IsRevoked("identity-b"))
}

func TestRevocationListEmptyListRevokesNothing(t *testing.T) {
	r := NewRevocationList()
	assert.False(t, r.IsRevoked("anything"))
}
