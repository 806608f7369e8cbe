// FILE: session_test.go
package sasl

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRandomUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	return id
}

func TestDomainString(t *testing.T) {
	assert.Equal(t, "local", DomainLocal.String())
	assert.Equal(t, "external", DomainExternal.String())
}

func TestSessionStartStepRequireBoundState(t *testing.T) {
	session := NewServerSession()
	result, _, err := session.Start([]byte("n,,n=x,r=y"))
	assert.Equal(t, ResultBadParam, result)
	assert.ErrorIs(t, err, ErrBadParam)

	result, _, err = session.Step([]byte("p=x"))
	assert.Equal(t, ResultBadParam, result)
	assert.ErrorIs(t, err, ErrBadParam)
}

func TestSessionBindDelegatesToMechanismState(t *testing.T) {
	store := NewStore()
	u, err := Create("alice", "hunter2")
	require.NoError(t, err)
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	session := NewServerSession()
	state, err := registry.CreateServer(MechanismPlain, session)
	require.NoError(t, err)
	session.Bind(state, MechanismPlain)

	result, _, err := session.Start(buildPlainMessage("", "alice", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, ResultOK, result)
	assert.Equal(t, MechanismPlain, session.Mechanism)
}

func TestSessionBeginExchangeResetsIdentity(t *testing.T) {
	session := NewServerSession()
	id := session.IdentityID
	session.setIdentity(mustRandomUUID(t))
	assert.NotEqual(t, id, session.IdentityID)

	session.beginExchange()
	assert.Equal(t, id, session.IdentityID, "beginExchange must clear a prior exchange's correlation id")
}
