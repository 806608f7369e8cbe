// FILE: plain_test.go
package sasl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPlainMessage(authzid, username, password string) []byte {
	return []byte(authzid + "\x00" + username + "\x00" + password)
}

func TestPlainServerAcceptsCorrectPassword(t *testing.T) {
	store := NewStore()
	u, err := Create("alice", "hunter2")
	require.NoError(t, err)
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	session := NewServerSession()
	state, err := registry.CreateServer(MechanismPlain, session)
	require.NoError(t, err)

	result, _, err := state.Start(buildPlainMessage("", "alice", "hunter2"))
	require.NoError(t, err)
	assert.Equal(t, ResultOK, result)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, DomainLocal, session.Domain)
}

func TestPlainServerRejectsWrongPassword(t *testing.T) {
	store := NewStore()
	u, err := Create("alice", "hunter2")
	require.NoError(t, err)
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	state, err := registry.CreateServer(MechanismPlain, NewServerSession())
	require.NoError(t, err)

	result, _, err := state.Start(buildPlainMessage("", "alice", "wrong"))
	assert.Equal(t, ResultPwErr, result)
	assert.ErrorIs(t, err, ErrPwErr)
}

func TestPlainServerUnknownUserReturnsNoUser(t *testing.T) {
	store := NewStore()
	registry := NewRegistry(store)
	state, err := registry.CreateServer(MechanismPlain, NewServerSession())
	require.NoError(t, err)

	result, _, err := state.Start(buildPlainMessage("", "ghost", "whatever"))
	assert.Equal(t, ResultNoUser, result)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestPlainServerRejectsMalformedMessage(t *testing.T) {
	store := NewStore()
	registry := NewRegistry(store)
	state, err := registry.CreateServer(MechanismPlain, NewServerSession())
	require.NoError(t, err)

	result, _, err := state.Start([]byte("no-null-bytes-here"))
	assert.Equal(t, ResultBadParam, result)
	assert.ErrorIs(t, err, ErrBadParam)
}

func TestPlainServerSingleRoundTripOnly(t *testing.T) {
	store := NewStore()
	u, err := Create("alice", "hunter2")
	require.NoError(t, err)
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	state, err := registry.CreateServer(MechanismPlain, NewServerSession())
	require.NoError(t, err)

	_, _, err = state.Start(buildPlainMessage("", "alice", "hunter2"))
	require.NoError(t, err)

	_, _, err = state.Start(buildPlainMessage("", "alice", "hunter2"))
	assert.ErrorIs(t, err, ErrSCRAMInvalidState)

	_, _, err = state.Step(nil)
	assert.ErrorIs(t, err, ErrSCRAMInvalidState)
}

type fakeExternalAuth struct {
	configured bool
	valid      map[string]string
}

func (f *fakeExternalAuth) Configured() bool { return f.configured }

func (f *fakeExternalAuth) Authenticate(username, password string) error {
	if f.valid[username] == password {
		return nil
	}
	return ErrPwErr
}

func TestPlainServerDelegatesUnknownUsersToExternalAuth(t *testing.T) {
	store := NewStore()
	registry := NewRegistry(store)
	registry.SetExternalAuthBackend(&fakeExternalAuth{configured: true, valid: map[string]string{"ldapuser": "ldappass"}})

	session := NewServerSession()
	state, err := registry.CreateServer(MechanismPlain, session)
	require.NoError(t, err)

	result, _, err := state.Start(buildPlainMessage("", "ldapuser", "ldappass"))
	require.NoError(t, err)
	assert.Equal(t, ResultOK, result)
	assert.Equal(t, DomainExternal, session.Domain)
}

func TestPlainClientBuildsNullSeparatedMessage(t *testing.T) {
	session := NewClientSession(
		func() (string, error) { return "alice", nil },
		func() (string, error) { return "hunter2", nil },
	)
	state := newPlainClient(session)

	_, out, err := state.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, buildPlainMessage("", "alice", "hunter2"), out)
}
