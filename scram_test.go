// FILE: scram_test.go
package sasl

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runScramExchange drives a full client/server SCRAM handshake for mech and
// returns the server's final Result and error, for assertions on each leg.
func runScramExchange(t *testing.T, mech Mechanism, username, serverPassword, clientPassword string) (Result, error, *ConnectionSession) {
	t.Helper()

	store := NewStore()
	if serverPassword != "" {
		u, err := Create(username, serverPassword)
		require.NoError(t, err)
		require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	}
	registry := NewRegistry(store)

	serverSession := NewServerSession()
	serverState, err := registry.CreateServer(mech, serverSession)
	require.NoError(t, err)

	clientSession := NewClientSession(
		func() (string, error) { return username, nil },
		func() (string, error) { return clientPassword, nil },
	)
	clientState, err := registry.CreateClient(mech, clientSession)
	require.NoError(t, err)

	_, clientFirst, err := clientState.Start(nil)
	require.NoError(t, err)

	serverResult, serverFirst, err := serverState.Start(clientFirst)
	require.Equal(t, ResultContinue, serverResult)
	require.NoError(t, err)

	_, clientFinal, err := clientState.Step(serverFirst)
	require.NoError(t, err)

	serverResult, serverFinal, serverErr := serverState.Step(clientFinal)

	if serverResult == ResultOK {
		clientResult, _, clientErr := clientState.Step(serverFinal)
		assert.Equal(t, ResultOK, clientResult, "client must accept a genuine server signature")
		assert.NoError(t, clientErr)
	}

	return serverResult, serverErr, serverSession
}

func mustMarshal(t *testing.T, u *User) []byte {
	t.Helper()
	data, err := marshalUserDatabase([]*User{u})
	require.NoError(t, err)
	return data
}

func TestScramFullRoundtripSuccess(t *testing.T) {
	for _, mech := range []Mechanism{MechanismScramSHA1, MechanismScramSHA256, MechanismScramSHA512} {
		result, err, session := runScramExchange(t, mech, "alice", "correct-horse", "correct-horse")
		assert.Equal(t, ResultOK, result, "%s should succeed", mech)
		assert.NoError(t, err)
		assert.Equal(t, "alice", session.Username)
		assert.Equal(t, DomainLocal, session.Domain)
	}
}

func TestScramWrongPasswordFails(t *testing.T) {
	result, err, session := runScramExchange(t, MechanismScramSHA256, "alice", "correct-horse", "wrong-horse")
	assert.Equal(t, ResultPwErr, result)
	assert.ErrorIs(t, err, ErrPwErr)
	assert.Empty(t, session.Username, "a failed exchange must not populate the session identity")
}

func TestScramUnknownUserLooksLikeAWrongPassword(t *testing.T) {
	// serverPassword == "" means no user is ever created in the store.
	result, err, _ := runScramExchange(t, MechanismScramSHA256, "ghost", "", "whatever")
	assert.Equal(t, ResultNoUser, result)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestScramServerRejectsChannelBindingPrefix(t *testing.T) {
	store := NewStore()
	registry := NewRegistry(store)
	state, err := registry.CreateServer(MechanismScramSHA256, NewServerSession())
	require.NoError(t, err)

	_, _, err = state.Start([]byte("y,,n=alice,r=abcd"))
	assert.ErrorIs(t, err, ErrSCRAMChannelBinding)
}

func TestScramServerRejectsDuplicateAttribute(t *testing.T) {
	store := NewStore()
	registry := NewRegistry(store)
	state, err := registry.CreateServer(MechanismScramSHA256, NewServerSession())
	require.NoError(t, err)

	_, _, err = state.Start([]byte("n,,n=alice,n=alice,r=abcd"))
	assert.ErrorIs(t, err, ErrSCRAMDuplicateAttribute)
}

func TestScramClientRejectsNonPrefixedServerNonce(t *testing.T) {
	store := NewStore()
	u, err := Create("alice", "pw")
	require.NoError(t, err)
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	clientSession := NewClientSession(
		func() (string, error) { return "alice", nil },
		func() (string, error) { return "pw", nil },
	)
	clientState, err := registry.CreateClient(MechanismScramSHA256, clientSession)
	require.NoError(t, err)

	_, _, err = clientState.Start(nil)
	require.NoError(t, err)

	// A server-first message whose nonce does not extend the client's own
	// nonce must be rejected (RFC 5802 §5.1; the original implementation
	// omits this check).
	_, _, err = clientState.Step([]byte("r=totally-unrelated-nonce,s=AAAAAAAAAAAAAAAAAAAAAA==,i=4096"))
	assert.ErrorIs(t, err, ErrSCRAMInvalidNonce)
}

func TestScramServerStepOutOfSequence(t *testing.T) {
	store := NewStore()
	registry := NewRegistry(store)
	state, err := registry.CreateServer(MechanismScramSHA256, NewServerSession())
	require.NoError(t, err)

	_, _, err = state.Step([]byte("p=x"))
	assert.ErrorIs(t, err, ErrSCRAMInvalidState)
}

// TestScramSHA1RFC5802WorkedExample reproduces the literal SCRAM-SHA-1
// exchange from RFC 5802 §5 byte-for-byte: username "user", password
// "pencil", fixed client/server nonces, fixed salt, i=4096. Both nonce
// halves are pinned through GetCnonce (client-side at scram.go's
// scramClientState.Start, server-side at scramServerState.Start) so the
// real PBKDF2/HMAC code paths run end to end and produce the RFC's exact
// wire bytes, not just a structurally-valid exchange with random salts.
func TestScramSHA1RFC5802WorkedExample(t *testing.T) {
	const (
		clientNonce = "fyko+d2lbbFgONRv9qkxdawL"
		serverNonce = "3rfcNHYJY1ZVvWVs7j"
		saltB64     = "QSXCR+Q6sek8bf92"
		iterations  = 4096
	)

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	require.NoError(t, err)
	saltedPassword, err := PBKDF2HMAC(AlgorithmSHA1, []byte("pencil"), salt, iterations)
	require.NoError(t, err)

	u := &User{
		Username: "user",
		Mechanisms: map[Mechanism]PasswordMetaData{
			MechanismScramSHA1: {
				PasswordBytes:  saltedPassword,
				SaltB64:        saltB64,
				IterationCount: iterations,
			},
		},
	}
	store := NewStore()
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	serverSession := NewServerSession()
	serverSession.GetCnonce = func() (string, error) { return serverNonce, nil }
	serverState, err := registry.CreateServer(MechanismScramSHA1, serverSession)
	require.NoError(t, err)

	clientSession := NewClientSession(
		func() (string, error) { return "user", nil },
		func() (string, error) { return "pencil", nil },
	)
	clientSession.GetCnonce = func() (string, error) { return clientNonce, nil }
	clientState, err := registry.CreateClient(MechanismScramSHA1, clientSession)
	require.NoError(t, err)

	_, clientFirst, err := clientState.Start(nil)
	require.NoError(t, err)
	assert.Equal(t, "n,,n=user,r="+clientNonce, string(clientFirst))

	serverResult, serverFirst, err := serverState.Start(clientFirst)
	require.NoError(t, err)
	require.Equal(t, ResultContinue, serverResult)
	assert.Equal(t, "r="+clientNonce+serverNonce+",s="+saltB64+",i=4096", string(serverFirst))

	_, clientFinal, err := clientState.Step(serverFirst)
	require.NoError(t, err)
	assert.Equal(t, "c=biws,r="+clientNonce+serverNonce+",p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts=", string(clientFinal))

	serverResult, serverFinal, err := serverState.Step(clientFinal)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, serverResult)
	assert.Equal(t, "v=rmF9pqV8S7suAoZWja4dJRkFsKQ=", string(serverFinal))

	clientResult, _, err := clientState.Step(serverFinal)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, clientResult, "client must accept the RFC's own server signature")
}

func TestScramWithDeterministicCnonceHook(t *testing.T) {
	store := NewStore()
	u, err := Create("alice", "pw")
	require.NoError(t, err)
	require.NoError(t, store.LoadBytes(mustMarshal(t, u)))
	registry := NewRegistry(store)

	clientSession := NewClientSession(
		func() (string, error) { return "alice", nil },
		func() (string, error) { return "pw", nil },
	)
	clientSession.GetCnonce = func() (string, error) { return "fixednonce", nil }

	clientState, err := registry.CreateClient(MechanismScramSHA256, clientSession)
	require.NoError(t, err)

	_, clientFirst, err := clientState.Start(nil)
	require.NoError(t, err)
	assert.Contains(t, string(clientFirst), "r=fixednonce")
}
