// FILE: session.go
package sasl

import (
	"github.com/google/uuid"
)

// Domain identifies where an authenticated identity is defined.
type Domain int

const (
	DomainLocal Domain = iota
	DomainExternal
)

func (d Domain) String() string {
	if d == DomainExternal {
		return "external"
	}
	return "local"
}

// Role distinguishes the two halves of a SASL exchange that share the
// same message-assembly logic.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// GetCnonceFunc lets a caller override SCRAM nonce generation (the client
// nonce in the client role, the server nonce in the server role), used
// only for deterministic testing (spec.md §4.5.2/§4.8).
type GetCnonceFunc func() (string, error)

// GetUsernameFunc supplies the client-role username.
type GetUsernameFunc func() (string, error)

// GetPasswordFunc supplies the client-role plaintext password.
type GetPasswordFunc func() (string, error)

// GetOptionFunc reads a named config option (spec.md §6 Config options).
type GetOptionFunc func(name string) (string, bool)

// ConnectionSession is the per-connection state carried alongside the
// active mechanism: the negotiated Mechanism, the authenticated username
// and domain (set by the mechanism once Start or Step returns ResultOK), and the
// optional callbacks a caller supplies for client-role message assembly
// and deterministic testing.
//
// Sessions are created at connection start, consumed across exactly one
// or two protocol exchanges, and destroyed on completion or connection
// close; they are touched by exactly one worker at a time.
type ConnectionSession struct {
	Role       Role
	Mechanism  Mechanism
	Username   string
	Domain     Domain
	Internal   bool
	IdentityID uuid.UUID

	GetCnonce   GetCnonceFunc
	GetUsername GetUsernameFunc
	GetPassword GetPasswordFunc
	GetOption   GetOptionFunc

	state MechanismState
}

// NewServerSession creates a session in the server role.
func NewServerSession() *ConnectionSession {
	return &ConnectionSession{Role: RoleServer}
}

// NewClientSession creates a session in the client role, with callbacks
// for supplying the username and password.
func NewClientSession(getUsername GetUsernameFunc, getPassword GetPasswordFunc) *ConnectionSession {
	return &ConnectionSession{Role: RoleClient, GetUsername: getUsername, GetPassword: getPassword}
}

// beginExchange resets the per-call identity correlation id; called at
// the start of every Start/Step so that a fail-path log line can be
// correlated to a single client operation without leaking a prior
// exchange's id into an unrelated one.
func (s *ConnectionSession) beginExchange() {
	s.IdentityID = uuid.UUID{}
}

// setIdentity records the identity correlation id for the current
// exchange; called by IdentityTokenIssuer.Issue when it mints a token.
func (s *ConnectionSession) setIdentity(id uuid.UUID) {
	s.IdentityID = id
}

// Bind attaches a MechanismState (as returned by Registry.CreateServer or
// CreateClient) and its Mechanism to the session, so that the session's
// Start and Step delegate to it.
func (s *ConnectionSession) Bind(state MechanismState, mech Mechanism) {
	s.state = state
	s.Mechanism = mech
}

// Start delegates to the bound mechanism state, resetting the identity
// correlation id first.
func (s *ConnectionSession) Start(input []byte) (Result, []byte, error) {
	s.beginExchange()
	if s.state == nil {
		return ResultBadParam, nil, ErrBadParam
	}
	return s.state.Start(input)
}

// Step delegates to the bound mechanism state, resetting the identity
// correlation id first.
func (s *ConnectionSession) Step(input []byte) (Result, []byte, error) {
	s.beginExchange()
	if s.state == nil {
		return ResultBadParam, nil, ErrBadParam
	}
	return s.state.Step(input)
}
