// FILE: plain.go
package sasl

import (
	"bytes"
	"fmt"
)

// plainServerState implements RFC 4616 PLAIN in a single round trip: the
// whole exchange completes in Start, Step is never expected to be called.
type plainServerState struct {
	store        *Store
	externalAuth ExternalAuthBackend
	session      *ConnectionSession
	done         bool
}

func newPlainServer(store *Store, externalAuth ExternalAuthBackend, session *ConnectionSession) MechanismState {
	return &plainServerState{store: store, externalAuth: externalAuth, session: session}
}

func (p *plainServerState) Start(input []byte) (Result, []byte, error) {
	if p.done {
		return ResultBadParam, nil, ErrSCRAMInvalidState
	}
	p.done = true

	parts := bytes.SplitN(input, []byte{0}, 3)
	if len(parts) != 3 {
		return ResultBadParam, nil, ErrBadParam
	}
	// parts[0] is authzid, ignored.
	username := string(parts[1])
	password := string(parts[2])

	user, found := p.store.Lookup(username)
	dummy := !found
	if found {
		if _, ok := user.Password(MechanismPlain); !ok {
			dummy = true
		}
	}

	if dummy && p.externalAuth != nil && p.externalAuth.Configured() {
		if err := p.externalAuth.Authenticate(username, password); err != nil {
			return ResultPwErr, nil, fmt.Errorf("%w: %v", ErrPwErr, err)
		}
		if p.session != nil {
			p.session.Username = username
			p.session.Domain = DomainExternal
		}
		return ResultOK, nil, nil
	}

	if dummy {
		var err error
		user, err = CreateDummy(username, MechanismPlain)
		if err != nil {
			return ResultNoMem, nil, err
		}
	}

	meta, _ := user.Password(MechanismPlain)
	if len(meta.PasswordBytes) < DigestSize(AlgorithmSHA1) {
		return ResultNoMem, nil, ErrInvalidFormat
	}
	salt := meta.PasswordBytes[:len(meta.PasswordBytes)-DigestSize(AlgorithmSHA1)]
	storedDigest := meta.PasswordBytes[len(meta.PasswordBytes)-DigestSize(AlgorithmSHA1):]

	computed, err := HMAC(AlgorithmSHA1, salt, []byte(password))
	if err != nil {
		return ResultNoMem, nil, err
	}

	cmp := SecureCompare(computed, storedDigest)
	isDummy := 0
	if dummy {
		isDummy = 1
	}
	fail := cmp | isDummy

	if fail != 0 {
		if dummy {
			return ResultNoUser, nil, ErrNoUser
		}
		return ResultPwErr, nil, ErrPwErr
	}

	if p.session != nil {
		p.session.Username = user.Username
		p.session.Domain = DomainLocal
		p.session.Internal = user.Internal
	}
	return ResultOK, nil, nil
}

func (p *plainServerState) Step(input []byte) (Result, []byte, error) {
	return ResultBadParam, nil, ErrSCRAMInvalidState
}

// plainClientState emits the single PLAIN client message.
type plainClientState struct {
	session *ConnectionSession
	done    bool
}

func newPlainClient(session *ConnectionSession) MechanismState {
	return &plainClientState{session: session}
}

func (p *plainClientState) Start(input []byte) (Result, []byte, error) {
	if p.done {
		return ResultBadParam, nil, ErrSCRAMInvalidState
	}
	p.done = true

	if p.session == nil || p.session.GetUsername == nil || p.session.GetPassword == nil {
		return ResultBadParam, nil, ErrBadParam
	}
	username, err := p.session.GetUsername()
	if err != nil {
		return ResultFail, nil, err
	}
	password, err := p.session.GetPassword()
	if err != nil {
		return ResultFail, nil, err
	}

	out := append([]byte{0}, append([]byte(username), append([]byte{0}, []byte(password)...)...)...)
	return ResultOK, out, nil
}

func (p *plainClientState) Step(input []byte) (Result, []byte, error) {
	return ResultBadParam, nil, ErrSCRAMInvalidState
}
