// FILE: user.go
package sasl

import (
	"encoding/base64"
	"sync/atomic"
)

// defaultIterationCount is the process-wide default PBKDF2 iteration
// count used when generating new SCRAM secrets, starting at
// DefaultIterationCount. It is read and updated atomically so the mechanism registry's "hmac iteration count" option
// callback can change it without locking out in-flight authentications.
var defaultIterationCount int32 = DefaultIterationCount

const DefaultIterationCount = 4096

// SetDefaultIterationCount updates the process-wide default, as invoked by
// the "hmac iteration count" config option callback (spec.md §6).
func SetDefaultIterationCount(n int32) {
	if n > 0 {
		atomic.StoreInt32(&defaultIterationCount, n)
	}
}

// GetDefaultIterationCount returns the current process-wide default.
func GetDefaultIterationCount() int32 {
	return atomic.LoadInt32(&defaultIterationCount)
}

// PasswordMetaData holds the per-(user, mechanism) salted secret.
type PasswordMetaData struct {
	// PasswordBytes is the salted-hashed secret: PBKDF2 output for SCRAM
	// mechanisms, or salt(16)||HMAC_SHA1(salt, password) for PLAIN.
	PasswordBytes []byte
	// SaltB64 is the base64-encoded salt; empty for PLAIN, whose salt is
	// embedded in PasswordBytes instead.
	SaltB64 string
	// IterationCount is unused for PLAIN.
	IterationCount int
}

// Salt decodes SaltB64.
func (p PasswordMetaData) Salt() []byte {
	if p.SaltB64 == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(p.SaltB64)
	if err != nil {
		return nil
	}
	return b
}

// User is a password-database record for one username, with one secret
// per supported mechanism.
type User struct {
	Username   string
	Internal   bool
	Mechanisms map[Mechanism]PasswordMetaData
	// IsDummy marks a fabricated record returned by CreateDummy. The
	// server mechanism state combines it with the constant-time proof
	// comparison ("fail = cmp | is_dummy" in scram.go), so a dummy user
	// never authenticates; scram.go also reads it to choose the e= error
	// text when an external auth backend is configured.
	IsDummy bool
}

// Password returns the secret for the given mechanism and whether it was
// present.
func (u *User) Password(mech Mechanism) (PasswordMetaData, bool) {
	p, ok := u.Mechanisms[mech]
	return p, ok
}

// Create generates a fresh User record for username/password, populating
// a PLAIN entry and a SCRAM entry for every mechanism this platform
// supports.
func Create(username, password string) (*User, error) {
	u := &User{Username: username, Mechanisms: make(map[Mechanism]PasswordMetaData)}

	plainMeta, err := derivePlainSecret(password)
	if err != nil {
		return nil, err
	}
	u.Mechanisms[MechanismPlain] = plainMeta

	for _, mech := range []Mechanism{MechanismScramSHA1, MechanismScramSHA256, MechanismScramSHA512} {
		algo := mech.algorithm()
		if !IsSupported(algo) {
			continue
		}
		meta, err := deriveScramSecret(algo, password, int(GetDefaultIterationCount()))
		if err != nil {
			return nil, err
		}
		u.Mechanisms[mech] = meta
	}

	return u, nil
}

// CreateDummy generates a fabricated User for the one requested mechanism,
// using freshly-generated random bytes in place of a real password. The
// shape (salt length, iteration count, PasswordBytes length) is
// indistinguishable from a real user's record, so that an attacker
// probing for usernames sees identical timing and response structure
// whether or not the user exists.
func CreateDummy(username string, mech Mechanism) (*User, error) {
	u := &User{Username: username, Mechanisms: make(map[Mechanism]PasswordMetaData), IsDummy: true}

	randomPassword, err := RandomBytes(32)
	if err != nil {
		return nil, err
	}

	switch mech {
	case MechanismPlain:
		meta, err := derivePlainSecret(string(randomPassword))
		if err != nil {
			return nil, err
		}
		u.Mechanisms[MechanismPlain] = meta
	default:
		algo := mech.algorithm()
		meta, err := deriveScramSecret(algo, string(randomPassword), int(GetDefaultIterationCount()))
		if err != nil {
			return nil, err
		}
		u.Mechanisms[mech] = meta
	}

	return u, nil
}

func derivePlainSecret(password string) (PasswordMetaData, error) {
	salt, err := RandomBytes(16)
	if err != nil {
		return PasswordMetaData{}, err
	}
	digest, err := HMAC(AlgorithmSHA1, salt, []byte(password))
	if err != nil {
		return PasswordMetaData{}, err
	}
	return PasswordMetaData{PasswordBytes: append(append([]byte{}, salt...), digest...)}, nil
}

func deriveScramSecret(algo Algorithm, password string, iter int) (PasswordMetaData, error) {
	salt, err := RandomBytes(DigestSize(algo))
	if err != nil {
		return PasswordMetaData{}, err
	}
	key, err := PBKDF2HMAC(algo, []byte(password), salt, iter)
	if err != nil {
		return PasswordMetaData{}, err
	}
	return PasswordMetaData{
		PasswordBytes:  key,
		SaltB64:        base64.StdEncoding.EncodeToString(salt),
		IterationCount: iter,
	}, nil
}

// UserDatabase is an immutable username->User snapshot. A new snapshot is
// built on every Store load/refresh and swapped in atomically; readers
// holding a reference to an old snapshot continue to see a consistent,
// if stale, view.
type UserDatabase struct {
	users map[string]*User
}

// NewUserDatabase wraps a username->User map into an immutable snapshot.
func NewUserDatabase(users map[string]*User) *UserDatabase {
	return &UserDatabase{users: users}
}

// Lookup returns the User record for username, if present.
func (d *UserDatabase) Lookup(username string) (*User, bool) {
	if d == nil {
		return nil, false
	}
	u, ok := d.users[username]
	return u, ok
}
