// FILE: argon2.go
package sasl

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id parameters for the admin bootstrap secret, unrelated
// to the PBKDF2-based SCRAM/PLAIN secrets in user.go and not used by the
// wire mechanisms. cmd/cbsasladm exposes it through its hash-secret and
// verify-secret subcommands; no other subcommand checks it.
const (
	DefaultArgonTime    = 3         // iterations
	DefaultArgonMemory  = 64 * 1024 // 64 MB
	DefaultArgonThreads = 4
	DefaultArgonSaltLen = 16
	DefaultArgonKeyLen  = 32
)

// AdminSecretHasher holds a configured set of Argon2id parameters,
// following the same long-lived-object-plus-functional-options
// convention as identitytoken.go's IdentityTokenIssuer, rather than
// rebuilding a throwaway parameter struct on every call.
type AdminSecretHasher struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

// ArgonOption configures an AdminSecretHasher.
type ArgonOption func(*AdminSecretHasher)

// WithArgonTime sets Argon2 iterations.
func WithArgonTime(t uint32) ArgonOption {
	return func(h *AdminSecretHasher) {
		if t > 0 {
			h.time = t
		}
	}
}

// WithArgonMemory sets Argon2 memory in KiB.
func WithArgonMemory(m uint32) ArgonOption {
	return func(h *AdminSecretHasher) {
		if m > 0 {
			h.memory = m
		}
	}
}

// WithArgonThreads sets Argon2 parallelism.
func WithArgonThreads(t uint8) ArgonOption {
	return func(h *AdminSecretHasher) {
		if t > 0 {
			h.threads = t
		}
	}
}

// NewAdminSecretHasher builds a hasher with the package defaults,
// overridden by opts.
func NewAdminSecretHasher(opts ...ArgonOption) *AdminSecretHasher {
	h := &AdminSecretHasher{
		time:    DefaultArgonTime,
		memory:  DefaultArgonMemory,
		threads: DefaultArgonThreads,
		keyLen:  DefaultArgonKeyLen,
		saltLen: DefaultArgonSaltLen,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash creates a PHC-format Argon2id hash of an admin bootstrap secret;
// cmd/cbsasladm's hash-secret subcommand prints it and stores it nowhere.
func (h *AdminSecretHasher) Hash(secret string) (string, error) {
	if len(secret) < 8 {
		return "", ErrWeakPassword
	}

	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaltGenerationFailed, err)
	}

	hash := argon2.IDKey([]byte(secret), salt, h.time, h.memory, h.threads, h.keyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads, saltB64, hashB64), nil
}

// phcParams is the m=/t=/p= triple parsed out of a PHC-format hash; the
// hash itself carries the parameters it was produced with, so verifying
// never needs an AdminSecretHasher's own configuration.
type phcParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parsePHCHash(phcHash string) (p phcParams, salt, expectedHash []byte, err error) {
	parts := strings.Split(phcHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return phcParams{}, nil, nil, ErrPHCInvalidFormat
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("%w: %v", ErrPHCInvalidFormat, err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("%w: %v", ErrPHCInvalidSalt, err)
	}
	expectedHash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return phcParams{}, nil, nil, fmt.Errorf("%w: %v", ErrPHCInvalidHash, err)
	}
	return p, salt, expectedHash, nil
}

// VerifyAdminSecret checks secret against a PHC-format hash produced by Hash. It
// is a plain function rather than a method: verification replays the
// parameters embedded in phcHash itself, so it needs no
// AdminSecretHasher configuration.
func VerifyAdminSecret(secret, phcHash string) error {
	p, salt, expectedHash, err := parsePHCHash(phcHash)
	if err != nil {
		return err
	}

	computedHash := argon2.IDKey([]byte(secret), salt, p.time, p.memory, p.threads, uint32(len(expectedHash)))

	if subtle.ConstantTimeCompare(computedHash, expectedHash) != 1 {
		return ErrAdminAuthFailed
	}
	return nil
}

// HashAdminSecret is a convenience wrapper for callers that don't need a
// reusable AdminSecretHasher; it builds one, applies opts, and hashes.
func HashAdminSecret(secret string, opts ...ArgonOption) (string, error) {
	return NewAdminSecretHasher(opts...).Hash(secret)
}
