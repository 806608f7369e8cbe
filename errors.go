// FILE: errors.go
package sasl

import "errors"

// Crypto primitive errors
var (
	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")
	ErrInvalidKeyOrIV       = errors.New("crypto: invalid key or iv length")
	ErrDecryptionFailed     = errors.New("crypto: decryption failed")
	ErrRNGFailure           = errors.New("crypto: random number generator failure")
)

// Parsing and format errors
var (
	ErrInvalidFormat = errors.New("sasl: invalid format")
)

// Mechanism / protocol errors, one per spec.md §7 error kind
var (
	ErrBadParam = errors.New("sasl: bad parameter")
	ErrNoMech   = errors.New("sasl: no such mechanism")
	ErrNoUser   = errors.New("sasl: no such user")
	ErrPwErr    = errors.New("sasl: password verification failed")
	ErrFail     = errors.New("sasl: mechanism failure")
)

// RBAC errors
var (
	ErrNoSuchUser   = errors.New("rbac: no such user")
	ErrNoSuchBucket = errors.New("rbac: no such bucket")
	ErrUnknownPriv  = errors.New("rbac: unknown privilege name")
)

// Admin bootstrap secret errors (cmd/cbsasladm hash-secret/verify-secret)
var (
	ErrWeakPassword         = errors.New("admin: password must be at least 8 characters")
	ErrPHCInvalidFormat     = errors.New("admin: invalid PHC hash format")
	ErrPHCInvalidSalt       = errors.New("admin: invalid PHC salt encoding")
	ErrPHCInvalidHash       = errors.New("admin: invalid PHC hash encoding")
	ErrSaltGenerationFailed = errors.New("admin: failed to generate salt")
	ErrAdminAuthFailed      = errors.New("admin: bootstrap secret verification failed")
)

// Password store errors
var (
	ErrStoreInvalidFormat = errors.New("store: invalid password file format")
	ErrStoreUnknownKey    = errors.New("store: unknown field in password record")
)

// SCRAM-specific errors
var (
	ErrSCRAMInvalidNonce       = errors.New("scram: invalid or non-matching nonce")
	ErrSCRAMMissingAttribute   = errors.New("scram: missing mandatory attribute")
	ErrSCRAMDuplicateAttribute = errors.New("scram: duplicate attribute key")
	ErrSCRAMUnknownAttribute   = errors.New("scram: unsupported attribute key")
	ErrSCRAMChannelBinding     = errors.New("scram: channel binding is not supported")
	ErrSCRAMInvalidUsername    = errors.New("scram: invalid username encoding")
	ErrSCRAMServerAuthFailed   = errors.New("scram: server signature verification failed")
	ErrSCRAMInvalidState       = errors.New("scram: mechanism used out of sequence")
)

// Identity token errors (JWT-backed identity assertion, see SPEC_FULL §3)
var (
	ErrTokenNotAuthenticated  = errors.New("token: session has not completed authentication")
	ErrTokenInvalid           = errors.New("token: invalid or expired identity token")
	ErrTokenMalformed         = errors.New("token: malformed structure")
	ErrTokenExpired           = errors.New("token: expired")
	ErrTokenNotYetValid       = errors.New("token: not yet valid")
	ErrTokenInvalidSignature  = errors.New("token: invalid signature")
	ErrTokenAlgorithmMismatch = errors.New("token: algorithm mismatch")
	ErrTokenMissingClaim      = errors.New("token: missing required claim")
	ErrTokenNoPrivateKey      = errors.New("token: private key required for signing")
	ErrTokenNoPublicKey       = errors.New("token: public key required for verification")
	ErrSecretTooShort         = errors.New("token: signing secret must be at least 32 bytes")
)

// RSA key parsing errors, used by the PEM-encoded identity token key helpers
var (
	ErrRSAInvalidPEM        = errors.New("rsa: failed to parse PEM block")
	ErrRSAInvalidPrivateKey = errors.New("rsa: invalid private key format")
	ErrRSAInvalidPublicKey  = errors.New("rsa: invalid public key format")
	ErrRSANotPublicKey      = errors.New("rsa: not an RSA public key")
)
