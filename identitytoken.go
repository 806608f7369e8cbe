// FILE: identitytoken.go
package sasl

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenLifetime bounds how long an IdentityToken remains valid
// after a successful authentication.
const DefaultTokenLifetime = 1 * time.Hour

// DefaultTokenLeeway is the clock-skew tolerance applied on verification.
const DefaultTokenLeeway = 5 * time.Minute

// identityClaims carries the outcome of a completed ConnectionSession
// exchange: enough to let a downstream service trust the identity
// without re-running SASL, scoped to one IdentityID per exchange.
type identityClaims struct {
	jwt.RegisteredClaims
	Domain     string `json:"domain"`
	Internal   bool   `json:"internal"`
	IdentityID string `json:"jti_identity,omitempty"`
}

// IdentityTokenIssuer signs and verifies IdentityTokens for authenticated
// sessions. It is a thin, stateless wrapper: sessions hold no reference
// to it, callers pass a *ConnectionSession that has already completed
// SASL_AUTH/SASL_STEP with ResultOK.
type IdentityTokenIssuer struct {
	algorithm   jwt.SigningMethod
	signKey     any
	verifyKey   any
	lifetime    time.Duration
	leeway      time.Duration
	issuer      string
	revocations *RevocationList
}

// IdentityTokenOption configures an IdentityTokenIssuer.
type IdentityTokenOption func(*IdentityTokenIssuer)

// WithTokenLifetime overrides DefaultTokenLifetime.
func WithTokenLifetime(d time.Duration) IdentityTokenOption {
	return func(i *IdentityTokenIssuer) {
		if d > 0 {
			i.lifetime = d
		}
	}
}

// WithTokenLeeway overrides DefaultTokenLeeway.
func WithTokenLeeway(d time.Duration) IdentityTokenOption {
	return func(i *IdentityTokenIssuer) {
		if d >= 0 {
			i.leeway = d
		}
	}
}

// WithTokenIssuer sets the issuer claim stamped on every minted token.
func WithTokenIssuer(iss string) IdentityTokenOption {
	return func(i *IdentityTokenIssuer) {
		i.issuer = iss
	}
}

// WithRevocationList wires a RevocationList that Verify consults before
// trusting an otherwise-valid token.
func WithRevocationList(r *RevocationList) IdentityTokenOption {
	return func(i *IdentityTokenIssuer) {
		i.revocations = r
	}
}

// newIdentityTokenIssuer builds the common struct shared by every
// constructor below; signKey is nil for verify-only instances.
func newIdentityTokenIssuer(algorithm jwt.SigningMethod, signKey, verifyKey any, opts ...IdentityTokenOption) *IdentityTokenIssuer {
	i := &IdentityTokenIssuer{
		algorithm: algorithm,
		signKey:   signKey,
		verifyKey: verifyKey,
		lifetime:  DefaultTokenLifetime,
		leeway:    DefaultTokenLeeway,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// NewIdentityTokenIssuer creates an HS256 issuer/verifier pair from a
// shared secret.
func NewIdentityTokenIssuer(secret []byte, opts ...IdentityTokenOption) (*IdentityTokenIssuer, error) {
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	return newIdentityTokenIssuer(jwt.SigningMethodHS256, secret, secret, opts...), nil
}

// NewIdentityTokenIssuerRSA creates an RS256 issuer bound to privateKey.
func NewIdentityTokenIssuerRSA(privateKey *rsa.PrivateKey, opts ...IdentityTokenOption) (*IdentityTokenIssuer, error) {
	if privateKey == nil {
		return nil, ErrTokenNoPrivateKey
	}
	return newIdentityTokenIssuer(jwt.SigningMethodRS256, privateKey, &privateKey.PublicKey, opts...), nil
}

// NewIdentityTokenVerifierRSA creates a verify-only RS256 issuer; Issue
// always fails since no private key is held.
func NewIdentityTokenVerifierRSA(publicKey *rsa.PublicKey, opts ...IdentityTokenOption) (*IdentityTokenIssuer, error) {
	if publicKey == nil {
		return nil, ErrTokenNoPublicKey
	}
	return newIdentityTokenIssuer(jwt.SigningMethodRS256, nil, publicKey, opts...), nil
}

// Issue mints an IdentityToken for a session that has completed
// authentication (Username set, Domain resolved). It stamps a fresh
// IdentityID onto the session so later log lines and the token itself
// share a correlation id.
func (i *IdentityTokenIssuer) Issue(session *ConnectionSession) (string, error) {
	if session == nil || session.Username == "" {
		return "", ErrTokenNotAuthenticated
	}
	if i.signKey == nil {
		return "", ErrTokenNoPrivateKey
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRNGFailure, err)
	}
	session.setIdentity(id)

	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Username,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
		Domain:     session.Domain.String(),
		Internal:   session.Internal,
		IdentityID: id.String(),
	}

	token := jwt.NewWithClaims(i.algorithm, claims)
	return token.SignedString(i.signKey)
}

// Verify validates tokenString and returns the username and domain it
// asserts.
func (i *IdentityTokenIssuer) Verify(tokenString string) (username string, domain Domain, err error) {
	parser := jwt.NewParser(
		jwt.WithLeeway(i.leeway),
		jwt.WithIssuer(i.issuer),
		jwt.WithValidMethods([]string{i.algorithm.Alg()}),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, &identityClaims{}, func(*jwt.Token) (any, error) {
		return i.verifyKey, nil
	})
	if err != nil {
		return "", DomainLocal, mapTokenError(err)
	}

	claims, ok := token.Claims.(*identityClaims)
	if !ok || !token.Valid {
		return "", DomainLocal, ErrTokenMalformed
	}
	if i.revocations != nil && i.revocations.IsRevoked(claims.IdentityID) {
		return "", DomainLocal, ErrTokenInvalid
	}

	d := DomainLocal
	if claims.Domain == DomainExternal.String() {
		d = DomainExternal
	}
	return claims.Subject, d, nil
}

// tokenErrorTable maps jwt library sentinels to package-level sentinels,
// checked in order against the error chain returned by the parser.
var tokenErrorTable = []struct {
	from error
	to   error
}{
	{jwt.ErrTokenExpired, ErrTokenExpired},
	{jwt.ErrTokenNotValidYet, ErrTokenNotYetValid},
	{jwt.ErrTokenSignatureInvalid, ErrTokenInvalidSignature},
	{jwt.ErrTokenInvalidIssuer, ErrTokenMissingClaim},
	{jwt.ErrTokenMalformed, ErrTokenMalformed},
	{jwt.ErrTokenUnverifiable, ErrTokenMalformed},
}

func mapTokenError(err error) error {
	for _, entry := range tokenErrorTable {
		if errors.Is(err, entry.from) {
			return fmt.Errorf("%w: %v", entry.to, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}

// ParseRSAPrivateKeyPEM parses a PEM-encoded PKCS#1 RSA private key, for
// callers wiring NewIdentityTokenIssuerRSA from config.
func ParseRSAPrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrRSAInvalidPEM
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrRSAInvalidPrivateKey
	}
	return key, nil
}

// ParseRSAPublicKeyPEM parses a PEM-encoded PKIX RSA public key.
func ParseRSAPublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrRSAInvalidPEM
	}
	pubInterface, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, ErrRSAInvalidPublicKey
	}
	pubKey, ok := pubInterface.(*rsa.PublicKey)
	if !ok {
		return nil, ErrRSANotPublicKey
	}
	return pubKey, nil
}
