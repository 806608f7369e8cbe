// FILE: token.go
package sasl

import (
	"crypto/subtle"
	"sync"
)

// RevocationList is an in-memory set of revoked IdentityToken ids (the
// "jti_identity" claim), consulted by IdentityTokenIssuer.Verify before
// trusting an otherwise-valid token. Revocation is by id, not by token
// string, so a revoked token cannot be un-revoked by presenting it again
// under a different encoding.
type RevocationList struct {
	ids map[string]struct{}
	mu  sync.RWMutex
}

// NewRevocationList creates an empty revocation list.
func NewRevocationList() *RevocationList {
	return &RevocationList{ids: make(map[string]struct{})}
}

// Revoke marks an identity id as no longer trusted.
func (r *RevocationList) Revoke(identityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[identityID] = struct{}{}
}

// Unrevoke removes an identity id from the revocation list.
func (r *RevocationList) Unrevoke(identityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, identityID)
}

// IsRevoked reports whether identityID has been revoked, comparing
// against every stored id in constant time so the lookup's timing does
// not leak which entry (if any) matched.
func (r *RevocationList) IsRevoked(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	revoked := 0
	for stored := range r.ids {
		if subtle.ConstantTimeEq(int32(len(identityID)), int32(len(stored))) == 1 {
			revoked |= subtle.ConstantTimeCompare([]byte(identityID), []byte(stored))
		}
	}
	return revoked == 1
}
