// FILE: rbac.go
package sasl

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// Privilege is one bit of the RBAC permission space, in the order defined
// by cb::rbac::Privilege.
type Privilege int

const (
	PrivilegeRead Privilege = iota
	PrivilegeWrite
	PrivilegeSimpleStats
	PrivilegeStats
	PrivilegeBucketManagement
	PrivilegeNodeManagement
	PrivilegeSessionManagement
	PrivilegeAudit
	PrivilegeAuditManagement
	PrivilegeDcpConsumer
	PrivilegeDcpProducer
	PrivilegeTap
	PrivilegeMetaRead
	PrivilegeMetaWrite
	PrivilegeIdleConnection
	PrivilegeXattrRead
	PrivilegeSystemXattrRead
	PrivilegeXattrWrite
	PrivilegeSystemXattrWrite
	PrivilegeCollectionManagement
	PrivilegeSecurityManagement
	PrivilegeImpersonate

	privilegeCount
)

var privilegeNames = map[string]Privilege{
	"Read":                  PrivilegeRead,
	"Write":                 PrivilegeWrite,
	"SimpleStats":           PrivilegeSimpleStats,
	"Stats":                 PrivilegeStats,
	"BucketManagement":      PrivilegeBucketManagement,
	"NodeManagement":        PrivilegeNodeManagement,
	"SessionManagement":     PrivilegeSessionManagement,
	"Audit":                 PrivilegeAudit,
	"AuditManagement":       PrivilegeAuditManagement,
	"DcpConsumer":           PrivilegeDcpConsumer,
	"DcpProducer":           PrivilegeDcpProducer,
	"Tap":                   PrivilegeTap,
	"MetaRead":              PrivilegeMetaRead,
	"MetaWrite":             PrivilegeMetaWrite,
	"IdleConnection":        PrivilegeIdleConnection,
	"XattrRead":             PrivilegeXattrRead,
	"SystemXattrRead":       PrivilegeSystemXattrRead,
	"XattrWrite":            PrivilegeXattrWrite,
	"SystemXattrWrite":      PrivilegeSystemXattrWrite,
	"CollectionManagement":  PrivilegeCollectionManagement,
	"SecurityManagement":    PrivilegeSecurityManagement,
	"Impersonate":           PrivilegeImpersonate,
}

// globalOnlyPrivileges cannot be granted per-bucket; they are masked out
// when parsing a bucket's privilege list.
var globalOnlyPrivileges = map[Privilege]bool{
	PrivilegeNodeManagement:     true,
	PrivilegeSessionManagement:  true,
	PrivilegeAuditManagement:    true,
	PrivilegeSecurityManagement: true,
	PrivilegeImpersonate:        true,
	PrivilegeBucketManagement:   true,
}

func parsePrivilegeName(name string) (Privilege, bool) {
	p, ok := privilegeNames[name]
	return p, ok
}

// PrivilegeMask is a fixed-size bitset over the Privilege enum.
type PrivilegeMask uint32

func (m PrivilegeMask) has(p Privilege) bool {
	return m&(1<<uint(p)) != 0
}

func (m PrivilegeMask) with(p Privilege) PrivilegeMask {
	return m | (1 << uint(p))
}

func parsePrivilegeList(names []string, allowGlobalOnly bool) (PrivilegeMask, error) {
	var mask PrivilegeMask
	for _, name := range names {
		p, ok := parsePrivilegeName(name)
		if !ok {
			return 0, ErrUnknownPriv
		}
		if !allowGlobalOnly && globalOnlyPrivileges[p] {
			continue
		}
		mask = mask.with(p)
	}
	return mask, nil
}

// UserEntry is one RBAC record: a domain, a per-bucket privilege mask,
// and a global privilege mask.
type UserEntry struct {
	Domain     Domain
	Buckets    map[string]PrivilegeMask
	Privileges PrivilegeMask
}

type userEntryJSON struct {
	Domain     string              `json:"domain"`
	Buckets    map[string][]string `json:"buckets"`
	Privileges []string            `json:"privileges"`
}

// PrivilegeDatabase is the process-wide RBAC table. Every reload bumps
// generation so PrivilegeContext.Check can detect staleness without
// holding a reference back to the database.
type PrivilegeDatabase struct {
	generation uint64
	userdb     map[string]UserEntry
}

// LoadPrivilegeDatabase parses the RBAC JSON document described in
// spec.md §4.7.
func LoadPrivilegeDatabase(data []byte) (*PrivilegeDatabase, error) {
	var raw map[string]userEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	userdb := make(map[string]UserEntry, len(raw))
	for username, entry := range raw {
		var domain Domain
		switch entry.Domain {
		case "", "local":
			domain = DomainLocal
		case "external":
			domain = DomainExternal
		default:
			return nil, fmt.Errorf("%w: unknown domain %q", ErrInvalidFormat, entry.Domain)
		}

		globalMask, err := parsePrivilegeList(entry.Privileges, true)
		if err != nil {
			return nil, err
		}

		buckets := make(map[string]PrivilegeMask, len(entry.Buckets))
		for bucket, names := range entry.Buckets {
			mask, err := parsePrivilegeList(names, false)
			if err != nil {
				return nil, err
			}
			buckets[bucket] = mask
		}

		userdb[username] = UserEntry{Domain: domain, Buckets: buckets, Privileges: globalMask}
	}

	return &PrivilegeDatabase{userdb: userdb}, nil
}

// noBucketMask is the mask of the sentinel "no bucket selected" context: it
// grants every bucket privilege so that bucket enumeration works before a
// bucket is chosen.
var noBucketMask = func() PrivilegeMask {
	var m PrivilegeMask
	for p := Privilege(0); p < privilegeCount; p++ {
		m = m.with(p)
	}
	return m
}()

// CreateContext builds a PrivilegeContext for user scoped to bucket. An
// empty bucket name yields a context over global privileges only;
// "" combined with no bucket selection at all is represented by the
// caller using CreateInitialContext instead.
func (db *PrivilegeDatabase) CreateContext(username, bucket string) (PrivilegeContext, error) {
	entry, ok := db.userdb[username]
	if !ok {
		return PrivilegeContext{}, ErrNoSuchUser
	}

	if bucket == "" {
		return PrivilegeContext{generation: db.generation, mask: entry.Privileges}, nil
	}

	bucketMask, ok := entry.Buckets[bucket]
	if !ok {
		return PrivilegeContext{}, ErrNoSuchBucket
	}

	return PrivilegeContext{generation: db.generation, mask: bucketMask | entry.Privileges}, nil
}

// CreateInitialContext returns the sentinel "no bucket" context used
// before SELECT_BUCKET, which grants all bucket privileges.
func (db *PrivilegeDatabase) CreateInitialContext() PrivilegeContext {
	return PrivilegeContext{generation: db.generation, mask: noBucketMask}
}

// Generation returns the current generation counter.
func (db *PrivilegeDatabase) Generation() uint64 {
	return db.generation
}

// PrivilegeAccess is the outcome of a PrivilegeContext check.
type PrivilegeAccess int

const (
	PrivilegeOk PrivilegeAccess = iota
	PrivilegeFail
	PrivilegeStale
)

// PrivilegeContext is an O(1), generation-stamped snapshot of one user's
// effective privilege mask at one bucket scope. It holds no reference to
// the PrivilegeDatabase it was built from; staleness is detected purely
// by comparing generation numbers.
type PrivilegeContext struct {
	generation uint64
	mask       PrivilegeMask
}

// Check reports whether priv is granted, or Stale if db's generation has
// advanced since this context was built — the hot-path signal to rebuild
// via CreateContext.
func (c PrivilegeContext) Check(priv Privilege, currentGeneration uint64) PrivilegeAccess {
	if c.generation != currentGeneration {
		return PrivilegeStale
	}
	if c.mask.has(priv) {
		return PrivilegeOk
	}
	return PrivilegeFail
}

// RBACStore holds the process-wide, atomically-replaceable
// PrivilegeDatabase. Replacement bumps generation so outstanding
// PrivilegeContexts observe staleness on their next Check.
type RBACStore struct {
	mu sync.Mutex
	db atomic.Pointer[PrivilegeDatabase]
}

// NewRBACStore creates an empty RBAC store.
func NewRBACStore() *RBACStore {
	s := &RBACStore{}
	s.db.Store(&PrivilegeDatabase{})
	return s
}

// Load parses data and installs it as the current database, bumping
// generation.
func (s *RBACStore) Load(data []byte) error {
	next, err := LoadPrivilegeDatabase(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next.generation = s.db.Load().generation + 1
	s.db.Store(next)
	return nil
}

// Current returns the current database snapshot.
func (s *RBACStore) Current() *PrivilegeDatabase {
	return s.db.Load()
}

// CreateContext builds a context against the current database, applying
// the hot-path fallback protocol from spec.md §4.7: NoSuchBucket yields
// an empty (all-deny) context rather than propagating the error.
func (s *RBACStore) CreateContext(username, bucket string) (PrivilegeContext, error) {
	db := s.Current()
	ctx, err := db.CreateContext(username, bucket)
	if err == ErrNoSuchBucket {
		return PrivilegeContext{generation: db.generation}, nil
	}
	return ctx, err
}
