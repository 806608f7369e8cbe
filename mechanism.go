// FILE: mechanism.go
package sasl

import (
	"strings"
	"sync"
)

// Mechanism identifies a SASL authentication mechanism.
type Mechanism int

const (
	MechanismUnknown Mechanism = iota
	MechanismPlain
	MechanismScramSHA1
	MechanismScramSHA256
	MechanismScramSHA512
)

func (m Mechanism) String() string {
	switch m {
	case MechanismPlain:
		return "PLAIN"
	case MechanismScramSHA1:
		return "SCRAM-SHA1"
	case MechanismScramSHA256:
		return "SCRAM-SHA256"
	case MechanismScramSHA512:
		return "SCRAM-SHA512"
	default:
		return "UNKNOWN"
	}
}

// algorithm returns the digest algorithm a SCRAM mechanism is parameterized
// over. Only valid for the three SCRAM mechanisms.
func (m Mechanism) algorithm() Algorithm {
	switch m {
	case MechanismScramSHA1:
		return AlgorithmSHA1
	case MechanismScramSHA256:
		return AlgorithmSHA256
	case MechanismScramSHA512:
		return AlgorithmSHA512
	default:
		return AlgorithmSHA256
	}
}

// ParseMechanism resolves a mechanism name by strict exact match.
func ParseMechanism(name string) Mechanism {
	switch name {
	case "PLAIN":
		return MechanismPlain
	case "SCRAM-SHA1":
		return MechanismScramSHA1
	case "SCRAM-SHA256":
		return MechanismScramSHA256
	case "SCRAM-SHA512":
		return MechanismScramSHA512
	default:
		return MechanismUnknown
	}
}

// allMechanisms is the fixed order mechanisms are advertised in, matching
// the original implementation's preference for strongest-first.
var allMechanisms = []Mechanism{MechanismScramSHA512, MechanismScramSHA256, MechanismScramSHA1, MechanismPlain}

// Registry enumerates enabled mechanisms and constructs per-mechanism
// state objects for the server and client roles. The enabled-mechanism
// sets it holds are intended to be constructed once and shared
// process-wide; the default iteration count is not held here but in
// user.go's package-level atomic, which SetDefaultIterationCount updates.
type Registry struct {
	mu                sync.RWMutex
	enabled           map[Mechanism]bool
	sslSaslMechanisms map[Mechanism]bool
	store             *Store
	externalAuth      ExternalAuthBackend
}

// ExternalAuthBackend models a delegated authority (e.g. saslauthd) that
// PLAIN can defer to for users absent from the local Store, and whose
// presence changes the SCRAM dummy-user error text. Only the interface is
// specified; no implementation ships here (spec.md §1 Out of scope).
type ExternalAuthBackend interface {
	// Configured reports whether the backend is currently wired up.
	Configured() bool
	// Authenticate checks username/password against the external system.
	Authenticate(username, password string) error
}

// NewRegistry creates a mechanism registry bound to the given password
// store. All mechanisms supported on this platform are enabled by
// default.
func NewRegistry(store *Store) *Registry {
	r := &Registry{
		enabled:           make(map[Mechanism]bool),
		sslSaslMechanisms: make(map[Mechanism]bool),
		store:             store,
	}
	for _, m := range allMechanisms {
		r.enabled[m] = true
		r.sslSaslMechanisms[m] = true
	}
	return r
}

// SetEnabledMechanisms restricts the advertised set from a CSV list, as
// read from the "sasl mechanisms" config option.
func (r *Registry) SetEnabledMechanisms(csv string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := parseMechanismCSV(csv)
	for _, m := range allMechanisms {
		r.enabled[m] = set[m]
	}
}

// SetSSLEnabledMechanisms restricts the SSL-only advertised set from a CSV
// list, as read from the "ssl sasl mechanisms" config option.
func (r *Registry) SetSSLEnabledMechanisms(csv string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := parseMechanismCSV(csv)
	for _, m := range allMechanisms {
		r.sslSaslMechanisms[m] = set[m]
	}
}

func parseMechanismCSV(csv string) map[Mechanism]bool {
	set := make(map[Mechanism]bool)
	for _, name := range strings.Split(csv, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m := ParseMechanism(name); m != MechanismUnknown {
			set[m] = true
		}
	}
	return set
}

// SetExternalAuthBackend wires an external auth delegate used by PLAIN for
// unknown local users, and which changes SCRAM's dummy-user error text.
func (r *Registry) SetExternalAuthBackend(b ExternalAuthBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externalAuth = b
}

// SetDefaultIterationCount updates the process-wide PBKDF2 iteration count
// used for newly generated SCRAM secrets, as read from the "hmac
// iteration count" config option. It delegates to the User-factory-owned
// atomic (see user.go) since the count is a single process-wide value,
// not a per-registry one.
func (r *Registry) SetDefaultIterationCount(n int32) {
	SetDefaultIterationCount(n)
}

// ListMechanisms returns the enabled subset intersected with build-time
// availability, as a space-separated string (the wire convention for
// LIST_MECHANISMS), for the plaintext or SSL-gated advertisement list.
func (r *Registry) ListMechanisms(overSSL bool) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, m := range allMechanisms {
		if m == MechanismPlain && !overSSL {
			continue // PLAIN only offered over a confidentiality-protected transport
		}
		set := r.enabled
		if overSSL {
			set = r.sslSaslMechanisms
		}
		if !set[m] {
			continue
		}
		if m != MechanismPlain && !IsSupported(m.algorithm()) {
			continue
		}
		names = append(names, m.String())
	}
	return strings.Join(names, " ")
}

// Result is the outcome of a mechanism Start or Step call, mirroring the
// wire return codes in spec.md §6.
type Result int

const (
	ResultOK Result = iota
	ResultContinue
	ResultFail
	ResultNoMem
	ResultBadParam
	ResultNoMech
	ResultNoUser
	ResultPwErr
	ResultNoRBACProfile
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultContinue:
		return "CONTINUE"
	case ResultFail:
		return "FAIL"
	case ResultNoMem:
		return "NOMEM"
	case ResultBadParam:
		return "BADPARAM"
	case ResultNoMech:
		return "NOMECH"
	case ResultNoUser:
		return "NOUSER"
	case ResultPwErr:
		return "PWERR"
	case ResultNoRBACProfile:
		return "NO_RBAC_PROFILE"
	default:
		return "UNKNOWN"
	}
}

// MechanismState is the per-session state object for one authentication
// exchange: a SCRAM state machine in one of its roles, or a PLAIN check.
type MechanismState interface {
	Start(input []byte) (Result, []byte, error)
	Step(input []byte) (Result, []byte, error)
}

// CreateServer instantiates server-side mechanism state bound to session.
func (r *Registry) CreateServer(mech Mechanism, session *ConnectionSession) (MechanismState, error) {
	r.mu.RLock()
	enabled := r.enabled[mech]
	externalAuth := r.externalAuth
	r.mu.RUnlock()

	if mech == MechanismUnknown || !enabled {
		return nil, ErrNoMech
	}

	switch mech {
	case MechanismPlain:
		return newPlainServer(r.store, externalAuth, session), nil
	default:
		return newScramServer(mech.algorithm(), r.store, externalAuth, session), nil
	}
}

// CreateClient instantiates client-side mechanism state bound to session.
func (r *Registry) CreateClient(mech Mechanism, session *ConnectionSession) (MechanismState, error) {
	if mech == MechanismUnknown {
		return nil, ErrNoMech
	}

	switch mech {
	case MechanismPlain:
		return newPlainClient(session), nil
	default:
		return newScramClient(mech.algorithm(), session), nil
	}
}
