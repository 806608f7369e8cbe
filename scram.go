// FILE: scram.go
package sasl

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// decodeAttributeList splits a comma-separated k=v attribute list per
// spec.md §4.5.1: single-character keys, duplicate keys rejected, value
// runs to the next comma or end of string.
func decodeAttributeList(s string) (map[byte]string, error) {
	attrs := make(map[byte]string)
	if s == "" {
		return attrs, nil
	}
	for _, part := range strings.Split(s, ",") {
		if len(part) < 2 || part[1] != '=' {
			return nil, fmt.Errorf("%w: malformed attribute %q", ErrSCRAMMissingAttribute, part)
		}
		key := part[0]
		if _, dup := attrs[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrSCRAMDuplicateAttribute, string(key))
		}
		attrs[key] = part[2:]
	}
	return attrs, nil
}

func addAttribute(b *strings.Builder, key byte, value string) {
	if b.Len() > 0 {
		b.WriteByte(',')
	}
	b.WriteByte(key)
	b.WriteByte('=')
	b.WriteString(value)
}

func validatePrintableNoComma(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ',' || c < 0x20 || c > 0x7e {
			return ErrSCRAMInvalidNonce
		}
	}
	return nil
}

func generateHexNonce(getCnonce GetCnonceFunc) (string, error) {
	if getCnonce != nil {
		n, err := getCnonce()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFail, err)
		}
		if err := validatePrintableNoComma(n); err != nil {
			return "", err
		}
		return n, nil
	}
	raw, err := RandomBytes(8)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func mechanismForAlgorithm(algo Algorithm) Mechanism {
	switch algo {
	case AlgorithmSHA1:
		return MechanismScramSHA1
	case AlgorithmSHA512:
		return MechanismScramSHA512
	default:
		return MechanismScramSHA256
	}
}

// clientKey, storedKeyOf and serverKeyOf derive the three RFC 5802 §3
// keys from a SaltedPassword.
func clientKey(algo Algorithm, saltedPassword []byte) ([]byte, error) {
	return HMAC(algo, saltedPassword, []byte("Client Key"))
}

func serverKeyOf(algo Algorithm, saltedPassword []byte) ([]byte, error) {
	return HMAC(algo, saltedPassword, []byte("Server Key"))
}

func storedKeyOf(algo Algorithm, clientKeyBytes []byte) ([]byte, error) {
	return Digest(algo, clientKeyBytes)
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// scramServerState implements the server role of RFC 5802: Expect-
// ClientFirst -> Expect-ClientFinal -> done.
type scramServerState struct {
	algo         Algorithm
	store        *Store
	externalAuth ExternalAuthBackend
	session      *ConnectionSession

	step int // 0 = expect client-first, 1 = expect client-final, 2 = done

	user                   *User
	nonce                  string
	clientFirstMessageBare string
	serverFirstMessage     string
}

func newScramServer(algo Algorithm, store *Store, externalAuth ExternalAuthBackend, session *ConnectionSession) MechanismState {
	return &scramServerState{algo: algo, store: store, externalAuth: externalAuth, session: session}
}

func (s *scramServerState) Start(input []byte) (Result, []byte, error) {
	if s.step != 0 {
		return ResultBadParam, nil, ErrSCRAMInvalidState
	}
	msg := string(input)

	if len(msg) < 2 || msg[0] != 'n' || msg[1] != ',' {
		return ResultBadParam, nil, ErrSCRAMChannelBinding
	}
	idx := strings.IndexByte(msg[2:], ',')
	if idx < 0 {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}
	bare := msg[2+idx+1:]

	attrs, err := decodeAttributeList(bare)
	if err != nil {
		return ResultBadParam, nil, err
	}
	if len(attrs) != 2 {
		return ResultBadParam, nil, ErrSCRAMUnknownAttribute
	}
	rawUsername, ok := attrs['n']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}
	clientNonce, ok := attrs['r']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}
	for key := range attrs {
		if key != 'n' && key != 'r' {
			return ResultBadParam, nil, ErrSCRAMUnknownAttribute
		}
	}
	if rawUsername == "" || clientNonce == "" {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}

	unescaped, err := unescapeUsername(rawUsername)
	if err != nil {
		return ResultBadParam, nil, err
	}
	username, err := saslPrep(unescaped)
	if err != nil {
		return ResultBadParam, nil, fmt.Errorf("%w: %v", ErrSCRAMInvalidUsername, err)
	}

	mech := mechanismForAlgorithm(s.algo)
	user, found := s.store.Lookup(username)
	if !found {
		user, err = CreateDummy(username, mech)
		if err != nil {
			return ResultNoMem, nil, err
		}
	}
	meta, ok := user.Password(mech)
	if !ok {
		return ResultNoMech, nil, ErrNoMech
	}

	var getCnonce GetCnonceFunc
	if s.session != nil {
		getCnonce = s.session.GetCnonce
	}
	serverNonce, err := generateHexNonce(getCnonce)
	if err != nil {
		return ResultNoMem, nil, err
	}
	s.nonce = clientNonce + serverNonce
	s.user = user
	s.clientFirstMessageBare = bare

	var b strings.Builder
	addAttribute(&b, 'r', s.nonce)
	addAttribute(&b, 's', meta.SaltB64)
	addAttribute(&b, 'i', strconv.Itoa(meta.IterationCount))
	s.serverFirstMessage = b.String()

	s.step = 1
	return ResultContinue, []byte(s.serverFirstMessage), nil
}

func (s *scramServerState) Step(input []byte) (Result, []byte, error) {
	if s.step != 1 {
		return ResultBadParam, nil, ErrSCRAMInvalidState
	}
	msg := string(input)

	attrs, err := decodeAttributeList(msg)
	if err != nil {
		return ResultBadParam, nil, err
	}
	proofB64, ok := attrs['p']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}

	cutIdx := strings.Index(msg, ",p=")
	if cutIdx < 0 {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}
	clientFinalMessageWithoutProof := msg[:cutIdx]

	authMessage := []byte(s.clientFirstMessageBare + "," + s.serverFirstMessage + "," + clientFinalMessageWithoutProof)

	meta, _ := s.user.Password(mechanismForAlgorithm(s.algo))
	saltedPassword := meta.PasswordBytes

	ck, err := clientKey(s.algo, saltedPassword)
	if err != nil {
		return ResultNoMem, nil, err
	}
	storedKey, err := storedKeyOf(s.algo, ck)
	if err != nil {
		return ResultNoMem, nil, err
	}
	clientSig, err := HMAC(s.algo, storedKey, authMessage)
	if err != nil {
		return ResultNoMem, nil, err
	}
	expectedProof := xorBytes(ck, clientSig)
	expectedProofB64 := base64.StdEncoding.EncodeToString(expectedProof)

	// The server-final-message is computed before the proof is resolved:
	// the ldap-dummy substitution and the v= signature are independent of
	// whether the proof actually matches (see the fail/is_dummy resolution
	// below, which governs only the returned Result).
	var out []byte
	if s.user.IsDummy && s.externalAuth != nil && s.externalAuth.Configured() {
		out = []byte("e=scram-not-supported-for-ldap-users")
	} else {
		serverKey, err := serverKeyOf(s.algo, saltedPassword)
		if err != nil {
			return ResultNoMem, nil, err
		}
		serverSig, err := HMAC(s.algo, serverKey, authMessage)
		if err != nil {
			return ResultNoMem, nil, err
		}
		out = []byte("v=" + base64.StdEncoding.EncodeToString(serverSig))
	}

	cmp := SecureCompare([]byte(proofB64), []byte(expectedProofB64))
	isDummy := 0
	if s.user.IsDummy {
		isDummy = 1
	}
	fail := cmp | isDummy

	s.step = 2

	if fail != 0 {
		if s.user.IsDummy {
			return ResultNoUser, out, ErrNoUser
		}
		return ResultPwErr, out, ErrPwErr
	}

	if s.session != nil {
		s.session.Username = s.user.Username
		s.session.Domain = DomainLocal
		s.session.Internal = s.user.Internal
	}
	return ResultOK, out, nil
}

// scramClientState implements the client role: Expect-SendClientFirst ->
// Expect-ServerFirst -> Expect-ServerFinal -> done.
type scramClientState struct {
	algo    Algorithm
	session *ConnectionSession

	step int // 0 = send client-first, 1 = expect server-first, 2 = expect server-final, 3 = done

	username               string
	clientNonce            string
	clientFirstMessageBare string
	saltedPassword         []byte
	authMessage            string
}

func newScramClient(algo Algorithm, session *ConnectionSession) MechanismState {
	return &scramClientState{algo: algo, session: session}
}

func (c *scramClientState) Start(input []byte) (Result, []byte, error) {
	if c.step != 0 {
		return ResultBadParam, nil, ErrSCRAMInvalidState
	}

	var getCnonce GetCnonceFunc
	var getUsername GetUsernameFunc
	if c.session != nil {
		getCnonce = c.session.GetCnonce
		getUsername = c.session.GetUsername
	}
	if getUsername == nil {
		return ResultBadParam, nil, ErrBadParam
	}

	nonce, err := generateHexNonce(getCnonce)
	if err != nil {
		return ResultFail, nil, err
	}
	c.clientNonce = nonce

	rawUsername, err := getUsername()
	if err != nil {
		return ResultFail, nil, fmt.Errorf("%w: %v", ErrFail, err)
	}
	username, err := saslPrep(rawUsername)
	if err != nil {
		return ResultBadParam, nil, fmt.Errorf("%w: %v", ErrSCRAMInvalidUsername, err)
	}
	c.username = username

	var bare strings.Builder
	addAttribute(&bare, 'n', escapeUsername(username))
	addAttribute(&bare, 'r', nonce)
	c.clientFirstMessageBare = bare.String()

	clientFirstMessage := "n,," + c.clientFirstMessageBare
	c.step = 1
	return ResultOK, []byte(clientFirstMessage), nil
}

func (c *scramClientState) Step(input []byte) (Result, []byte, error) {
	switch c.step {
	case 1:
		return c.stepServerFirst(input)
	case 2:
		return c.stepServerFinal(input)
	default:
		return ResultBadParam, nil, ErrSCRAMInvalidState
	}
}

func (c *scramClientState) stepServerFirst(input []byte) (Result, []byte, error) {
	attrs, err := decodeAttributeList(string(input))
	if err != nil {
		return ResultBadParam, nil, err
	}
	nonce, ok := attrs['r']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}
	saltB64, ok := attrs['s']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}
	iterStr, ok := attrs['i']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}

	// RFC 5802 §5.1 requires the combined nonce to begin with the
	// client's own nonce; the original implementation omits this check.
	if !strings.HasPrefix(nonce, c.clientNonce) {
		return ResultBadParam, nil, ErrSCRAMInvalidNonce
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return ResultBadParam, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	iter, err := strconv.Atoi(iterStr)
	if err != nil || iter < 1 {
		return ResultBadParam, nil, fmt.Errorf("%w: iteration count %q", ErrInvalidFormat, iterStr)
	}

	var getPassword GetPasswordFunc
	if c.session != nil {
		getPassword = c.session.GetPassword
	}
	if getPassword == nil {
		return ResultBadParam, nil, ErrBadParam
	}
	password, err := getPassword()
	if err != nil {
		return ResultFail, nil, fmt.Errorf("%w: %v", ErrFail, err)
	}

	saltedPassword, err := PBKDF2HMAC(c.algo, []byte(password), salt, iter)
	if err != nil {
		return ResultNoMem, nil, err
	}
	c.saltedPassword = saltedPassword

	var withoutProof strings.Builder
	addAttribute(&withoutProof, 'c', base64.StdEncoding.EncodeToString([]byte("n,,")))
	addAttribute(&withoutProof, 'r', nonce)
	clientFinalMessageWithoutProof := withoutProof.String()

	c.authMessage = c.clientFirstMessageBare + "," + string(input) + "," + clientFinalMessageWithoutProof

	ck, err := clientKey(c.algo, saltedPassword)
	if err != nil {
		return ResultNoMem, nil, err
	}
	storedKey, err := storedKeyOf(c.algo, ck)
	if err != nil {
		return ResultNoMem, nil, err
	}
	clientSig, err := HMAC(c.algo, storedKey, []byte(c.authMessage))
	if err != nil {
		return ResultNoMem, nil, err
	}
	proof := xorBytes(ck, clientSig)

	clientFinalMessage := clientFinalMessageWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof)

	c.step = 2
	return ResultContinue, []byte(clientFinalMessage), nil
}

func (c *scramClientState) stepServerFinal(input []byte) (Result, []byte, error) {
	attrs, err := decodeAttributeList(string(input))
	if err != nil {
		return ResultBadParam, nil, err
	}
	c.step = 3

	if _, ok := attrs['e']; ok {
		return ResultFail, nil, ErrFail
	}
	sigB64, ok := attrs['v']
	if !ok {
		return ResultBadParam, nil, ErrSCRAMMissingAttribute
	}

	serverKey, err := serverKeyOf(c.algo, c.saltedPassword)
	if err != nil {
		return ResultNoMem, nil, err
	}
	expectedSig, err := HMAC(c.algo, serverKey, []byte(c.authMessage))
	if err != nil {
		return ResultNoMem, nil, err
	}
	expectedSigB64 := base64.StdEncoding.EncodeToString(expectedSig)

	if SecureCompare([]byte(sigB64), []byte(expectedSigB64)) != 0 {
		return ResultFail, nil, ErrSCRAMServerAuthFailed
	}

	if c.session != nil {
		c.session.Username = c.username
		c.session.Domain = DomainLocal
	}
	return ResultOK, nil, nil
}
