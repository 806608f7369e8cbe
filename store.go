// FILE: store.go
package sasl

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// secretsEnvVar is the environment variable that, when set, causes
// password files to be AES-256-CBC wrapped on disk (spec.md §6).
const secretsEnvVar = "COUCHBASE_CBSASL_SECRETS"

type secretsConfig struct {
	Cipher string `json:"cipher"`
	KeyB64 string `json:"key"`
	IVB64  string `json:"iv"`
}

func readSecretsConfig() (key, iv []byte, ok bool, err error) {
	raw := os.Getenv(secretsEnvVar)
	if raw == "" {
		return nil, nil, false, nil
	}
	var cfg secretsConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, nil, false, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, secretsEnvVar, err)
	}
	if cfg.Cipher != "AES_256_cbc" {
		return nil, nil, false, fmt.Errorf("%w: unsupported cipher %q", ErrInvalidFormat, cfg.Cipher)
	}
	key, err = base64.StdEncoding.DecodeString(cfg.KeyB64)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	iv, err = base64.StdEncoding.DecodeString(cfg.IVB64)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return key, iv, true, nil
}

// Store is the process-wide password database. Readers call Lookup();
// Load/Refresh replace the underlying snapshot atomically so in-flight
// sessions that already read a pointer keep a consistent, if stale,
// view (spec.md §5).
type Store struct {
	path string
	db   atomic.Pointer[UserDatabase]
}

// NewStore creates an empty store with no backing path. LoadFile or
// LoadBytes populate it; Refresh requires a path set by LoadFile.
func NewStore() *Store {
	s := &Store{}
	s.db.Store(NewUserDatabase(map[string]*User{}))
	return s
}

// Lookup returns the User record for username from the current snapshot.
func (s *Store) Lookup(username string) (*User, bool) {
	return s.db.Load().Lookup(username)
}

// LoadFile reads path (AES-256-CBC unwrapping it first if
// COUCHBASE_CBSASL_SECRETS is set) and installs the parsed database as
// the current snapshot. On any parse error, the existing in-memory
// database is preserved; I/O errors propagate unchanged.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	db, err := parseUserDatabase(data)
	if err != nil {
		return err
	}
	s.path = path
	s.db.Store(db)
	return nil
}

// LoadBytes parses literal bytes (AES-256-CBC unwrapping them first if
// COUCHBASE_CBSASL_SECRETS is set) and installs the parsed database as
// the current snapshot.
func (s *Store) LoadBytes(data []byte) error {
	db, err := parseUserDatabase(data)
	if err != nil {
		return err
	}
	s.db.Store(db)
	return nil
}

// Refresh reloads from the path last used by LoadFile. It is the
// implementation of the wire SASL_REFRESH operation.
func (s *Store) Refresh() error {
	if s.path == "" {
		return fmt.Errorf("%w: store has no backing file", ErrInvalidFormat)
	}
	return s.LoadFile(s.path)
}

// SaveFile serializes users (not the store's current snapshot) to path,
// AES-256-CBC wrapping it first if COUCHBASE_CBSASL_SECRETS is set.
func (s *Store) SaveFile(path string, users []*User) error {
	data, err := marshalUserDatabase(users)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func parseUserDatabase(data []byte) (*UserDatabase, error) {
	if key, iv, ok, err := readSecretsConfig(); err != nil {
		return nil, err
	} else if ok {
		plain, err := AES256CBCDecrypt(key, iv, data)
		if err != nil {
			return nil, err
		}
		data = plain
	}

	var doc struct {
		Users []json.RawMessage `json:"users"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreInvalidFormat, err)
	}

	users := make(map[string]*User, len(doc.Users))
	for _, raw := range doc.Users {
		u, err := parseUserJSON(raw)
		if err != nil {
			return nil, err
		}
		users[u.Username] = u
	}
	return NewUserDatabase(users), nil
}

var allowedUserKeys = map[string]bool{"n": true, "plain": true, "sha1": true, "sha256": true, "sha512": true}
var mechanismJSONKey = map[string]Mechanism{"sha1": MechanismScramSHA1, "sha256": MechanismScramSHA256, "sha512": MechanismScramSHA512}

func parseUserJSON(raw json.RawMessage) (*User, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreInvalidFormat, err)
	}
	for key := range fields {
		if !allowedUserKeys[key] {
			return nil, fmt.Errorf("%w: unknown user field %q", ErrStoreUnknownKey, key)
		}
	}

	nameRaw, ok := fields["n"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"n\"", ErrStoreInvalidFormat)
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
		return nil, fmt.Errorf("%w: invalid \"n\"", ErrStoreInvalidFormat)
	}

	u := &User{Username: name, Mechanisms: make(map[Mechanism]PasswordMetaData)}

	if plainRaw, ok := fields["plain"]; ok {
		var plainB64 string
		if err := json.Unmarshal(plainRaw, &plainB64); err != nil {
			return nil, fmt.Errorf("%w: invalid \"plain\"", ErrStoreInvalidFormat)
		}
		bytes, err := base64.StdEncoding.DecodeString(plainB64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid \"plain\" encoding", ErrStoreInvalidFormat)
		}
		u.Mechanisms[MechanismPlain] = PasswordMetaData{PasswordBytes: bytes}
	}

	for key, mech := range mechanismJSONKey {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		meta, err := parsePwdObj(raw)
		if err != nil {
			return nil, err
		}
		u.Mechanisms[mech] = meta
	}

	return u, nil
}

func parsePwdObj(raw json.RawMessage) (PasswordMetaData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return PasswordMetaData{}, fmt.Errorf("%w: %v", ErrStoreInvalidFormat, err)
	}
	if len(fields) != 3 {
		return PasswordMetaData{}, fmt.Errorf("%w: password object must have exactly 3 fields", ErrStoreInvalidFormat)
	}

	hRaw, ok := fields["h"]
	if !ok {
		return PasswordMetaData{}, fmt.Errorf("%w: missing \"h\"", ErrStoreInvalidFormat)
	}
	sRaw, ok := fields["s"]
	if !ok {
		return PasswordMetaData{}, fmt.Errorf("%w: missing \"s\"", ErrStoreInvalidFormat)
	}
	iRaw, ok := fields["i"]
	if !ok {
		return PasswordMetaData{}, fmt.Errorf("%w: missing \"i\"", ErrStoreInvalidFormat)
	}

	var hB64, sB64 string
	if err := json.Unmarshal(hRaw, &hB64); err != nil {
		return PasswordMetaData{}, fmt.Errorf("%w: \"h\" must be a string", ErrStoreInvalidFormat)
	}
	if err := json.Unmarshal(sRaw, &sB64); err != nil {
		return PasswordMetaData{}, fmt.Errorf("%w: \"s\" must be a string", ErrStoreInvalidFormat)
	}
	var iter json.Number
	if err := json.Unmarshal(iRaw, &iter); err != nil {
		return PasswordMetaData{}, fmt.Errorf("%w: \"i\" must be numeric", ErrStoreInvalidFormat)
	}
	iterVal, err := strconv.Atoi(iter.String())
	if err != nil || iterVal < 0 {
		return PasswordMetaData{}, fmt.Errorf("%w: \"i\" must be a non-negative integer", ErrStoreInvalidFormat)
	}

	h, err := base64.StdEncoding.DecodeString(hB64)
	if err != nil {
		return PasswordMetaData{}, fmt.Errorf("%w: invalid \"h\" encoding", ErrStoreInvalidFormat)
	}
	if _, err := base64.StdEncoding.DecodeString(sB64); err != nil {
		return PasswordMetaData{}, fmt.Errorf("%w: invalid \"s\" encoding", ErrStoreInvalidFormat)
	}

	return PasswordMetaData{PasswordBytes: h, SaltB64: sB64, IterationCount: iterVal}, nil
}

type userJSON struct {
	Name   string             `json:"n"`
	Plain  string             `json:"plain,omitempty"`
	SHA1   *pwdObjJSON        `json:"sha1,omitempty"`
	SHA256 *pwdObjJSON        `json:"sha256,omitempty"`
	SHA512 *pwdObjJSON        `json:"sha512,omitempty"`
}

type pwdObjJSON struct {
	H string `json:"h"`
	S string `json:"s"`
	I int    `json:"i"`
}

func marshalUserDatabase(users []*User) ([]byte, error) {
	doc := struct {
		Users []userJSON `json:"users"`
	}{}

	for _, u := range users {
		uj := userJSON{Name: u.Username}
		if meta, ok := u.Mechanisms[MechanismPlain]; ok {
			uj.Plain = base64.StdEncoding.EncodeToString(meta.PasswordBytes)
		}
		assign := func(mech Mechanism) *pwdObjJSON {
			meta, ok := u.Mechanisms[mech]
			if !ok {
				return nil
			}
			return &pwdObjJSON{
				H: base64.StdEncoding.EncodeToString(meta.PasswordBytes),
				S: meta.SaltB64,
				I: meta.IterationCount,
			}
		}
		uj.SHA1 = assign(MechanismScramSHA1)
		uj.SHA256 = assign(MechanismScramSHA256)
		uj.SHA512 = assign(MechanismScramSHA512)
		doc.Users = append(doc.Users, uj)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	if key, iv, ok, err := readSecretsConfig(); err != nil {
		return nil, err
	} else if ok {
		return AES256CBCEncrypt(key, iv, data)
	}
	return data, nil
}

// Convert performs the one-shot migration from a flat "USER [SP
// PASSWORD]" file to the canonical JSON schema, using Create to derive a
// full multi-mechanism User record for each line. Blank lines and lines
// starting with '#' are skipped; trailing '\r' is stripped.
func Convert(flatSource []byte) ([]byte, error) {
	var users []*User
	scanner := bufio.NewScanner(bytes.NewReader(flatSource))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		username := parts[0]
		password := ""
		if len(parts) == 2 {
			password = parts[1]
		}
		u, err := Create(username, password)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return marshalUserDatabase(users)
}
