// FILE: saslprep.go
package sasl

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// saslPrep normalizes a username or password per RFC 4013 (the SASLprep
// profile of stringprep). golang.org/x/text implements the modern
// replacement for stringprep, the PRECIS OpaqueString profile, which
// SASLprep itself was superseded by in later SASL mechanism drafts; it
// is used here instead of hand-rolling stringprep's bidi/mapping tables.
func saslPrep(s string) (string, error) {
	out, err := precis.OpaqueString.String(s)
	if err != nil {
		return "", err
	}
	return out, nil
}

// escapeUsername escapes '=' and ',' per RFC 5802 §5.1 so the username can
// be embedded as the value of an 'n=' attribute.
func escapeUsername(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

// unescapeUsername reverses escapeUsername, rejecting any other use of '='.
func unescapeUsername(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			b.WriteByte(s[i])
			continue
		}
		if i+3 > len(s) {
			return "", ErrSCRAMInvalidUsername
		}
		switch s[i+1 : i+3] {
		case "2C":
			b.WriteByte(',')
		case "3D":
			b.WriteByte('=')
		default:
			return "", ErrSCRAMInvalidUsername
		}
		i += 2
	}
	return b.String(), nil
}
