// FILE: crypto.go
package sasl

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// Algorithm identifies a digest/HMAC/PBKDF2 primitive.
type Algorithm int

const (
	AlgorithmMD5 Algorithm = iota
	AlgorithmSHA1
	AlgorithmSHA256
	AlgorithmSHA512
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmMD5:
		return "MD5"
	case AlgorithmSHA1:
		return "SHA1"
	case AlgorithmSHA256:
		return "SHA256"
	case AlgorithmSHA512:
		return "SHA512"
	default:
		return "UNKNOWN"
	}
}

// DigestSize returns the output length in bytes of the given algorithm.
func DigestSize(algo Algorithm) int {
	switch algo {
	case AlgorithmMD5:
		return md5.Size
	case AlgorithmSHA1:
		return sha1.Size
	case AlgorithmSHA256:
		return sha256.Size
	case AlgorithmSHA512:
		return sha512.Size
	default:
		return 0
	}
}

func newHash(algo Algorithm) (func() hash.Hash, error) {
	switch algo {
	case AlgorithmMD5:
		return md5.New, nil
	case AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, algo)
	}
}

// IsSupported reports whether the given algorithm is usable on this platform.
// MD5 and SHA1 are always supported; SHA256/SHA512 require PBKDF2 support,
// which golang.org/x/crypto/pbkdf2 provides for every hash, so both are
// supported unconditionally too. The capability probe is kept as a real call (rather than always
// returning true) because the mechanism registry consults it uniformly
// for every algorithm, including ones a future platform build might lack.
func IsSupported(algo Algorithm) bool {
	_, err := newHash(algo)
	return err == nil
}

// Digest computes H(data) for the given algorithm.
func Digest(algo Algorithm, data []byte) ([]byte, error) {
	newH, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	h := newH()
	h.Write(data)
	return h.Sum(nil), nil
}

// HMAC computes HMAC(algo, key, data) per RFC 2104.
func HMAC(algo Algorithm, key, data []byte) ([]byte, error) {
	newH, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newH, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

// PBKDF2HMAC derives iter iterations of PBKDF2-HMAC(algo) per RFC 8018.
// MD5 is rejected: it is permitted for Digest/HMAC but never for key
// derivation.
func PBKDF2HMAC(algo Algorithm, passphrase, salt []byte, iter int) ([]byte, error) {
	if algo == AlgorithmMD5 {
		return nil, fmt.Errorf("%w: PBKDF2 with MD5", ErrUnsupportedAlgorithm)
	}
	if iter < 1 {
		return nil, fmt.Errorf("%w: iteration count %d", ErrInvalidFormat, iter)
	}
	newH, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(passphrase, salt, iter, DigestSize(algo), newH), nil
}

// AES256CBCEncrypt encrypts plaintext under a 32-byte key and 16-byte IV,
// using PKCS#7 padding.
func AES256CBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != 32 || len(iv) != aes.BlockSize {
		return nil, ErrInvalidKeyOrIV
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyOrIV, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// AES256CBCDecrypt decrypts ciphertext under a 32-byte key and 16-byte IV,
// stripping PKCS#7 padding.
func AES256CBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != 32 || len(iv) != aes.BlockSize {
		return nil, ErrInvalidKeyOrIV
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyOrIV, err)
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrDecryptionFailed
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrDecryptionFailed
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrDecryptionFailed
		}
	}
	return data[:len(data)-padLen], nil
}

// SecureCompare performs a constant-time comparison of a and b over the
// minimum of the two lengths and returns nonzero if they differ in either
// content or length. It never short-circuits on the first differing byte,
// so callers that must not leak timing (dummy-user SCRAM proof checks,
// PLAIN password checks) can rely on its cost depending only on input
// length, never on where the mismatch occurs.
func SecureCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	mismatch := subtle.ConstantTimeCompare(a[:n], b[:n]) ^ 1
	lenDiff := subtle.ConstantTimeEq(int32(len(a)), int32(len(b))) ^ 1
	return mismatch | lenDiff
}

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRNGFailure, err)
	}
	return b, nil
}
