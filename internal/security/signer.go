// Package security signs outgoing gateway messages and verifies the bank's
// signatures on responses.
package security

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey reports key material that cannot be parsed or used.
	ErrInvalidKey = errors.New("invalid key")
	// ErrUnsupportedAlgorithm reports a digest the gateway does not accept.
	ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")
)

// Algorithm is the digest paired with RSA PKCS#1 v1.5 signatures.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
)

// ParseAlgorithm accepts "SHA1", "sha-256", "RSA-SHA256" and similar spellings.
func ParseAlgorithm(s string) (Algorithm, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "RSA-")
	norm = strings.ReplaceAll(norm, "-", "")
	switch Algorithm(norm) {
	case SHA1:
		return SHA1, nil
	case SHA256:
		return SHA256, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
}

// Hash returns the crypto.Hash for a.
func (a Algorithm) Hash() (crypto.Hash, error) {
	switch a {
	case SHA1:
		return crypto.SHA1, nil
	case SHA256:
		return crypto.SHA256, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
}

// Signer produces base64 signatures over canonical messages.
// Implementations hold their key for their whole lifetime and are safe for
// concurrent use.
type Signer interface {
	// Sign signs message and returns the signature as standard base64.
	// An error means the signer itself is unusable, never a data problem.
	Sign(message string) (string, error)

	// Algorithm is the digest the signer uses.
	Algorithm() Algorithm
}

// Verifier checks base64 signatures over canonical messages.
type Verifier interface {
	// Verify reports whether signature is a valid signature of message.
	// Malformed signatures are reported as false.
	Verify(message, signature string) bool

	Algorithm() Algorithm
}
