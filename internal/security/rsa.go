package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// RSASigner signs with an in-memory RSA private key.
type RSASigner struct {
	key  *rsa.PrivateKey
	alg  Algorithm
	hash crypto.Hash
}

// NewRSASigner validates the key and the algorithm up front so that a
// misconfiguration fails at construction and not per request.
func NewRSASigner(key *rsa.PrivateKey, alg Algorithm) (*RSASigner, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: private key is nil", ErrInvalidKey)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	h, err := alg.Hash()
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: key, alg: alg, hash: h}, nil
}

// NewRSASignerFromPEM parses a PKCS#1 or PKCS#8 PEM private key.
func NewRSASignerFromPEM(pemBytes []byte, alg Algorithm) (*RSASigner, error) {
	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return NewRSASigner(key, alg)
}

func (s *RSASigner) Sign(message string) (string, error) {
	digest := s.hash.New()
	digest.Write([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, s.hash, digest.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("rsa sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (s *RSASigner) Algorithm() Algorithm { return s.alg }

// PublicKey returns the public half of the signing key.
func (s *RSASigner) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// RSAVerifier checks signatures against an RSA public key.
type RSAVerifier struct {
	key  *rsa.PublicKey
	alg  Algorithm
	hash crypto.Hash
}

func NewRSAVerifier(key *rsa.PublicKey, alg Algorithm) (*RSAVerifier, error) {
	if key == nil || key.N == nil {
		return nil, fmt.Errorf("%w: public key is nil", ErrInvalidKey)
	}
	h, err := alg.Hash()
	if err != nil {
		return nil, err
	}
	return &RSAVerifier{key: key, alg: alg, hash: h}, nil
}

// NewRSAVerifierFromPEM parses a PKIX, PKCS#1 or certificate PEM public key.
func NewRSAVerifierFromPEM(pemBytes []byte, alg Algorithm) (*RSAVerifier, error) {
	key, err := ParsePublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return NewRSAVerifier(key, alg)
}

func (v *RSAVerifier) Verify(message, signature string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := v.hash.New()
	digest.Write([]byte(message))
	return rsa.VerifyPKCS1v15(v.key, v.hash, digest.Sum(nil), sig) == nil
}

func (v *RSAVerifier) Algorithm() Algorithm { return v.alg }

// ParsePrivateKey decodes the first PEM block as a PKCS#1 or PKCS#8 RSA key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key (%T)", ErrInvalidKey, parsed)
	}
	return key, nil
}

// ParsePublicKey decodes the first PEM block as a PKIX or PKCS#1 RSA public
// key, or as a certificate carrying one.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		key, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: certificate key is not RSA", ErrInvalidKey)
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if key, err1 := x509.ParsePKCS1PublicKey(block.Bytes); err1 == nil {
			return key, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key (%T)", ErrInvalidKey, parsed)
	}
	return key, nil
}

// EncodePrivateKey renders key as PKCS#1 PEM.
func EncodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// EncodePublicKey renders key as PKIX PEM.
func EncodePublicKey(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Wipe zeroes b. Go gives no guarantee that no other copy exists.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
