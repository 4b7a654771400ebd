// Package hsm provides a security.Signer backed by a PKCS#11 token.
// The implementation is compiled only with the softhsm build tag.
package hsm
