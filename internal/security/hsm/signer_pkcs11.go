//go:build softhsm

package hsm

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/alovak/csob-gateway/internal/security"
)

// PKCS11Signer signs canonical messages with an RSA private key held in a
// PKCS#11 token (SoftHSM in development, a network HSM in production).
// Enabled with build tag softhsm so default builds do not need cgo/pkcs11.
type PKCS11Signer struct {
	libPath  string
	slotID   uint
	pin      string
	keyLabel string
	alg      security.Algorithm
	mech     uint

	mu   sync.Mutex // a PKCS#11 session runs one operation at a time
	p11  *pkcs11.Ctx
	sess pkcs11.SessionHandle
	key  pkcs11.ObjectHandle
}

func NewPKCS11Signer(libPath string, slotID uint, pin, keyLabel string, alg security.Algorithm) (*PKCS11Signer, error) {
	mech, err := mechanism(alg)
	if err != nil {
		return nil, err
	}
	return &PKCS11Signer{libPath: libPath, slotID: slotID, pin: pin, keyLabel: keyLabel, alg: alg, mech: mech}, nil
}

func mechanism(alg security.Algorithm) (uint, error) {
	switch alg {
	case security.SHA1:
		return pkcs11.CKM_SHA1_RSA_PKCS, nil
	case security.SHA256:
		return pkcs11.CKM_SHA256_RSA_PKCS, nil
	}
	return 0, fmt.Errorf("%w: %q", security.ErrUnsupportedAlgorithm, string(alg))
}

// Open loads the library, logs in and locates the private key by label.
func (p *PKCS11Signer) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.open(); err != nil {
		p.release()
		return err
	}
	return nil
}

func (p *PKCS11Signer) open() error {
	p.p11 = pkcs11.New(p.libPath)
	if p.p11 == nil {
		return fmt.Errorf("%w: load pkcs11 lib %s failed", security.ErrInvalidKey, p.libPath)
	}
	if err := p.p11.Initialize(); err != nil {
		return fmt.Errorf("pkcs11 initialize: %w", err)
	}
	sess, err := p.p11.OpenSession(p.slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return fmt.Errorf("pkcs11 open session: %w", err)
	}
	p.sess = sess
	if err := p.p11.Login(p.sess, pkcs11.CKU_USER, p.pin); err != nil {
		return fmt.Errorf("pkcs11 login: %w", err)
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, p.keyLabel),
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
	}
	if err := p.p11.FindObjectsInit(p.sess, template); err != nil {
		return fmt.Errorf("pkcs11 find init: %w", err)
	}
	objs, _, err := p.p11.FindObjects(p.sess, 1)
	_ = p.p11.FindObjectsFinal(p.sess)
	if err != nil {
		return fmt.Errorf("pkcs11 find: %w", err)
	}
	if len(objs) == 0 {
		return fmt.Errorf("%w: private key not found by label=%s", security.ErrInvalidKey, p.keyLabel)
	}
	p.key = objs[0]
	return nil
}

// Close logs out and unloads the module. It is safe to call more than once.
func (p *PKCS11Signer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release()
}

func (p *PKCS11Signer) release() {
	if p.p11 == nil {
		return
	}
	if p.sess != 0 {
		_ = p.p11.Logout(p.sess)
		_ = p.p11.CloseSession(p.sess)
		p.sess = 0
	}
	_ = p.p11.Finalize()
	p.p11.Destroy()
	p.p11 = nil
}

// Sign hashes and signs message inside the token.
func (p *PKCS11Signer) Sign(message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.p11 == nil {
		return "", fmt.Errorf("pkcs11 signer is not open")
	}
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(p.mech, nil)}
	if err := p.p11.SignInit(p.sess, mech, p.key); err != nil {
		return "", fmt.Errorf("pkcs11 sign init: %w", err)
	}
	sig, err := p.p11.Sign(p.sess, []byte(message))
	if err != nil {
		return "", fmt.Errorf("pkcs11 sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (p *PKCS11Signer) Algorithm() security.Algorithm { return p.alg }

var _ security.Signer = (*PKCS11Signer)(nil)
