//go:build !softhsm

package main

import (
	"errors"

	"github.com/alovak/csob-gateway/gateway"
)

// hsmSigner returns nil when no HSM is configured.
func hsmSigner(cfg hsmConfig, alg gateway.Algorithm) (gateway.Signer, func(), error) {
	if cfg.Library == "" {
		return nil, func() {}, nil
	}
	return nil, nil, errors.New("hsm signing requires a build with -tags softhsm")
}
