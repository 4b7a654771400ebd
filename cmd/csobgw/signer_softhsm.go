//go:build softhsm

package main

import (
	"fmt"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/internal/security/hsm"
)

func hsmSigner(cfg hsmConfig, alg gateway.Algorithm) (gateway.Signer, func(), error) {
	if cfg.Library == "" {
		return nil, func() {}, nil
	}
	s, err := hsm.NewPKCS11Signer(cfg.Library, cfg.Slot, cfg.PIN, cfg.KeyLabel, alg)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Open(); err != nil {
		return nil, nil, fmt.Errorf("opening hsm: %w", err)
	}
	return s, func() { s.Close() }, nil
}
