package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alovak/csob-gateway/demo"
	"github.com/alovak/csob-gateway/gateway"
	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/exp/slog"
)

// config is the csobgw configuration file.
type config struct {
	Gateway  gateway.Config `yaml:"gateway"`
	Demo     demo.Config    `yaml:"demo"`
	HSM      hsmConfig      `yaml:"hsm" env-prefix:"CSOB_HSM_"`
	LogLevel string         `yaml:"log_level" env:"CSOB_LOG_LEVEL" env-default:"info"`
	// DttmTZ is the IANA zone used when formatting dttm values.
	DttmTZ string `yaml:"dttm_tz" env:"CSOB_DTTM_TZ"`
}

// hsmConfig selects a PKCS#11 signing key instead of the private key file.
type hsmConfig struct {
	Library  string `yaml:"library" env:"LIBRARY"`
	Slot     uint   `yaml:"slot" env:"SLOT"`
	PIN      string `yaml:"pin" env:"PIN"`
	KeyLabel string `yaml:"key_label" env:"KEY_LABEL"`
}

// loadConfig reads path over the defaults; with an empty path only the
// environment is read.
func loadConfig(path string) (*config, error) {
	cfg := &config{
		Gateway: *gateway.DefaultConfig(),
		Demo:    *demo.DefaultConfig(),
	}
	var err error
	if path == "" {
		err = cleanenv.ReadEnv(cfg)
	} else {
		err = cleanenv.ReadConfig(path, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

func newLogger(level string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
