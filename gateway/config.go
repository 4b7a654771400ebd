package gateway

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SandboxURL    = "https://iapi.iplatebnibrana.csob.cz"
	ProductionURL = "https://api.platebnibrana.csob.cz"
)

// Config is the merchant's gateway configuration. It is read from a YAML
// file and CSOB_* environment variables.
type Config struct {
	MerchantID string `yaml:"merchant_id" env:"CSOB_MERCHANT_ID" env-description:"merchant identifier assigned by the bank"`
	// PEM files. PrivateKey may be omitted when a signer is supplied.
	PrivateKey    string `yaml:"private_key" env:"CSOB_PRIVATE_KEY" env-description:"path to the merchant private key"`
	PublicKey     string `yaml:"public_key" env:"CSOB_PUBLIC_KEY" env-description:"path to the merchant public key"`
	BankPublicKey string `yaml:"bank_public_key" env:"CSOB_BANK_PUBLIC_KEY" env-description:"path to the bank public key"`

	Sandbox bool `yaml:"sandbox" env:"CSOB_SANDBOX"`
	// URL overrides the sandbox/production host.
	URL     string        `yaml:"url" env:"CSOB_URL"`
	Version string        `yaml:"version" env:"CSOB_VERSION" env-default:"v1.8"`
	Timeout time.Duration `yaml:"timeout" env:"CSOB_TIMEOUT" env-default:"30s"`
}

func DefaultConfig() *Config {
	return &Config{
		Sandbox: true,
		Version: "v1.8",
		Timeout: 30 * time.Second,
	}
}

// LoadConfig reads path (YAML) over DefaultConfig and overlays the
// environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("reading %s: %w", path, err)}
	}
	return cfg, nil
}

// Validate checks the fields every client needs.
func (c *Config) Validate() error {
	if c.MerchantID == "" {
		return &ConfigurationError{Err: fmt.Errorf("%w: merchant_id", ErrMissingField)}
	}
	if _, err := LookupVersion(c.Version); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

// BaseURL is the API root for the configured version, e.g.
// https://iapi.iplatebnibrana.csob.cz/api/v1.8.
func (c *Config) BaseURL() string {
	host := c.URL
	if host == "" {
		host = ProductionURL
		if c.Sandbox {
			host = SandboxURL
		}
	}
	return host + "/api/" + c.Version
}

// Keys holds PEM-encoded key material.
type Keys struct {
	Private []byte
	Public  []byte
	Bank    []byte
}

// LoadKeys reads the key files named in cfg. Empty paths are skipped.
func LoadKeys(cfg *Config) (*Keys, error) {
	k := &Keys{}
	for _, f := range []struct {
		path string
		dst  *[]byte
	}{
		{cfg.PrivateKey, &k.Private},
		{cfg.PublicKey, &k.Public},
		{cfg.BankPublicKey, &k.Bank},
	} {
		if f.path == "" {
			continue
		}
		b, err := os.ReadFile(f.path)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("reading key: %w", err)}
		}
		*f.dst = b
	}
	if len(k.Bank) == 0 {
		return nil, &ConfigurationError{Err: errors.New("bank public key is required")}
	}
	return k, nil
}
