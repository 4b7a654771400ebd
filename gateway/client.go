// Package gateway is a client for the ČSOB card payment gateway (eAPI
// v1.7 and v1.8).
//
// Every request is signed with the merchant's RSA key and every
// successful response is verified with the bank's public key before it is
// returned.
package gateway

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alovak/csob-gateway/internal/security"
	"github.com/alovak/csob-gateway/internal/transport"
	"golang.org/x/exp/slog"
)

type (
	Signer    = security.Signer
	Verifier  = security.Verifier
	Algorithm = security.Algorithm
)

// Transport performs one HTTP exchange. *transport.Client implements it.
type Transport interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

type TransportFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

func (f TransportFunc) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return f(ctx, req)
}

type options struct {
	transport  Transport
	httpClient *http.Client
	signer     Signer
	keys       *Keys
	now        func() time.Time
	loc        *time.Location
}

type Option func(*options)

func WithTransport(t Transport) Option { return func(o *options) { o.transport = t } }

func WithHTTPClient(hc *http.Client) Option { return func(o *options) { o.httpClient = hc } }

// WithSigner replaces the PEM private key, e.g. with an HSM-backed signer.
// Its algorithm must match the protocol version.
func WithSigner(s Signer) Option { return func(o *options) { o.signer = s } }

// WithKeys supplies key material instead of reading the files named in
// the config.
func WithKeys(k *Keys) Option { return func(o *options) { o.keys = k } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLocation sets the zone dttm values are written and read in. The
// default is UTC.
func WithLocation(loc *time.Location) Option { return func(o *options) { o.loc = loc } }

// Client talks to one merchant account of the gateway. It is immutable
// after New and safe for concurrent use.
type Client struct {
	logger     *slog.Logger
	merchantID string
	baseURL    string
	version    *Version
	signer     Signer
	verifier   Verifier
	publicKey  *rsa.PublicKey
	transport  Transport
	now        func() time.Time
	loc        *time.Location
}

// New builds a client from cfg. A nil logger discards logs.
func New(logger *slog.Logger, cfg *Config, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg == nil {
		return nil, &ConfigurationError{Err: errors.New("config is required")}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version, _ := LookupVersion(cfg.Version)

	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.loc == nil {
		o.loc = time.UTC
	}

	keys := o.keys
	if keys == nil {
		var err error
		keys, err = LoadKeys(cfg)
		if err != nil {
			return nil, err
		}
	}

	signer := o.signer
	if signer == nil {
		if len(keys.Private) == 0 {
			return nil, &ConfigurationError{Err: errors.New("merchant private key is required")}
		}
		s, err := security.NewRSASignerFromPEM(keys.Private, version.Algorithm)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("merchant private key: %w", err)}
		}
		signer = s
	} else if signer.Algorithm() != version.Algorithm {
		return nil, &ConfigurationError{Err: fmt.Errorf("%w: signer uses %s, %s requires %s",
			security.ErrUnsupportedAlgorithm, signer.Algorithm(), version.Tag, version.Algorithm)}
	}

	verifier, err := security.NewRSAVerifierFromPEM(keys.Bank, version.Algorithm)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("bank public key: %w", err)}
	}

	var pub *rsa.PublicKey
	if len(keys.Public) > 0 {
		pub, err = security.ParsePublicKey(keys.Public)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("merchant public key: %w", err)}
		}
	}

	t := o.transport
	if t == nil {
		hc := o.httpClient
		if hc == nil && cfg.Timeout > 0 {
			hc = &http.Client{Timeout: cfg.Timeout}
		}
		t = transport.New(hc)
	}

	return &Client{
		logger:     logger.With(slog.String("component", "gateway"), slog.String("version", version.Tag)),
		merchantID: cfg.MerchantID,
		baseURL:    strings.TrimRight(cfg.BaseURL(), "/"),
		version:    version,
		signer:     signer,
		verifier:   verifier,
		publicKey:  pub,
		transport:  t,
		now:        o.now,
		loc:        o.loc,
	}, nil
}

func (c *Client) Version() *Version { return c.version }

func (c *Client) MerchantID() string { return c.merchantID }

func (c *Client) BaseURL() string { return c.baseURL }

// Location is the zone of the dttm values the client writes.
func (c *Client) Location() *time.Location { return c.loc }

// PublicKey returns the merchant public key, or nil when none was configured.
func (c *Client) PublicKey() *rsa.PublicKey { return c.publicKey }
