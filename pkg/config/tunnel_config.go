package config

import (
	"fmt"
	"os"

	"localrun/internal/shared/utils"
)

const (
	// DefaultLocalHost is the origin host used when none is given.
	DefaultLocalHost = "localhost"

	// DefaultBrokerURL is the public broker endpoint tunnels register with
	// when no broker URL is configured.
	DefaultBrokerURL = "https://localrun.example.com"

	// DefaultRequestTimeoutMillis is the baseline timeout before the
	// forwarder's adaptive calculation takes over.
	DefaultRequestTimeoutMillis = 15000

	// DefaultMaxRetries caps forwarder retry attempts for a single request.
	DefaultMaxRetries = 2
)

// TLSOptions controls how the forwarder dials the local origin over HTTPS.
type TLSOptions struct {
	UseTLS           bool
	CertPath         string
	KeyPath          string
	CAPath           string
	AllowInvalidCert bool
}

// TunnelConfig is immutable once constructed; Session reads it but never
// mutates it.
type TunnelConfig struct {
	Port                 int
	LocalHost            string
	BrokerURL            string
	Subdomain            string
	TLS                  TLSOptions
	RequestTimeoutMillis int
	MaxRetries           int
}

// Option mutates a TunnelConfig under construction.
type Option func(*TunnelConfig)

// WithLocalHost overrides the default origin host.
func WithLocalHost(host string) Option {
	return func(c *TunnelConfig) { c.LocalHost = host }
}

// WithBrokerURL overrides the default broker endpoint.
func WithBrokerURL(url string) Option {
	return func(c *TunnelConfig) { c.BrokerURL = url }
}

// WithSubdomain requests a specific subdomain from the broker.
func WithSubdomain(subdomain string) Option {
	return func(c *TunnelConfig) { c.Subdomain = subdomain }
}

// WithTLS sets the origin TLS options.
func WithTLS(tls TLSOptions) Option {
	return func(c *TunnelConfig) { c.TLS = tls }
}

// WithRequestTimeoutMillis overrides the baseline request timeout.
func WithRequestTimeoutMillis(ms int) Option {
	return func(c *TunnelConfig) { c.RequestTimeoutMillis = ms }
}

// WithMaxRetries overrides the forwarder retry budget.
func WithMaxRetries(n int) Option {
	return func(c *TunnelConfig) { c.MaxRetries = n }
}

// New builds a TunnelConfig for the given origin port, applying defaults and
// then the supplied options.
func New(port int, opts ...Option) *TunnelConfig {
	c := &TunnelConfig{
		Port:                 port,
		LocalHost:            DefaultLocalHost,
		BrokerURL:            DefaultBrokerURL,
		RequestTimeoutMillis: DefaultRequestTimeoutMillis,
		MaxRetries:           DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the invariants spec.md §3 places on TunnelConfig.
func (c *TunnelConfig) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("config: port must be positive, got %d", c.Port)
	}
	if c.LocalHost == "" {
		return fmt.Errorf("config: local host must not be empty")
	}
	if c.BrokerURL == "" {
		return fmt.Errorf("config: broker URL must not be empty")
	}
	if c.Subdomain != "" && !utils.ValidateSubdomain(c.Subdomain) {
		return fmt.Errorf("config: subdomain %q must match [A-Za-z0-9]{10}", c.Subdomain)
	}
	if c.TLS.UseTLS && c.TLS.CertPath != "" && c.TLS.KeyPath == "" {
		return fmt.Errorf("config: local-key is required when local-cert is set")
	}
	if c.TLS.UseTLS && !c.TLS.AllowInvalidCert {
		if c.TLS.CertPath == "" || c.TLS.KeyPath == "" {
			return fmt.Errorf("config: local-cert and local-key are required when local-https is set and allow-invalid-cert is not")
		}
		if err := checkReadable(c.TLS.CertPath); err != nil {
			return fmt.Errorf("config: local-cert %q: %w", c.TLS.CertPath, err)
		}
		if err := checkReadable(c.TLS.KeyPath); err != nil {
			return fmt.Errorf("config: local-key %q: %w", c.TLS.KeyPath, err)
		}
	}
	if c.RequestTimeoutMillis <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %d", c.RequestTimeoutMillis)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// checkReadable reports whether path exists and is a regular file openable
// for reading.
func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	f.Close()
	return nil
}
