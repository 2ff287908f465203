package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned by LoadCLIConfig when no config file exists
// at the resolved path.
var ErrConfigNotFound = errors.New("config: no configuration file found")

// CLIConfig persists the broker/subdomain/TLS defaults a user doesn't want
// to retype on every `localrun` invocation. It mirrors TunnelConfig's fields
// rather than the teacher's Server/Token pair, since this module has no
// auth token concept.
type CLIConfig struct {
	BrokerURL string     `yaml:"broker_url"`
	Subdomain string     `yaml:"subdomain,omitempty"`
	TLS       TLSOptions `yaml:"tls"`
}

// DefaultCLIConfigPath returns `~/.drip/config.yaml`, falling back to
// `./.drip/config.yaml` if the home directory can't be resolved.
func DefaultCLIConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".drip", "config.yaml")
	}
	return filepath.Join(home, ".drip", "config.yaml")
}

func resolvePath(path string) string {
	if path == "" {
		return DefaultCLIConfigPath()
	}
	return path
}

// ConfigExists reports whether a CLI config file exists at path (or the
// default path, if path is empty).
func ConfigExists(path string) bool {
	_, err := os.Stat(resolvePath(path))
	return err == nil
}

// LoadCLIConfig reads and parses the CLI config file at path, or the default
// path if path is empty.
func LoadCLIConfig(path string) (*CLIConfig, error) {
	resolved := resolvePath(path)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, resolved)
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", resolved, err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", resolved, err)
	}

	return &cfg, nil
}

// SaveCLIConfig writes cfg to path (or the default path if empty), creating
// the parent directory if necessary.
func SaveCLIConfig(cfg *CLIConfig, path string) error {
	resolved := resolvePath(path)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return fmt.Errorf("config: failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}

	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", resolved, err)
	}

	return nil
}

// DeleteCLIConfig removes the config file at path (or the default path).
func DeleteCLIConfig(path string) error {
	resolved := resolvePath(path)
	if err := os.Remove(resolved); err != nil {
		return fmt.Errorf("config: failed to delete %s: %w", resolved, err)
	}
	return nil
}

// ApplyTo fills zero-valued fields of tc from the persisted CLI config, so
// flags always win over a saved default.
func (cfg *CLIConfig) ApplyTo(tc *TunnelConfig) {
	if tc.BrokerURL == "" || tc.BrokerURL == DefaultBrokerURL {
		if cfg.BrokerURL != "" {
			tc.BrokerURL = cfg.BrokerURL
		}
	}
	if tc.Subdomain == "" && cfg.Subdomain != "" {
		tc.Subdomain = cfg.Subdomain
	}
	if !tc.TLS.UseTLS && cfg.TLS.UseTLS {
		tc.TLS = cfg.TLS
	}
}
