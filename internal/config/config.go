// Package config provides configuration management for the Sigil bridge.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/sigil-bridge/internal/fileutil"
	"github.com/mrz1836/sigil-bridge/internal/origin"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Home     string         `yaml:"home"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Origins  OriginsConfig  `yaml:"origins"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Broker   BrokerConfig   `yaml:"broker"`
	Relay    RelayConfig    `yaml:"relay"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WalletConfig defines where the wallet surface lives.
type WalletConfig struct {
	URL string `yaml:"url"`
}

// OriginsConfig defines the origin allowlist.
type OriginsConfig struct {
	Allowed []string `yaml:"allowed"`
}

// TimeoutsConfig defines per-operation reply deadlines for the page provider.
type TimeoutsConfig struct {
	ConnectSeconds    int `yaml:"connect_seconds"`
	GetAddressSeconds int `yaml:"get_address_seconds"`
	SignSeconds       int `yaml:"sign_seconds"`
}

// BrokerConfig defines settings for the broker service.
type BrokerConfig struct {
	Listen           string  `yaml:"listen"`
	KeepAliveSeconds int     `yaml:"keepalive_seconds"`
	RatePerSecond    float64 `yaml:"rate_per_second"`
	RateBurst        int     `yaml:"rate_burst"`
	OpenBrowser      bool    `yaml:"open_browser"`
}

// RelayConfig defines content relay settings.
type RelayConfig struct {
	// Schemes are recognized in addition to the built-in cryptocurrency schemes.
	Schemes               []string `yaml:"schemes,omitempty"`
	ForwardTimeoutSeconds int      `yaml:"forward_timeout_seconds"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks the settings the broker depends on at startup.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Wallet.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return bridgeerr.WithDetails(bridgeerr.ErrConfigInvalid, map[string]string{
			"wallet.url": c.Wallet.URL,
		})
	}

	for _, p := range c.Origins.Allowed {
		if err := origin.ValidatePattern(p); err != nil {
			return bridgeerr.WithDetails(
				bridgeerr.Wrap(bridgeerr.ErrConfigInvalid, "origins.allowed"),
				map[string]string{"pattern": p, "reason": err.Error()},
			)
		}
	}

	if c.Broker.KeepAliveSeconds < 0 || c.Relay.ForwardTimeoutSeconds < 0 {
		return bridgeerr.WithSuggestion(bridgeerr.ErrConfigInvalid, "durations must not be negative")
	}

	for _, s := range c.Relay.Schemes {
		if strings.TrimSpace(s) == "" || strings.Contains(s, ":") {
			return bridgeerr.WithDetails(bridgeerr.ErrConfigInvalid, map[string]string{
				"relay.schemes": fmt.Sprintf("%q", s),
			})
		}
	}

	return nil
}

// GetHome returns the bridge home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetWalletURL returns the canonical wallet URL.
func (c *Config) GetWalletURL() string {
	return c.Wallet.URL
}

// GetAllowedOrigins returns a copy of the configured origin patterns.
func (c *Config) GetAllowedOrigins() []string {
	out := make([]string, len(c.Origins.Allowed))
	copy(out, c.Origins.Allowed)
	return out
}

// ConnectTimeout returns the connect reply deadline.
func (c *Config) ConnectTimeout() time.Duration {
	return seconds(c.Timeouts.ConnectSeconds, DefaultConnectTimeout)
}

// GetAddressTimeout returns the address reply deadline.
func (c *Config) GetAddressTimeout() time.Duration {
	return seconds(c.Timeouts.GetAddressSeconds, DefaultGetAddressTimeout)
}

// SignTimeout returns the signing reply deadline.
func (c *Config) SignTimeout() time.Duration {
	return seconds(c.Timeouts.SignSeconds, DefaultSignTimeout)
}

// KeepAliveInterval returns the broker heartbeat interval.
func (c *Config) KeepAliveInterval() time.Duration {
	return seconds(c.Broker.KeepAliveSeconds, DefaultKeepAliveInterval)
}

// ForwardTimeout returns how long the relay waits on the broker.
func (c *Config) ForwardTimeout() time.Duration {
	return seconds(c.Relay.ForwardTimeoutSeconds, DefaultForwardTimeout)
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// DefaultHome returns the default bridge home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sigil-bridge"
	}
	return filepath.Join(home, ".sigil-bridge")
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
