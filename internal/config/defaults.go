package config

import "time"

// DefaultWalletURL is the canonical wallet surface.
const DefaultWalletURL = "https://wallet.sigil.dev/"

// Default reply deadlines used by the page provider.
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultGetAddressTimeout = 10 * time.Second
	DefaultSignTimeout       = 60 * time.Second
)

// DefaultKeepAliveInterval stays below the 30s idle window after which
// extension service workers are suspended.
const DefaultKeepAliveInterval = 20 * time.Second

// DefaultForwardTimeout bounds a single relay->broker round trip. It is longer
// than the longest provider deadline so the provider always times out first.
const DefaultForwardTimeout = 90 * time.Second

// DefaultListenAddr is where the broker service listens.
const DefaultListenAddr = "127.0.0.1:7420"

// DefaultAllowedOrigins are the origins allowed to use wallet operations.
//
//nolint:gochecknoglobals // Configuration default, same pattern as DefaultWalletURL
var DefaultAllowedOrigins = []string{
	"https://wallet.sigil.dev",
	"https://*.sigil.dev",
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// Defaults returns the default configuration.
func Defaults() *Config {
	allowed := make([]string, len(DefaultAllowedOrigins))
	copy(allowed, DefaultAllowedOrigins)

	return &Config{
		Version: 1,
		Home:    "~/.sigil-bridge",
		Wallet: WalletConfig{
			URL: DefaultWalletURL,
		},
		Origins: OriginsConfig{
			Allowed: allowed,
		},
		Timeouts: TimeoutsConfig{
			ConnectSeconds:    int(DefaultConnectTimeout / time.Second),
			GetAddressSeconds: int(DefaultGetAddressTimeout / time.Second),
			SignSeconds:       int(DefaultSignTimeout / time.Second),
		},
		Broker: BrokerConfig{
			Listen:           DefaultListenAddr,
			KeepAliveSeconds: int(DefaultKeepAliveInterval / time.Second),
			RatePerSecond:    20,
			RateBurst:        40,
			OpenBrowser:      true,
		},
		Relay: RelayConfig{
			ForwardTimeoutSeconds: int(DefaultForwardTimeout / time.Second),
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.sigil-bridge/bridge.log",
		},
	}
}
