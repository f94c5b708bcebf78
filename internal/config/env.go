package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome           = "SIGIL_BRIDGE_HOME"
	EnvWalletURL      = "SIGIL_BRIDGE_WALLET_URL"
	EnvAllowedOrigins = "SIGIL_BRIDGE_ALLOWED_ORIGINS"
	EnvListen         = "SIGIL_BRIDGE_LISTEN"
	EnvKeepAlive      = "SIGIL_BRIDGE_KEEPALIVE"
	EnvOutputFormat   = "SIGIL_BRIDGE_OUTPUT_FORMAT"
	EnvVerbose        = "SIGIL_BRIDGE_VERBOSE"
	EnvLogLevel       = "SIGIL_BRIDGE_LOG_LEVEL"
	EnvNoColor        = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvWalletURL); v != "" {
		cfg.Wallet.URL = SanitizeURL(v)
	}

	// Comma separated list replaces the configured allowlist
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.Origins.Allowed = splitList(v)
	}

	if v := os.Getenv(EnvListen); v != "" {
		cfg.Broker.Listen = strings.TrimSpace(v)
	}

	// SIGIL_BRIDGE_KEEPALIVE sets the heartbeat interval in seconds
	if v := os.Getenv(EnvKeepAlive); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Broker.KeepAliveSeconds = n
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SanitizeURL trims whitespace and control characters left behind by
// copy-paste. Unparseable input is returned trimmed so Validate can report it.
func SanitizeURL(raw string) string {
	raw = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.String()
}
