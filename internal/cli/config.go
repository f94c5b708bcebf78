package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-bridge/internal/config"
	"github.com/mrz1836/sigil-bridge/internal/output"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage configuration",
	Long:    `View and modify sigil-bridge configuration settings.`,
	GroupID: groupConfig,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.sigil-bridge/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Example: `  sigil-bridge config init
  sigil-bridge config init --force`,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after environment overrides.`,
	Example: `  sigil-bridge config show
  sigil-bridge config show -o json`,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree. List values
are printed comma separated.`,
	Example: `  sigil-bridge config get wallet.url
  sigil-bridge config get origins.allowed
  sigil-bridge config get timeouts.sign_seconds`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree. List values
are given comma separated and replace the whole list. The configuration is
validated before the file is written.`,
	Example: `  sigil-bridge config set wallet.url https://wallet.sigil.dev/
  sigil-bridge config set origins.allowed "https://wallet.sigil.dev,https://*.sigil.dev"
  sigil-bridge config set broker.listen 127.0.0.1:7420`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	configPath := config.Path(cc.Cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return bridgeerr.WithSuggestion(
			bridgeerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cc.Cfg.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - wallet.url: The wallet surface that handles wallet operations")
	outln(w, "  - origins.allowed: Origins allowed to use wallet operations")
	outln(w, "  - broker.listen: Address of the broker service")
	outln(w, "  - logging.level: Log level (off/error/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := commandContext(cmd)
	w := cmd.OutOrStdout()

	if cc.Fmt != nil && cc.Fmt.Format() == output.FormatJSON {
		return displayConfigJSON(w, cc.Cfg)
	}
	return displayConfigText(w, cc.Cfg)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	path := args[0]

	value, err := getConfigValue(commandContext(cmd).Cfg, path)
	if err != nil {
		return bridgeerr.WithSuggestion(
			bridgeerr.ErrNotFound,
			fmt.Sprintf("configuration path '%s' not found", path),
		)
	}

	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]
	cc := commandContext(cmd)

	if _, err := getConfigValue(cc.Cfg, path); err != nil {
		return bridgeerr.WithSuggestion(
			bridgeerr.ErrNotFound,
			fmt.Sprintf("configuration path '%s' not found", path),
		)
	}

	// Edit the file contents, not the environment-adjusted config
	configPath := config.Path(cc.Cfg.Home)
	currentCfg, err := config.Load(configPath)
	if err != nil {
		currentCfg = config.Defaults()
		currentCfg.Home = cc.Cfg.Home
	}

	if err := setConfigValue(currentCfg, path, value); err != nil {
		return err
	}
	if err := currentCfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(currentCfg, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, value)
	return nil
}

func unknownKey(section, key string) error {
	return bridgeerr.WithDetails(
		bridgeerr.ErrUnknownConfigKey,
		map[string]string{"section": section, "key": key},
	)
}

func invalidValue(value, valid string) error {
	return bridgeerr.WithDetails(
		bridgeerr.ErrInvalidFormat,
		map[string]string{"value": value, "valid": valid},
	)
}

// getConfigValue retrieves a value from the config using dot notation.
func getConfigValue(c *config.Config, path string) (string, error) {
	parts := strings.Split(path, ".")

	switch len(parts) {
	case 1:
		if parts[0] == "home" {
			return c.Home, nil
		}
		return "", bridgeerr.WithDetails(
			bridgeerr.ErrUnknownConfigKey,
			map[string]string{"key": parts[0]},
		)
	case 2:
		section, key := parts[0], parts[1]
		switch section {
		case "wallet":
			if key == "url" {
				return c.Wallet.URL, nil
			}
		case "origins":
			if key == "allowed" {
				return strings.Join(c.Origins.Allowed, ","), nil
			}
		case "timeouts":
			return getTimeoutValue(c, key)
		case "broker":
			return getBrokerValue(c, key)
		case "relay":
			return getRelayValue(c, key)
		case "output":
			return getOutputValue(c, key)
		case "logging":
			return getLoggingValue(c, key)
		default:
			return "", bridgeerr.WithDetails(
				bridgeerr.ErrUnknownConfigKey,
				map[string]string{"section": section},
			)
		}
		return "", unknownKey(section, key)
	default:
		return "", bridgeerr.WithDetails(
			bridgeerr.ErrUnknownConfigKey,
			map[string]string{"path": path},
		)
	}
}

func getTimeoutValue(c *config.Config, key string) (string, error) {
	switch key {
	case "connect_seconds":
		return strconv.Itoa(c.Timeouts.ConnectSeconds), nil
	case "get_address_seconds":
		return strconv.Itoa(c.Timeouts.GetAddressSeconds), nil
	case "sign_seconds":
		return strconv.Itoa(c.Timeouts.SignSeconds), nil
	default:
		return "", unknownKey("timeouts", key)
	}
}

func getBrokerValue(c *config.Config, key string) (string, error) {
	switch key {
	case "listen":
		return c.Broker.Listen, nil
	case "keepalive_seconds":
		return strconv.Itoa(c.Broker.KeepAliveSeconds), nil
	case "rate_per_second":
		return strconv.FormatFloat(c.Broker.RatePerSecond, 'f', -1, 64), nil
	case "rate_burst":
		return strconv.Itoa(c.Broker.RateBurst), nil
	case "open_browser":
		return strconv.FormatBool(c.Broker.OpenBrowser), nil
	default:
		return "", unknownKey("broker", key)
	}
}

func getRelayValue(c *config.Config, key string) (string, error) {
	switch key {
	case "schemes":
		return strings.Join(c.Relay.Schemes, ","), nil
	case "forward_timeout_seconds":
		return strconv.Itoa(c.Relay.ForwardTimeoutSeconds), nil
	default:
		return "", unknownKey("relay", key)
	}
}

func getOutputValue(c *config.Config, key string) (string, error) {
	switch key {
	case "default_format":
		return c.Output.DefaultFormat, nil
	case "verbose":
		return strconv.FormatBool(c.Output.Verbose), nil
	case "color":
		return c.Output.Color, nil
	default:
		return "", unknownKey("output", key)
	}
}

func getLoggingValue(c *config.Config, key string) (string, error) {
	switch key {
	case "level":
		return c.Logging.Level, nil
	case "file":
		return c.Logging.File, nil
	default:
		return "", unknownKey("logging", key)
	}
}

// setConfigValue sets a value in the config using dot notation.
func setConfigValue(c *config.Config, path, value string) error {
	parts := strings.Split(path, ".")

	switch len(parts) {
	case 1:
		if parts[0] == "home" {
			c.Home = value
			return nil
		}
		return bridgeerr.WithDetails(
			bridgeerr.ErrUnknownConfigKey,
			map[string]string{"key": parts[0]},
		)
	case 2:
		section, key := parts[0], parts[1]
		switch section {
		case "wallet":
			if key == "url" {
				c.Wallet.URL = config.SanitizeURL(value)
				return nil
			}
		case "origins":
			if key == "allowed" {
				c.Origins.Allowed = splitValues(value)
				return nil
			}
		case "timeouts":
			return setTimeoutValue(c, key, value)
		case "broker":
			return setBrokerValue(c, key, value)
		case "relay":
			return setRelayValue(c, key, value)
		case "output":
			return setOutputValue(c, key, value)
		case "logging":
			return setLoggingValue(c, key, value)
		default:
			return bridgeerr.WithDetails(
				bridgeerr.ErrUnknownConfigKey,
				map[string]string{"section": section},
			)
		}
		return unknownKey(section, key)
	default:
		return bridgeerr.WithDetails(
			bridgeerr.ErrUnknownConfigKey,
			map[string]string{"path": path},
		)
	}
}

func setTimeoutValue(c *config.Config, key, value string) error {
	var target *int
	switch key {
	case "connect_seconds":
		target = &c.Timeouts.ConnectSeconds
	case "get_address_seconds":
		target = &c.Timeouts.GetAddressSeconds
	case "sign_seconds":
		target = &c.Timeouts.SignSeconds
	default:
		return unknownKey("timeouts", key)
	}

	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return invalidValue(value, "a positive number of seconds")
	}
	*target = n
	return nil
}

func setBrokerValue(c *config.Config, key, value string) error {
	switch key {
	case "listen":
		if !strings.Contains(value, ":") {
			return invalidValue(value, "host:port")
		}
		c.Broker.Listen = value
	case "keepalive_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return invalidValue(value, "a positive number of seconds")
		}
		c.Broker.KeepAliveSeconds = n
	case "rate_per_second":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return invalidValue(value, "a non-negative number, 0 disables limiting")
		}
		c.Broker.RatePerSecond = f
	case "rate_burst":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return invalidValue(value, "a non-negative integer")
		}
		c.Broker.RateBurst = n
	case "open_browser":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return invalidValue(value, "true or false")
		}
		c.Broker.OpenBrowser = b
	default:
		return unknownKey("broker", key)
	}
	return nil
}

func setRelayValue(c *config.Config, key, value string) error {
	switch key {
	case "schemes":
		c.Relay.Schemes = splitValues(value)
	case "forward_timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return invalidValue(value, "a positive number of seconds")
		}
		c.Relay.ForwardTimeoutSeconds = n
	default:
		return unknownKey("relay", key)
	}
	return nil
}

func setOutputValue(c *config.Config, key, value string) error {
	switch key {
	case "default_format":
		if !output.ValidFormat(value) {
			return invalidValue(value, "text, json, or auto")
		}
		c.Output.DefaultFormat = value
	case "verbose":
		c.Output.Verbose = value == "true"
	case "color":
		if value != "auto" && value != "always" && value != "never" {
			return invalidValue(value, "auto, always, or never")
		}
		c.Output.Color = value
	default:
		return unknownKey("output", key)
	}
	return nil
}

func setLoggingValue(c *config.Config, key, value string) error {
	switch key {
	case "level":
		for _, l := range []string{"off", "error", "debug"} {
			if value == l {
				c.Logging.Level = value
				return nil
			}
		}
		return invalidValue(value, "off, error, or debug")
	case "file":
		c.Logging.File = value
	default:
		return unknownKey("logging", key)
	}
	return nil
}

func splitValues(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// displayConfigText shows the config in text format.
func displayConfigText(w io.Writer, c *config.Config) error {
	outln(w, "Configuration:")
	outln(w)
	out(w, "  Home: %s\n", c.Home)
	outln(w)
	outln(w, "  Wallet:")
	out(w, "    url: %s\n", c.Wallet.URL)
	outln(w)
	outln(w, "  Origins:")
	for _, o := range c.Origins.Allowed {
		out(w, "    - %s\n", o)
	}
	outln(w)
	outln(w, "  Timeouts:")
	out(w, "    connect: %s\n", c.ConnectTimeout())
	out(w, "    get_address: %s\n", c.GetAddressTimeout())
	out(w, "    sign: %s\n", c.SignTimeout())
	outln(w)
	outln(w, "  Broker:")
	out(w, "    listen: %s\n", c.Broker.Listen)
	out(w, "    keepalive: %s\n", c.KeepAliveInterval())
	out(w, "    rate: %g/s (burst %d)\n", c.Broker.RatePerSecond, c.Broker.RateBurst)
	out(w, "    open_browser: %t\n", c.Broker.OpenBrowser)
	outln(w)
	outln(w, "  Relay:")
	out(w, "    schemes: %s\n", orNone(strings.Join(c.Relay.Schemes, ", ")))
	out(w, "    forward_timeout: %s\n", c.ForwardTimeout())
	outln(w)
	outln(w, "  Output:")
	out(w, "    default_format: %s\n", c.Output.DefaultFormat)
	out(w, "    verbose: %t\n", c.Output.Verbose)
	out(w, "    color: %s\n", c.Output.Color)
	outln(w)
	outln(w, "  Logging:")
	out(w, "    level: %s\n", c.Logging.Level)
	out(w, "    file: %s\n", c.Logging.File)

	return nil
}

// displayConfigJSON shows the config in JSON format.
func displayConfigJSON(w io.Writer, c *config.Config) error {
	type configJSON struct {
		Version int    `json:"version"`
		Home    string `json:"home"`
		Wallet  struct {
			URL string `json:"url"`
		} `json:"wallet"`
		Origins  []string `json:"origins"`
		Timeouts struct {
			Connect    int `json:"connect_seconds"`
			GetAddress int `json:"get_address_seconds"`
			Sign       int `json:"sign_seconds"`
		} `json:"timeouts"`
		Broker struct {
			Listen      string  `json:"listen"`
			KeepAlive   int     `json:"keepalive_seconds"`
			Rate        float64 `json:"rate_per_second"`
			Burst       int     `json:"rate_burst"`
			OpenBrowser bool    `json:"open_browser"`
		} `json:"broker"`
		Relay struct {
			Schemes        []string `json:"schemes"`
			ForwardTimeout int      `json:"forward_timeout_seconds"`
		} `json:"relay"`
		Output struct {
			DefaultFormat string `json:"default_format"`
			Color         string `json:"color"`
			Verbose       bool   `json:"verbose"`
		} `json:"output"`
		Logging struct {
			Level string `json:"level"`
			File  string `json:"file"`
		} `json:"logging"`
	}

	outCfg := configJSON{
		Version: c.Version,
		Home:    c.Home,
		Origins: c.GetAllowedOrigins(),
	}
	outCfg.Broker.Listen = c.Broker.Listen
	outCfg.Broker.KeepAlive = int(c.KeepAliveInterval().Seconds())
	outCfg.Broker.Rate = c.Broker.RatePerSecond
	outCfg.Broker.Burst = c.Broker.RateBurst
	outCfg.Broker.OpenBrowser = c.Broker.OpenBrowser
	outCfg.Wallet.URL = c.Wallet.URL
	outCfg.Timeouts.Connect = int(c.ConnectTimeout().Seconds())
	outCfg.Timeouts.GetAddress = int(c.GetAddressTimeout().Seconds())
	outCfg.Timeouts.Sign = int(c.SignTimeout().Seconds())
	outCfg.Relay.Schemes = append([]string{}, c.Relay.Schemes...)
	outCfg.Relay.ForwardTimeout = int(c.ForwardTimeout().Seconds())
	outCfg.Output.DefaultFormat = c.Output.DefaultFormat
	outCfg.Output.Color = c.Output.Color
	outCfg.Output.Verbose = c.Output.Verbose
	outCfg.Logging.Level = c.Logging.Level
	outCfg.Logging.File = c.Logging.File

	return output.WriteJSON(w, outCfg)
}
