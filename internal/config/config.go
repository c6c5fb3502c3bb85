// ABOUTME: Configuration loading and parsing for the widget engine.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by DefaultConfig.
const (
	DefaultBaseURL           = "https://app.papercups.io"
	DefaultGameModeTrigger   = "/play"
	DefaultLobbyRefetchDelay = time.Second
)

// Config represents the complete widget engine configuration.
type Config struct {
	AccountID string         `yaml:"account_id"`
	BaseURL   string         `yaml:"base_url"`
	WSURL     string         `yaml:"ws_url"`
	Greeting  string         `yaml:"greeting"`
	Customer  CustomerConfig `yaml:"customer"`
	Engine    EngineConfig   `yaml:"engine"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// CustomerConfig holds the optional identity metadata supplied by the
// embedding page at load time.
type CustomerConfig struct {
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	ExternalID string `yaml:"external_id"`
	Host       string `yaml:"host"`
}

// EngineConfig holds reconciliation and channel timing knobs.
type EngineConfig struct {
	// GameModeTrigger is the easter-egg phrase that flips the local game
	// mode flag instead of sending.
	GameModeTrigger string `yaml:"game_mode_trigger"`

	// LobbyRefetchDelay is the fixed debounce before re-fetching
	// conversations after a conversation:created push. It absorbs backend
	// read-after-write lag.
	LobbyRefetchDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	LobbyRefetchDelayRaw string `yaml:"lobby_refetch_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DefaultConfig returns a configuration with sensible defaults applied.
// AccountID has no default and must be provided.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Engine: EngineConfig{
			GameModeTrigger:   DefaultGameModeTrigger,
			LobbyRefetchDelay: DefaultLobbyRefetchDelay,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("account_id is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Engine.LobbyRefetchDelay < 0 {
		return fmt.Errorf("engine.lobby_refetch_delay must not be negative")
	}
	return nil
}

// WebsocketURL returns the configured websocket endpoint, deriving it from
// BaseURL when ws_url is not set explicitly.
func (c *Config) WebsocketURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	re := regexp.MustCompile(`^http`)
	return re.ReplaceAllString(c.BaseURL, "ws") + "/socket"
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Engine.LobbyRefetchDelayRaw != "" {
		d, err := time.ParseDuration(cfg.Engine.LobbyRefetchDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing lobby_refetch_delay %q: %w", cfg.Engine.LobbyRefetchDelayRaw, err)
		}
		cfg.Engine.LobbyRefetchDelay = d
	}
	return nil
}
