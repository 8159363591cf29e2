// ABOUTME: Configuration loading and parsing for typo-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete typo-gateway configuration
type Config struct {
	Application string          `yaml:"application"`
	Server      ServerConfig    `yaml:"server"`
	Tailscale   TailscaleConfig `yaml:"tailscale"`
	Database    DatabaseConfig  `yaml:"database"`
	Runtime     RuntimeConfig   `yaml:"runtime"`
	Orgs        OrgsConfig      `yaml:"orgs"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // Serve with Tailscale-provisioned certs
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds session database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RuntimeConfig holds agent runtime endpoint and timing configuration
type RuntimeConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	TurnTimeout    time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TurnTimeoutRaw    string `yaml:"turn_timeout"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// OrgsConfig holds the organization directory location
type OrgsConfig struct {
	// Path to a TOML organization directory. When empty the embedded
	// default directory is used.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultTurnTimeout is applied when runtime.turn_timeout is not configured.
// A turn with no forward progress inside this window is forcibly failed so
// the session is never permanently wedged.
const DefaultTurnTimeout = 2 * time.Minute

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values that have sensible defaults when unset.
func (c *Config) applyDefaults() {
	if c.Application == "" {
		c.Application = "parent_app"
	}
	if c.Runtime.TurnTimeout == 0 {
		c.Runtime.TurnTimeout = DefaultTurnTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Runtime.BaseURL == "" {
		return fmt.Errorf("runtime.base_url is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Runtime.TurnTimeoutRaw != "" {
		cfg.Runtime.TurnTimeout, err = time.ParseDuration(cfg.Runtime.TurnTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing turn_timeout %q: %w", cfg.Runtime.TurnTimeoutRaw, err)
		}
	}

	if cfg.Runtime.RequestTimeoutRaw != "" {
		cfg.Runtime.RequestTimeout, err = time.ParseDuration(cfg.Runtime.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Runtime.RequestTimeoutRaw, err)
		}
	}

	return nil
}
