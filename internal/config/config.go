// ABOUTME: Configuration loading and parsing for the boardroom client.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine transport modes.
const (
	ModeFetch     = "fetch"     // one streamed POST per query
	ModeSubscribe = "subscribe" // persistent subscription channel
)

// Config represents the complete boardroom client configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig holds the orchestration engine endpoint and transport tuning.
type EngineConfig struct {
	URL        string `yaml:"url"`
	Mode       string `yaml:"mode"`  // "fetch" or "subscribe"
	Token      string `yaml:"token"` // bearer token, typically ${BOARDROOM_TOKEN}
	MaxRetries int    `yaml:"max_retries"`

	MetaTimeout  time.Duration `yaml:"-"`
	StallTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	MetaTimeoutRaw  string `yaml:"meta_timeout"`
	StallTimeoutRaw string `yaml:"stall_timeout"`
}

// StreamConfig holds multiplexer tuning.
type StreamConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// DatabaseConfig holds session database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a config with the stock tuning values filled in. Callers
// still need to set the engine URL.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Mode:         ModeFetch,
			MaxRetries:   3,
			MetaTimeout:  10 * time.Second,
			StallTimeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			MaxConcurrent: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields left unset fall back to Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Engine.URL == "" {
		return fmt.Errorf("engine.url is required")
	}

	if c.Engine.Mode != ModeFetch && c.Engine.Mode != ModeSubscribe {
		return fmt.Errorf("engine.mode must be %q or %q, got %q", ModeFetch, ModeSubscribe, c.Engine.Mode)
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}

	if c.Stream.MaxConcurrent < 1 {
		return fmt.Errorf("stream.max_concurrent must be at least 1")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Engine.MetaTimeoutRaw != "" {
		cfg.Engine.MetaTimeout, err = time.ParseDuration(cfg.Engine.MetaTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing meta_timeout %q: %w", cfg.Engine.MetaTimeoutRaw, err)
		}
	}

	if cfg.Engine.StallTimeoutRaw != "" {
		cfg.Engine.StallTimeout, err = time.ParseDuration(cfg.Engine.StallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing stall_timeout %q: %w", cfg.Engine.StallTimeoutRaw, err)
		}
	}

	return nil
}
