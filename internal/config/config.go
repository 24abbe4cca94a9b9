package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Environment variables overriding the configuration file
const (
	EnvPluginDir   = "PIPO_PLUGIN_DIR"
	EnvPresetsFile = "PIPO_PRESETS_FILE"
	EnvLogLevel    = "PIPO_LOG_LEVEL"
)

// Config holds the configuration of the plugin host
type Config struct {
	// Plugins holds plugin discovery configuration
	Plugins PluginsConfig `yaml:"plugins"`

	// Host holds the input stream of the host
	Host HostConfig `yaml:"host"`

	// Metrics holds metrics endpoint configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging holds logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// PluginsConfig holds plugin discovery configuration
type PluginsConfig struct {
	// Directory is scanned for plugin libraries; empty means the pipo
	// directory next to the executable
	Directory string `yaml:"directory"`

	// Extension of plugin libraries; empty means the platform default
	Extension string `yaml:"extension"`

	// Builtins registers the built-in plugins
	Builtins bool `yaml:"builtins"`

	// PresetsFile is a ChainPresetList manifest
	PresetsFile string `yaml:"presetsFile"`
}

// HostConfig describes the input stream fed to chains
type HostConfig struct {
	// Width is the number of columns of an input frame
	Width int `yaml:"width"`

	// Height is the number of rows of an input frame
	Height int `yaml:"height"`

	// Rate is the input frame rate in Hz
	Rate float64 `yaml:"rate"`

	// MaxFrames is the maximum number of frames per call
	MaxFrames int `yaml:"maxFrames"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	// BindAddress serves Prometheus metrics when set, for example ":8080"
	BindAddress string `yaml:"bindAddress"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Level is the logging level
	Level string `yaml:"level"`

	// Format is the logging format (json or text)
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Plugins: PluginsConfig{
			Builtins: true,
		},
		Host: HostConfig{
			Width:     1,
			Height:    1,
			Rate:      1000.0,
			MaxFrames: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// validateConfigPath validates and sanitizes the config file path to prevent path traversal
func validateConfigPath(configFile string) (string, error) {
	if configFile == "" {
		return "", nil
	}

	// Clean the path to remove any .. or . components
	cleanPath := filepath.Clean(configFile)

	// Check for path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("path traversal detected in config file path: %s", configFile)
	}

	if strings.HasPrefix(cleanPath, "/") || strings.HasPrefix(cleanPath, "\\") {
		if !filepath.IsAbs(cleanPath) {
			return "", fmt.Errorf("invalid absolute path: %s", configFile)
		}
	}

	return cleanPath, nil
}

// Load loads configuration from file or returns default configuration.
// Environment variables take precedence over the file.
func Load(configFile string) (*Config, error) {
	config := DefaultConfig()

	// Load from file if specified
	if configFile != "" {
		safePath, err := validateConfigPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("invalid config file path: %w", err)
		}

		// #nosec G304 - Path is validated above to prevent path traversal
		data, err := os.ReadFile(safePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if dir := os.Getenv(EnvPluginDir); dir != "" {
		config.Plugins.Directory = dir
	}
	if presets := os.Getenv(EnvPresetsFile); presets != "" {
		config.Plugins.PresetsFile = presets
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		config.Logging.Level = level
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if ext := c.Plugins.Extension; ext != "" && !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("plugins.extension must start with a dot, got %q", ext)
	}

	if c.Host.Width < 1 || c.Host.Height < 1 {
		return fmt.Errorf("host dimensions must be positive, got %dx%d", c.Host.Width, c.Host.Height)
	}

	if c.Host.Rate <= 0 {
		return fmt.Errorf("host.rate must be positive")
	}

	if c.Host.MaxFrames < 1 {
		return fmt.Errorf("host.maxFrames must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format '%s', must be json or text", c.Logging.Format)
	}

	return nil
}
