// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Display connection settings
	Display DisplayConfig `mapstructure:"display" json:"display"`

	// Capture behaviour
	Capture CaptureConfig `mapstructure:"capture" json:"capture"`

	// Output rendering
	Output OutputConfig `mapstructure:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
}

// DisplayConfig selects the compositor socket
type DisplayConfig struct {
	Name string `mapstructure:"name" json:"name"` // Empty means WAYLAND_DISPLAY
}

// CaptureConfig contains per-frame capture settings
type CaptureConfig struct {
	OverlayCursor bool `mapstructure:"overlay_cursor" json:"overlay_cursor"`
	MaxRoundtrips int  `mapstructure:"max_roundtrips" json:"max_roundtrips"` // Round trips to wait for ready/cancel
}

// OutputConfig controls how results are printed
type OutputConfig struct {
	Format string `mapstructure:"format" json:"format"` // "text" or "json"
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level" json:"log_level"` // Override LOG_LEVEL env var
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Display: DisplayConfig{
			Name: "",
		},
		Capture: CaptureConfig{
			OverlayCursor: true,
			MaxRoundtrips: 8,
		},
		Output: OutputConfig{
			Format: FormatText,
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("waydmabuf")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		for _, dir := range searchPaths() {
			viper.AddConfigPath(dir)
		}
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("display.name", DefaultConfig.Display.Name)
	viper.SetDefault("capture.overlay_cursor", DefaultConfig.Capture.OverlayCursor)
	viper.SetDefault("capture.max_roundtrips", DefaultConfig.Capture.MaxRoundtrips)
	viper.SetDefault("output.format", DefaultConfig.Output.Format)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	return nil
}

// Validate rejects settings the capture path cannot honour
func (c *Config) Validate() error {
	if c.Capture.MaxRoundtrips < 1 {
		return fmt.Errorf("capture.max_roundtrips must be at least 1, got %d", c.Capture.MaxRoundtrips)
	}

	switch strings.ToLower(c.Output.Format) {
	case FormatText, FormatJSON:
		c.Output.Format = strings.ToLower(c.Output.Format)
	default:
		return fmt.Errorf("output.format must be %q or %q, got %q", FormatText, FormatJSON, c.Output.Format)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		d := DefaultConfig
		return &d
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save writes the effective configuration to GetConfigPath
func Save() error {
	configPath := GetConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	return filepath.Join(searchPaths()[0], "waydmabuf.toml")
}

// searchPaths lists config directories in order of precedence
func searchPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "waydmabuf"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", "waydmabuf"))
	}

	return append(paths, ".")
}
