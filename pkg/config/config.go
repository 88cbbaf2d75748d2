// Package config provides configuration loading and management for ppview.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats understood by the render command
const (
	FormatPNG = "png"
	FormatOBJ = "obj"
	FormatSTL = "stl"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Viewer parameters
	Viewer struct {
		// IsoValue is the contour level applied to every loaded field
		IsoValue float64 `yaml:"isoValue"`

		// Background is the RGB scene background, components in [0,1]
		Background [3]float64 `yaml:"background"`

		// Refine resamples fields this many times finer before contouring;
		// 1 keeps the grid as read
		Refine int `yaml:"refine"`
	} `yaml:"viewer"`

	// Loading parameters
	Loading struct {
		// StopOnError aborts a directory load at the first unreadable file
		// instead of skipping it
		StopOnError bool `yaml:"stopOnError"`
	} `yaml:"loading"`

	// Output parameters
	Output struct {
		// Dir is where rendered files are written
		Dir string `yaml:"dir"`

		// Formats lists the presenters to run: png, obj and/or stl
		Formats []string `yaml:"formats"`

		// Width and Height are the snapshot size in pixels
		Width  int `yaml:"width"`
		Height int `yaml:"height"`

		// Basename names the output files, extension added per format
		Basename string `yaml:"basename"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn or error
		Level string `yaml:"level"`

		// Console selects human-readable output instead of JSON
		Console bool `yaml:"console"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Viewer.IsoValue = 1e-2
	cfg.Viewer.Background = [3]float64{0.9, 0.9, 0.9}
	cfg.Viewer.Refine = 1

	cfg.Loading.StopOnError = false

	cfg.Output.Dir = "."
	cfg.Output.Formats = []string{FormatPNG}
	cfg.Output.Width = 800
	cfg.Output.Height = 600
	cfg.Output.Basename = "scene"

	cfg.Logging.Level = "info"
	cfg.Logging.Console = true

	return cfg
}

// Validate checks the values a YAML file may have set wrongly
func (c *Config) Validate() error {
	if c.Output.Width <= 0 || c.Output.Height <= 0 {
		return fmt.Errorf("%w: snapshot size %dx%d", ErrInvalidConfig, c.Output.Width, c.Output.Height)
	}
	for _, f := range c.Output.Formats {
		switch strings.ToLower(f) {
		case FormatPNG, FormatOBJ, FormatSTL:
		default:
			return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, f)
		}
	}
	for i, v := range c.Viewer.Background {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: background component %d is %g", ErrInvalidConfig, i, v)
		}
	}
	if c.Viewer.Refine < 1 {
		return fmt.Errorf("%w: refine factor %d", ErrInvalidConfig, c.Viewer.Refine)
	}
	if c.Output.Basename == "" {
		return fmt.Errorf("%w: empty output basename", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
