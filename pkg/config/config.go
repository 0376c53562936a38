// Package config provides configuration loading and management for dsmfusion.
// It handles loading the run configuration from YAML files, provides default
// values, and reads the area-of-interest descriptor of a work directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configuration values that fail validation
var ErrInvalid = errors.New("invalid configuration")

// Missing-value policies of the median filter
const (
	MissingExclude   = "exclude"
	MissingPropagate = "propagate"
)

// Point cloud encodings
const (
	PLYBinary = "binary"
	PLYASCII  = "ascii"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input selects the per-view elevation rasters
	Input struct {
		// DSMDir is the raster directory, relative to the work directory
		DSMDir string `yaml:"dsmDir"`

		// Pattern filters the directory listing (filepath.Match syntax)
		Pattern string `yaml:"pattern"`

		// Files is an explicit ordered list of rasters. When set, the
		// directory is not scanned and the order is kept as given.
		Files []string `yaml:"files"`
	} `yaml:"input"`

	// Fusion parameters
	Fusion struct {
		// MinSupport is the number of valid measurements a cell needs to be trusted
		MinSupport int `yaml:"minSupport"`

		// NumCores bounds the number of tiles reduced concurrently
		NumCores int `yaml:"numCores"`

		// TileRows is the number of rows per work package
		TileRows int `yaml:"tileRows"`
	} `yaml:"fusion"`

	// Smoothing parameters for the median filter
	Smoothing struct {
		Enabled       bool   `yaml:"enabled"`
		Window        int    `yaml:"window"`
		MissingPolicy string `yaml:"missingPolicy"`
	} `yaml:"smoothing"`

	// Output parameters
	Output struct {
		// Dir is the output directory, relative to the work directory
		Dir string `yaml:"dir"`

		// BaseName prefixes every output file
		BaseName string `yaml:"baseName"`

		// PLYFormat is "binary" or "ascii"
		PLYFormat string `yaml:"plyFormat"`

		// WritePCD also exports the cloud as PCD
		WritePCD bool `yaml:"writePCD"`

		// WriteManifest writes a YAML summary of the run
		WriteManifest bool `yaml:"writeManifest"`

		// ColorMap names the palette of the rendered height map
		ColorMap string `yaml:"colorMap"`

		// JPEGQuality of the rendered height map
		JPEGQuality int `yaml:"jpegQuality"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.DSMDir = "dsm"
	cfg.Input.Pattern = "*.asc*"

	cfg.Fusion.MinSupport = 3
	cfg.Fusion.NumCores = runtime.NumCPU()
	cfg.Fusion.TileRows = 64

	cfg.Smoothing.Enabled = true
	cfg.Smoothing.Window = 3
	cfg.Smoothing.MissingPolicy = MissingExclude

	cfg.Output.Dir = filepath.Join("mvs_results", "aggregate_2p5d")
	cfg.Output.BaseName = "aggregate_2p5d"
	cfg.Output.PLYFormat = PLYBinary
	cfg.Output.WritePCD = false
	cfg.Output.WriteManifest = true
	cfg.Output.ColorMap = "blackbody"
	cfg.Output.JPEGQuality = 95

	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Fusion.MinSupport < 1 {
		return fmt.Errorf("%w: fusion.minSupport must be at least 1, got %d", ErrInvalid, c.Fusion.MinSupport)
	}
	if c.Fusion.NumCores < 1 {
		return fmt.Errorf("%w: fusion.numCores must be at least 1, got %d", ErrInvalid, c.Fusion.NumCores)
	}
	if c.Fusion.TileRows < 1 {
		return fmt.Errorf("%w: fusion.tileRows must be at least 1, got %d", ErrInvalid, c.Fusion.TileRows)
	}
	if c.Smoothing.Window < 3 || c.Smoothing.Window%2 == 0 {
		return fmt.Errorf("%w: smoothing.window must be odd and at least 3, got %d", ErrInvalid, c.Smoothing.Window)
	}
	switch c.Smoothing.MissingPolicy {
	case MissingExclude, MissingPropagate:
	default:
		return fmt.Errorf("%w: unknown smoothing.missingPolicy %q", ErrInvalid, c.Smoothing.MissingPolicy)
	}
	switch c.Output.PLYFormat {
	case PLYBinary, PLYASCII:
	default:
		return fmt.Errorf("%w: unknown output.plyFormat %q", ErrInvalid, c.Output.PLYFormat)
	}
	if c.Output.BaseName == "" {
		return fmt.Errorf("%w: output.baseName is required", ErrInvalid)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("%w: output.jpegQuality must be within 1..100, got %d", ErrInvalid, c.Output.JPEGQuality)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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
	return SaveConfig(DefaultConfig(), configPath)
}
