// Package config provides configuration loading and management for dtitrack.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// MaxWorkers is the number of seed octants and therefore the largest useful
// tracking pool.
const MaxWorkers = 8

// Config represents the application configuration loaded from YAML
type Config struct {
	// Tracking parameters
	Tracking struct {
		// MinFA is the fractional anisotropy a voxel must exceed to be tracked through
		MinFA float64 `yaml:"minFA"`

		// MinPoints is the minimum number of points a fiber needs to be kept
		MinPoints int `yaml:"minPoints"`

		// MinCos is the minimum cosine between the directions of consecutive voxels
		MinCos float64 `yaml:"minCos"`

		// MaxSteps caps the number of voxels visited in each direction from a seed
		MaxSteps int `yaml:"maxSteps"`

		// SeedStep is the lattice spacing between seed points along each axis
		SeedStep int `yaml:"seedStep"`
	} `yaml:"tracking"`

	// Processing parameters
	Processing struct {
		// NumWorkers is the number of tracking workers, one or more seed octants each
		NumWorkers int `yaml:"numWorkers"`

		// NumCores specifies how many CPU cores to use for the eigendecomposition
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// FiberFile is the HDF5 file the fiber dataset is written to
		FiberFile string `yaml:"fiberFile"`

		// SaveSlices determines whether FA slices with fiber overlay are written
		SaveSlices bool `yaml:"saveSlices"`

		// SliceDir is the directory for the slice images
		SliceDir string `yaml:"sliceDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default tracking parameters
	cfg.Tracking.MinFA = 0.2
	cfg.Tracking.MinPoints = 30
	cfg.Tracking.MinCos = 0.80
	cfg.Tracking.MaxSteps = 200
	cfg.Tracking.SeedStep = 2

	// Set default processing parameters
	cfg.Processing.NumWorkers = MaxWorkers
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default output parameters
	cfg.Output.FiberFile = "fibers.h5"
	cfg.Output.SaveSlices = false
	cfg.Output.SliceDir = "slices"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks value ranges and clamps the worker count to 1..MaxWorkers.
func (c *Config) Validate() error {
	if c.Tracking.MinFA < 0 || c.Tracking.MinFA > 1 {
		return fmt.Errorf("tracking.minFA must be in [0, 1], got %g", c.Tracking.MinFA)
	}
	if c.Tracking.MinCos < -1 || c.Tracking.MinCos > 1 {
		return fmt.Errorf("tracking.minCos must be in [-1, 1], got %g", c.Tracking.MinCos)
	}
	if c.Tracking.MinPoints < 1 {
		return fmt.Errorf("tracking.minPoints must be positive, got %d", c.Tracking.MinPoints)
	}
	if c.Tracking.MaxSteps < 1 {
		return fmt.Errorf("tracking.maxSteps must be positive, got %d", c.Tracking.MaxSteps)
	}
	if c.Tracking.SeedStep < 1 {
		return fmt.Errorf("tracking.seedStep must be positive, got %d", c.Tracking.SeedStep)
	}

	if c.Processing.NumWorkers < 1 {
		c.Processing.NumWorkers = 1
	}
	if c.Processing.NumWorkers > MaxWorkers {
		c.Processing.NumWorkers = MaxWorkers
	}
	if c.Processing.NumCores < 1 {
		c.Processing.NumCores = runtime.NumCPU()
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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
