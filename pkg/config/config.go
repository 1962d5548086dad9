// Package config provides configuration loading and management for beamprofiler.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"beamprofiler/internal/models"
	"beamprofiler/pkg/fitting"
)

// Source modes
const (
	// SourceFile re-reads a single image file on every request
	SourceFile = "file"
	// SourceLatest reads the newest image file in a directory
	SourceLatest = "latest"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Profiler calibration
	Profiler struct {
		// Resolution is the physical length of one pixel. Basler acA1300-60gm
		// cameras have 5.3 micrometer/pixel.
		Resolution float64 `yaml:"resolution"`

		// SigmaSeed is the starting sigma for the fit, in pixels. Required.
		SigmaSeed float64 `yaml:"sigmaSeed"`

		// Unit is the length unit of Resolution
		Unit string `yaml:"unit"`
	} `yaml:"profiler"`

	// Fit solver parameters
	Fit struct {
		MaxIterations int     `yaml:"maxIterations"`
		GradientTol   float64 `yaml:"gradientTol"`
		StepTol       float64 `yaml:"stepTol"`
		Tau           float64 `yaml:"tau"`
	} `yaml:"fit"`

	// Image source
	Source struct {
		// Path is an image file (mode "file") or a directory (mode "latest")
		Path string `yaml:"path"`

		// Mode selects how Path is read
		Mode string `yaml:"mode"`
	} `yaml:"source"`

	// ROI holds the memorized fit regions; a negative "to" means end of profile
	ROI struct {
		X models.RegionOfInterest `yaml:"x"`
		Y models.RegionOfInterest `yaml:"y"`
	} `yaml:"roi"`

	// Output parameters
	Output struct {
		// PlotDir, when set, receives a fit plot per axis for every measurement
		PlotDir string `yaml:"plotDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
// SigmaSeed is left unset on purpose and must be configured.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Profiler.Resolution = 1.0
	cfg.Profiler.Unit = "um"

	def := fitting.DefaultSettings()
	cfg.Fit.MaxIterations = def.MaxIterations
	cfg.Fit.GradientTol = def.GradientTol
	cfg.Fit.StepTol = def.StepTol
	cfg.Fit.Tau = def.Tau

	cfg.Source.Mode = SourceFile

	cfg.ROI.X = models.FullRegion()
	cfg.ROI.Y = models.FullRegion()

	cfg.Output.Verbose = false

	return cfg
}

// FitSettings converts the fit section to solver settings.
func (c *Config) FitSettings() fitting.Settings {
	return fitting.Settings{
		MaxIterations: c.Fit.MaxIterations,
		GradientTol:   c.Fit.GradientTol,
		StepTol:       c.Fit.StepTol,
		Tau:           c.Fit.Tau,
	}
}

// RegionFor returns the configured ROI of an axis.
func (c *Config) RegionFor(axis models.Axis) models.RegionOfInterest {
	if axis == models.AxisY {
		return c.ROI.Y
	}
	return c.ROI.X
}

// SetRegion stores the ROI of an axis.
func (c *Config) SetRegion(axis models.Axis, roi models.RegionOfInterest) {
	if axis == models.AxisY {
		c.ROI.Y = roi
		return
	}
	c.ROI.X = roi
}

// Validate checks the values the profiler cannot run without.
func (c *Config) Validate() error {
	if !(c.Profiler.Resolution > 0) || math.IsInf(c.Profiler.Resolution, 0) {
		return fmt.Errorf("profiler.resolution must be positive, got %v", c.Profiler.Resolution)
	}
	if !(c.Profiler.SigmaSeed > 0) || math.IsInf(c.Profiler.SigmaSeed, 0) {
		return fmt.Errorf("profiler.sigmaSeed must be set to a positive value, got %v", c.Profiler.SigmaSeed)
	}
	if c.Fit.MaxIterations <= 0 {
		return fmt.Errorf("fit.maxIterations must be positive, got %d", c.Fit.MaxIterations)
	}
	switch c.Source.Mode {
	case SourceFile, SourceLatest:
	default:
		return fmt.Errorf("source.mode must be %q or %q, got %q", SourceFile, SourceLatest, c.Source.Mode)
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
