// Package config provides configuration loading and management for zarrfusion.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input selects what is read from the chunked array store
	Input struct {
		// TimeIndex is the time point both views are read from
		TimeIndex int `yaml:"timeIndex"`

		// FixedView is the view index used as the registration reference
		FixedView int `yaml:"fixedView"`

		// MovingView is the view index aligned onto the fixed view
		MovingView int `yaml:"movingView"`

		// VoxelSpacing is the physical voxel size in (z, y, x) order, used
		// when the store carries no OME-Zarr scale metadata
		VoxelSpacing []float64 `yaml:"voxelSpacing"`
	} `yaml:"input"`

	// Processing parameters
	Processing struct {
		// NumCores bounds the number of goroutines used by data-parallel loops
		NumCores int `yaml:"numCores"`

		// DownsampleFactor is the isotropic zoom applied before registration
		DownsampleFactor float64 `yaml:"downsampleFactor"`
	} `yaml:"processing"`

	// Registration parameters
	Registration struct {
		// HistogramBins is the number of bins of the Mattes mutual information metric
		HistogramBins int `yaml:"histogramBins"`

		// LearningRate is the gradient descent step multiplier when it is not estimated
		LearningRate float64 `yaml:"learningRate"`

		// Iterations caps the number of optimizer iterations
		Iterations int `yaml:"iterations"`

		// EstimateLearningRate is one of "never", "once" or "eachIteration"
		EstimateLearningRate string `yaml:"estimateLearningRate"`

		// ConvergenceMinimumValue stops the optimizer once the metric trend flattens below it
		ConvergenceMinimumValue float64 `yaml:"convergenceMinimumValue"`

		// ConvergenceWindowSize is the number of metric values the trend is fitted over
		ConvergenceWindowSize int `yaml:"convergenceWindowSize"`

		// SamplingPercentage is the fraction of fixed voxels used by the metric
		SamplingPercentage float64 `yaml:"samplingPercentage"`

		// ReturnBest keeps the best evaluated parameters rather than the last step
		ReturnBest bool `yaml:"returnBest"`

		// InitialAngleDegrees is the starting rotation guess
		InitialAngleDegrees float64 `yaml:"initialAngleDegrees"`

		// RotationAxis is the axis ("X", "Y" or "Z") the initial rotation is applied about
		RotationAxis string `yaml:"rotationAxis"`

		// TracePlot, when set, is a PNG path the metric history is plotted to
		TracePlot string `yaml:"tracePlot"`
	} `yaml:"registration"`

	// Resample parameters
	Resample struct {
		// DefaultValue fills voxels that map outside the moving image
		DefaultValue float64 `yaml:"defaultValue"`
	} `yaml:"resample"`

	// Viewer parameters
	Viewer struct {
		// Enabled turns the interactive viewer on; disable for headless runs
		Enabled bool `yaml:"enabled"`

		// SnapshotDir receives JPEG snapshots saved from the viewer
		SnapshotDir string `yaml:"snapshotDir"`

		// InitialAxis is the axis ("X", "Y" or "Z") the viewer opens on
		InitialAxis string `yaml:"initialAxis"`
	} `yaml:"viewer"`

	// Store parameters
	Store struct {
		// CacheBytes is the size of the decoded chunk cache; zero disables it
		CacheBytes int `yaml:"cacheBytes"`
	} `yaml:"store"`

	// Log parameters
	Log struct {
		// Level is the minimum severity written ("debug", "info", ...)
		Level string `yaml:"level"`

		// File, when set, receives a rotated copy of the log
		File string `yaml:"file"`

		// MaxSizeMB is the size a log file reaches before it is rotated
		MaxSizeMB int `yaml:"maxSizeMB"`
	} `yaml:"log"`
}

// Learning rate estimation modes.
const (
	EstimateNever         = "never"
	EstimateOnce          = "once"
	EstimateEachIteration = "eachIteration"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Input.TimeIndex = 0
	cfg.Input.FixedView = 0
	cfg.Input.MovingView = 1
	cfg.Input.VoxelSpacing = []float64{1.018, 0.1842, 0.1842}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.DownsampleFactor = 0.25

	cfg.Registration.HistogramBins = 50
	cfg.Registration.LearningRate = 1.0
	cfg.Registration.Iterations = 300
	cfg.Registration.EstimateLearningRate = EstimateEachIteration
	cfg.Registration.ConvergenceMinimumValue = 1e-6
	cfg.Registration.ConvergenceWindowSize = 10
	cfg.Registration.SamplingPercentage = 1.0
	cfg.Registration.ReturnBest = true
	cfg.Registration.InitialAngleDegrees = 0.0
	cfg.Registration.RotationAxis = "Y"

	cfg.Resample.DefaultValue = 0.0

	cfg.Viewer.Enabled = true
	cfg.Viewer.SnapshotDir = "snapshots"
	cfg.Viewer.InitialAxis = "Z"

	cfg.Store.CacheBytes = 64 << 20

	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 10

	return cfg
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	if len(c.Input.VoxelSpacing) != 3 {
		return fmt.Errorf("input.voxelSpacing needs 3 values (z, y, x), got %d", len(c.Input.VoxelSpacing))
	}
	for _, s := range c.Input.VoxelSpacing {
		if !(s > 0) {
			return fmt.Errorf("input.voxelSpacing values must be positive, got %v", c.Input.VoxelSpacing)
		}
	}
	if c.Input.TimeIndex < 0 || c.Input.FixedView < 0 || c.Input.MovingView < 0 {
		return fmt.Errorf("input indices must be non-negative")
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if !(c.Processing.DownsampleFactor > 0) {
		return fmt.Errorf("processing.downsampleFactor must be positive, got %v", c.Processing.DownsampleFactor)
	}
	r := c.Registration
	if r.HistogramBins < 5 {
		return fmt.Errorf("registration.histogramBins must be at least 5, got %d", r.HistogramBins)
	}
	if r.Iterations < 1 {
		return fmt.Errorf("registration.iterations must be at least 1, got %d", r.Iterations)
	}
	switch r.EstimateLearningRate {
	case EstimateNever, EstimateOnce, EstimateEachIteration:
	default:
		return fmt.Errorf("registration.estimateLearningRate must be %q, %q or %q, got %q",
			EstimateNever, EstimateOnce, EstimateEachIteration, r.EstimateLearningRate)
	}
	if r.SamplingPercentage <= 0 || r.SamplingPercentage > 1 {
		return fmt.Errorf("registration.samplingPercentage must be in (0, 1], got %v", r.SamplingPercentage)
	}
	if r.ConvergenceWindowSize < 2 {
		return fmt.Errorf("registration.convergenceWindowSize must be at least 2, got %d", r.ConvergenceWindowSize)
	}
	switch strings.ToUpper(r.RotationAxis) {
	case "X", "Y", "Z":
	default:
		return fmt.Errorf("registration.rotationAxis must be X, Y or Z, got %q", r.RotationAxis)
	}
	switch strings.ToUpper(c.Viewer.InitialAxis) {
	case "X", "Y", "Z":
	default:
		return fmt.Errorf("viewer.initialAxis must be X, Y or Z, got %q", c.Viewer.InitialAxis)
	}
	if c.Store.CacheBytes < 0 {
		return fmt.Errorf("store.cacheBytes must not be negative")
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
