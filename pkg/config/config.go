// Package config provides configuration loading and management for shrinkwrap.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gopkg.in/yaml.v3"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/interpolation"
	"shrinkwrap/pkg/rayindex"
	"shrinkwrap/pkg/reconstruction"
	"shrinkwrap/pkg/visualization"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Grid parameters
	Grid struct {
		// Resolution is the number of cells along the longest side of the
		// cloud bounding box
		Resolution int `yaml:"resolution"`

		// Padding is the number of extra cells on every side of the grid
		Padding int `yaml:"padding"`

		// SeedOffset enlarges the bounding box, in cells, to seed the field
		SeedOffset float64 `yaml:"seedOffset"`
	} `yaml:"grid"`

	// Evolution parameters
	Evolution struct {
		// Iterations caps the number of evolution steps
		Iterations int `yaml:"iterations"`

		// StepSize is the largest field increment of a step, in cells
		StepSize float64 `yaml:"stepSize"`

		// FalloffScale widens the term keeping updates near the largest pull
		FalloffScale float64 `yaml:"falloffScale"`

		// SlowdownScale widens the term damping nearly converged voxels
		SlowdownScale float64 `yaml:"slowdownScale"`

		// BandRadius is the half width of the narrow band, in cells
		BandRadius float64 `yaml:"bandRadius"`

		// Omega scales the constraint weight of every ray hit
		Omega float64 `yaml:"omega"`

		// AverageHits constrains every hit face once with its mean hit
		// instead of once per hit
		AverageHits bool `yaml:"averageHits"`

		// WeightScheme is cotangent or combinatorial
		WeightScheme string `yaml:"weightScheme"`

		// Solver is auto, cholesky or cg
		Solver string `yaml:"solver"`

		// RayTraversal is march or origin
		RayTraversal string `yaml:"rayTraversal"`

		// ConvergenceTol stops the evolution once the largest increment of
		// a step is at most this value
		ConvergenceTol float64 `yaml:"convergenceTol"`

		// NumWorkers specifies how many goroutines share a step
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"evolution"`

	// Output parameters
	Output struct {
		// STLPath is where the final surface is written
		STLPath string `yaml:"stlPath"`

		// ReportPath is where the per-step JSON report is written, empty
		// to skip it
		ReportPath string `yaml:"reportPath"`

		// MetricsPath is where the Prometheus metrics of the run are
		// written, empty to skip them
		MetricsPath string `yaml:"metricsPath"`

		// SlicesDir receives grey level slices of the final field, empty to
		// skip them
		SlicesDir string `yaml:"slicesDir"`

		// RenderMode is flat, vertex or face
		RenderMode string `yaml:"renderMode"`

		// LogLevel is debug, info, warning or error
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid.Resolution = 16
	cfg.Grid.Padding = 2
	cfg.Grid.SeedOffset = 0.5

	cfg.Evolution.Iterations = 50
	cfg.Evolution.StepSize = 0.25
	cfg.Evolution.FalloffScale = 3
	cfg.Evolution.SlowdownScale = 1
	cfg.Evolution.BandRadius = 2
	cfg.Evolution.Omega = 1e8
	cfg.Evolution.WeightScheme = "cotangent"
	cfg.Evolution.Solver = "auto"
	cfg.Evolution.RayTraversal = "march"
	cfg.Evolution.ConvergenceTol = 0
	cfg.Evolution.NumWorkers = runtime.NumCPU()

	cfg.Output.STLPath = "surface.stl"
	cfg.Output.RenderMode = "vertex"
	cfg.Output.LogLevel = "info"

	return cfg
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
		return nil, errors.New("reading config file failed").
			WithTag("path", configPath).
			Wrap(err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("parsing config file failed").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("path", configPath).
			Wrap(err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.New("creating config directory failed").
			WithTag("dir", dir).
			Wrap(err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.New("marshaling config failed").Wrap(err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.New("writing config file failed").
			WithTag("path", configPath).
			Wrap(err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate reports the first setting that cannot drive a reconstruction.
func (c *Config) Validate() error {
	invalid := func(key string, value any) error {
		return errors.New("invalid configuration value").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("key", key).
			WithTag("value", value)
	}

	switch {
	case c.Grid.Resolution <= 0:
		return invalid("grid.resolution", c.Grid.Resolution)
	case c.Grid.Padding < 1:
		return invalid("grid.padding", c.Grid.Padding)
	case c.Evolution.Iterations <= 0:
		return invalid("evolution.iterations", c.Evolution.Iterations)
	case c.Evolution.NumWorkers <= 0:
		return invalid("evolution.numWorkers", c.Evolution.NumWorkers)
	}

	if _, ok := visualization.ParseRenderMode(c.Output.RenderMode); !ok {
		return invalid("output.renderMode", c.Output.RenderMode)
	}

	p, err := c.EvolutionParams()
	if err != nil {
		return err
	}
	return p.Validate()
}

// EvolutionParams converts the evolution settings into reconstruction
// parameters.
func (c *Config) EvolutionParams() (reconstruction.Params, error) {
	p := reconstruction.DefaultParams()

	scheme, ok := interpolation.ParseWeightScheme(c.Evolution.WeightScheme)
	if !ok {
		return p, errors.New("unknown weight scheme").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("value", c.Evolution.WeightScheme)
	}
	solver, ok := interpolation.ParseSolver(c.Evolution.Solver)
	if !ok {
		return p, errors.New("unknown solver").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("value", c.Evolution.Solver)
	}
	traversal, ok := rayindex.ParseTraversal(c.Evolution.RayTraversal)
	if !ok {
		return p, errors.New("unknown ray traversal").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("value", c.Evolution.RayTraversal)
	}
	mode, _ := visualization.ParseRenderMode(c.Output.RenderMode)

	p.SeedOffset = c.Grid.SeedOffset
	p.StepSize = c.Evolution.StepSize
	p.FalloffScale = c.Evolution.FalloffScale
	p.SlowdownScale = c.Evolution.SlowdownScale
	p.BandRadius = c.Evolution.BandRadius
	p.Omega = c.Evolution.Omega
	p.AverageHits = c.Evolution.AverageHits
	p.WeightScheme = scheme
	p.Solver = solver
	p.Traversal = traversal
	p.ConvergenceTol = c.Evolution.ConvergenceTol
	p.NumCores = c.Evolution.NumWorkers
	p.RenderMode = mode
	return p, nil
}
