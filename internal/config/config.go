// Package config provides configuration loading and management for the
// pupil tools server. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/pupil-tools-mcp/internal/hough"
	"github.com/ironsheep/pupil-tools-mcp/internal/probe"
)

// Config represents the server configuration loaded from YAML.
type Config struct {
	// Coarse is the geometry of the coarse probe table.
	Coarse probe.Params `yaml:"coarse"`

	// Fine configures the refinement stage and its table.
	Fine probe.Refinement `yaml:"fine"`

	// AOI holds the margins trimmed from each image edge.
	AOI probe.AreaOfInterest `yaml:"aoi"`

	// Search parameters
	Search struct {
		// Stride is the step between coarse candidate centers in pixels
		Stride int `yaml:"stride"`

		// Workers is how many goroutines scan coarse rows
		Workers int `yaml:"workers"`

		// MinScore is the mean contrast a detection must exceed
		MinScore float64 `yaml:"minScore"`
	} `yaml:"search"`

	// Training parameters
	Training struct {
		// Rate is the learning rate used when a request gives none
		Rate float64 `yaml:"rate"`

		// DistWeight damps reinforcement of deeper probes
		DistWeight float64 `yaml:"distWeight"`

		// StrikeLimit disables a sample after that many contradictions in a
		// row; 0 never disables
		StrikeLimit int `yaml:"strikeLimit"`

		// NormalizePercentile is the weight quantile rescaled to 1.0
		NormalizePercentile float64 `yaml:"normalizePercentile"`
	} `yaml:"training"`

	// Preprocess parameters
	Preprocess struct {
		// BlurSigma is the Gaussian blur applied to frames; 0 disables it
		BlurSigma float64 `yaml:"blurSigma"`
	} `yaml:"preprocess"`

	// Hough parameters for the edge-vote detector
	Hough struct {
		MinRadius     int     `yaml:"minRadius"`
		MaxRadius     int     `yaml:"maxRadius"`
		AngleStep     float64 `yaml:"angleStep"`
		EdgeThreshold float64 `yaml:"edgeThreshold"`
		MinConfidence float64 `yaml:"minConfidence"`
	} `yaml:"hough"`

	// Tables parameters
	Tables struct {
		// Path is a table file loaded at startup and used by pupil_save and
		// pupil_load when a request names no path
		Path string `yaml:"path"`
	} `yaml:"tables"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Coarse: probe.DefaultParams(),
		Fine:   probe.DefaultRefinement(),
		AOI:    probe.DefaultAreaOfInterest(),
	}

	opts := probe.DefaultOptions()
	cfg.Search.Stride = opts.Stride
	cfg.Search.Workers = runtime.NumCPU()
	cfg.Search.MinScore = opts.MinScore

	cfg.Training.Rate = 0.05
	cfg.Training.DistWeight = opts.DistWeight
	cfg.Training.StrikeLimit = probe.DefaultStrikeLimit
	cfg.Training.NormalizePercentile = 0.95

	cfg.Preprocess.BlurSigma = 1.0

	cfg.Hough.MinRadius = int(cfg.Coarse.MinRadius)
	cfg.Hough.MaxRadius = int(cfg.Coarse.MaxRadius)
	cfg.Hough.AngleStep = 5
	cfg.Hough.MinConfidence = 0.3

	return cfg
}

// DetectorOptions returns the probe search and training options.
func (c *Config) DetectorOptions() probe.Options {
	return probe.Options{
		Stride:     c.Search.Stride,
		Workers:    c.Search.Workers,
		MinScore:   c.Search.MinScore,
		DistWeight: c.Training.DistWeight,
		Demotion:   probe.DecayDemotion{StrikeLimit: uint16(c.Training.StrikeLimit)},
	}
}

// NewDetector builds a probe detector from the configuration, including its
// area of interest.
func (c *Config) NewDetector() (*probe.Detector, error) {
	d, err := probe.New(c.Coarse, c.Fine, c.DetectorOptions())
	if err != nil {
		return nil, err
	}
	if err := d.SetAreaOfInterest(c.AOI.StartX, c.AOI.StopX, c.AOI.StartY, c.AOI.StopY); err != nil {
		return nil, err
	}
	return d, nil
}

// NewHough builds the edge-vote detector from the configuration. It shares
// the probe detector's area of interest.
func (c *Config) NewHough() (*hough.Detector, error) {
	h, err := hough.New(c.Hough.MinRadius, c.Hough.MaxRadius)
	if err != nil {
		return nil, err
	}
	h.AngleStep = c.Hough.AngleStep
	h.EdgeThreshold = c.Hough.EdgeThreshold
	h.MinConfidence = c.Hough.MinConfidence
	h.AOI = c.AOI
	return h, nil
}

// Validate checks every section and reports the first problem as a
// probe.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.Coarse.Validate(); err != nil {
		return fmt.Errorf("coarse: %w", err)
	}
	if err := c.Fine.Validate(c.Coarse); err != nil {
		return fmt.Errorf("fine: %w", err)
	}
	if c.AOI.StartX < 0 || c.AOI.StopX < 0 || c.AOI.StartY < 0 || c.AOI.StopY < 0 {
		return fmt.Errorf("aoi: %w: negative margin %+v", probe.ErrConfiguration, c.AOI)
	}
	if c.Training.StrikeLimit < 0 || c.Training.StrikeLimit > math.MaxUint16 {
		return fmt.Errorf("training: %w: strike limit %d out of range", probe.ErrConfiguration, c.Training.StrikeLimit)
	}
	if err := c.DetectorOptions().Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if r := c.Training.Rate; math.IsNaN(r) || r <= 0 || r > 1 {
		return fmt.Errorf("training: %w: rate must be in (0, 1], got %g", probe.ErrConfiguration, r)
	}
	if p := c.Training.NormalizePercentile; math.IsNaN(p) || p <= 0 || p > 1 {
		return fmt.Errorf("training: %w: normalize percentile must be in (0, 1], got %g", probe.ErrConfiguration, p)
	}
	if b := c.Preprocess.BlurSigma; math.IsNaN(b) || b < 0 {
		return fmt.Errorf("preprocess: %w: blur sigma must not be negative, got %g", probe.ErrConfiguration, b)
	}
	if _, err := c.NewHough(); err != nil {
		return fmt.Errorf("hough: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
// Keys missing from the file keep their default values.
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
