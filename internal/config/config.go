/*
Package config loads the engine configuration surface (§6.5 of the
specification) the way the teacher service loads ProgConfig: read a
YAML file, unmarshal with gopkg.in/yaml.v3, fail loudly on error.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the recognized configuration surface.
type EngineConfig struct {
	TargetTotalPixels     int               `yaml:"TargetTotalPixels"`
	ProviderPriority      []string          `yaml:"ProviderPriority"`
	Credentials           map[string]string `yaml:"Credentials"`
	TilePoolRoot          string            `yaml:"TilePoolRoot"`
	MaxConcurrentTiles    int               `yaml:"MaxConcurrentTiles"`
	RequestTimeoutSeconds int               `yaml:"RequestTimeoutSeconds"`
	MaxRetries            int               `yaml:"MaxRetries"`
	EnableGMTED           bool              `yaml:"EnableGMTED"`
	MinCoverageRatio      float64           `yaml:"MinCoverageRatio"`
	BoundaryResolution    string            `yaml:"BoundaryResolution"`
	LogDirectory          string            `yaml:"LogDirectory"`
	LogLevel              string            `yaml:"LogLevel"`
	GeneratedDirectory    string            `yaml:"GeneratedDirectory"`
	DataDirectory         string            `yaml:"DataDirectory"`
	ManifestFormatVersion int               `yaml:"ManifestFormatVersion"`
}

// Default pixel budget: 2048^2, per §4.3.
const DefaultTargetTotalPixels = 2048 * 2048

// Defaults applied to any zero-valued field after loading, matching
// the spec's §6.5 defaults.
func (c *EngineConfig) applyDefaults() {
	if c.TargetTotalPixels == 0 {
		c.TargetTotalPixels = DefaultTargetTotalPixels
	}
	if c.MaxConcurrentTiles == 0 {
		c.MaxConcurrentTiles = 4
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MinCoverageRatio == 0 {
		c.MinCoverageRatio = 0.2
	}
	if c.BoundaryResolution == "" {
		c.BoundaryResolution = "10m"
	}
	if c.TilePoolRoot == "" {
		c.TilePoolRoot = "data/raw"
	}
	if c.GeneratedDirectory == "" {
		c.GeneratedDirectory = "generated"
	}
	if c.DataDirectory == "" {
		c.DataDirectory = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ManifestFormatVersion == 0 {
		c.ManifestFormatVersion = 2
	}
}

// RequestTimeout returns the configured per-tile network deadline.
func (c *EngineConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file at path, the same way
// main.go in the teacher service reads progConfigFile.
func Load(path string) (*EngineConfig, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file not found, file = [%s]: error [%w] at os.ReadFile()", path, err)
	}

	cfg := &EngineConfig{}
	if err := yaml.Unmarshal(source, cfg); err != nil {
		return nil, fmt.Errorf("configuration file invalid, file = [%s]: error [%w] at yaml.Unmarshal()", path, err)
	}

	cfg.applyDefaults()

	if cfg.TargetTotalPixels <= 0 {
		return nil, fmt.Errorf("configuration error: TargetTotalPixels must be positive, got %d", cfg.TargetTotalPixels)
	}
	if cfg.MinCoverageRatio <= 0 || cfg.MinCoverageRatio > 1 {
		return nil, fmt.Errorf("configuration error: MinCoverageRatio must be in (0, 1], got %f", cfg.MinCoverageRatio)
	}

	return cfg, nil
}
