package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default engine parameters.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the change-detection
// engine. The schema matches the /api/config endpoint so the same JSON can
// be used for both startup configuration and inspection at runtime.
type TuningConfig struct {
	// Vectorizer params
	TileSize           *int `json:"tile_size,omitempty"`            // tile edge in pixels
	MinComponentPixels *int `json:"min_component_pixels,omitempty"` // drop components smaller than this

	// Classifier params
	ClassSpace *int `json:"class_space,omitempty"` // K: class codes must be in [0, K)

	// Resource budget
	MaxGridPixels *int64 `json:"max_grid_pixels,omitempty"` // reject aligned grids larger than this
	Workers       *int   `json:"workers,omitempty"`         // 0 means GOMAXPROCS

	// Simplifier params
	SimplifyTolerance *float64 `json:"simplify_tolerance,omitempty"` // projection units; 0 disables

	// Job control
	JobTimeout *string `json:"job_timeout,omitempty"` // duration string like "10m"; "" disables

	// Transition categories: category name -> transition codes.
	// Replaces the hardcoded class-code lists the map client used to carry.
	TransitionCategories map[string][]int `json:"transition_categories,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.TileSize != nil && *c.TileSize < 16 {
		return fmt.Errorf("tile_size must be at least 16, got %d", *c.TileSize)
	}
	if c.MinComponentPixels != nil && *c.MinComponentPixels < 1 {
		return fmt.Errorf("min_component_pixels must be at least 1, got %d", *c.MinComponentPixels)
	}
	if c.ClassSpace != nil && *c.ClassSpace < 2 {
		return fmt.Errorf("class_space must be at least 2, got %d", *c.ClassSpace)
	}
	if c.MaxGridPixels != nil && *c.MaxGridPixels < 1 {
		return fmt.Errorf("max_grid_pixels must be positive, got %d", *c.MaxGridPixels)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.SimplifyTolerance != nil && *c.SimplifyTolerance < 0 {
		return fmt.Errorf("simplify_tolerance must be non-negative, got %f", *c.SimplifyTolerance)
	}
	if c.JobTimeout != nil && *c.JobTimeout != "" {
		if _, err := time.ParseDuration(*c.JobTimeout); err != nil {
			return fmt.Errorf("invalid job_timeout '%s': %w", *c.JobTimeout, err)
		}
	}
	for category, codes := range c.TransitionCategories {
		for _, code := range codes {
			if code < 0 {
				return fmt.Errorf("transition category %q contains negative code %d", category, code)
			}
		}
	}
	return nil
}

// GetTileSize returns the tile_size value or the default.
func (c *TuningConfig) GetTileSize() int {
	if c.TileSize == nil {
		return 1024
	}
	return *c.TileSize
}

// GetMinComponentPixels returns the min_component_pixels value or the default.
func (c *TuningConfig) GetMinComponentPixels() int {
	if c.MinComponentPixels == nil {
		return 1 // no filtering
	}
	return *c.MinComponentPixels
}

// GetClassSpace returns the class_space value or the default.
func (c *TuningConfig) GetClassSpace() int {
	if c.ClassSpace == nil {
		return 100 // two-digit land-cover legends
	}
	return *c.ClassSpace
}

// GetMaxGridPixels returns the max_grid_pixels value or the default.
func (c *TuningConfig) GetMaxGridPixels() int64 {
	if c.MaxGridPixels == nil {
		return 400_000_000 // comfortably above a 200M-pixel scene
	}
	return *c.MaxGridPixels
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0 // GOMAXPROCS
	}
	return *c.Workers
}

// GetSimplifyTolerance returns the simplify_tolerance value or the default.
func (c *TuningConfig) GetSimplifyTolerance() float64 {
	if c.SimplifyTolerance == nil {
		return 0 // exact geometry unless configured
	}
	return *c.SimplifyTolerance
}

// GetJobTimeout parses and returns the JobTimeout as a time.Duration.
// Zero means no timeout.
func (c *TuningConfig) GetJobTimeout() time.Duration {
	if c.JobTimeout == nil || *c.JobTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.JobTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetTransitionCategories returns the configured category table or nil.
func (c *TuningConfig) GetTransitionCategories() map[string][]int {
	return c.TransitionCategories
}
