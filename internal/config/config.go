// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/aristath/factorsweep/internal/modules/dataset"
	"github.com/aristath/factorsweep/internal/modules/sweep"
)

// Config holds the process-level configuration read from the
// environment. The sweep itself is described by a YAML spec file.
type Config struct {
	DataDir  string // Base directory for the results database and panel cache (always absolute)
	SpecPath string // Path to the sweep spec YAML
	LogLevel string
	Port     int
	DevMode  bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SWEEP_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		SpecPath: getEnv("SWEEP_SPEC", "sweep.yaml"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
	}
	return cfg, nil
}

// OutputSpec controls where run artifacts land. Paths are relative to
// the working directory unless absolute.
type OutputSpec struct {
	CSVDir    string `yaml:"csv_dir,omitempty"`    // Per-metric grid CSVs; empty disables CSV output
	CachePath string `yaml:"cache_path,omitempty"` // Panel snapshot; empty disables caching
}

// SweepSpec is the YAML file describing one full sweep: the panel to
// build, the grid to evaluate and where the outputs go.
type SweepSpec struct {
	Panel  dataset.PanelSpec `yaml:"panel"`
	Sweep  sweep.Config      `yaml:"sweep"`
	Output OutputSpec        `yaml:"output"`
}

// LoadSpec reads and validates a sweep spec file.
func LoadSpec(path string) (*SweepSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sweep spec %s: %w", path, err)
	}

	var spec SweepSpec
	if err := yaml.UnmarshalStrict(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse sweep spec %s: %w", path, err)
	}

	if err := spec.Panel.Validate(); err != nil {
		return nil, fmt.Errorf("invalid panel spec: %w", err)
	}
	if err := spec.Sweep.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}
	return &spec, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
