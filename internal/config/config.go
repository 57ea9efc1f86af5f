// Package config provides configuration management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"costrules/internal/errors"
	"costrules/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" yaml:"version"`

	// Engine contains rule engine settings
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Rules lists the rule files applied on every run
	Rules RulesConfig `json:"rules" yaml:"rules"`

	// Output contains output-related settings
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// EngineConfig tunes the post-processor
type EngineConfig struct {
	// Workers bounds how many hours of one pass are computed concurrently
	Workers int `json:"workers" yaml:"workers"`

	// CacheMaxEntries bounds the derived tag group memo shared across hours
	CacheMaxEntries int64 `json:"cache_max_entries" yaml:"cache_max_entries"`
}

// RulesConfig lists rule sources
type RulesConfig struct {
	// Paths are rule files (.hcl, .yaml, .yml, .json) applied in order
	Paths []string `json:"paths" yaml:"paths"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// Indent pretty-prints written datasets
	Indent bool `json:"indent" yaml:"indent"`

	// ShowReport prints the run report after processing
	ShowReport bool `json:"show_report" yaml:"show_report"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Engine: EngineConfig{
			Workers:         runtime.GOMAXPROCS(0),
			CacheMaxEntries: 100_000,
		},
		Output: OutputConfig{
			Indent:     false,
			ShowReport: true,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file. YAML is used for .yaml/.yml paths and
// JSON for everything else. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Parsing("decode "+path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Engine.Workers < 1 {
		return errors.Configf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.CacheMaxEntries < 0 {
		return errors.Configf("engine.cache_max_entries must not be negative, got %d", c.Engine.CacheMaxEntries)
	}
	return nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
