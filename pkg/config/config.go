package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/htrlab/laia/pkg/phoc"
	"github.com/htrlab/laia/pkg/stores"
	"github.com/htrlab/laia/pkg/telemetry"
)

// Config is the laia application configuration.
type Config struct {
	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Store configures the run history database.
	Store StoreConfig `yaml:"store"`

	// Engine configures engines built by the CLI.
	Engine EngineConfig `yaml:"engine"`

	// PHOC configures the PHOC encoder.
	PHOC PHOCConfig `yaml:"phoc"`
}

// StoreConfig configures the SQLite run history.
type StoreConfig struct {
	// Path is the database file. Empty disables recording.
	Path string `yaml:"path"`

	// MaxOpenConns limits open connections. Zero uses the store default.
	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns limits idle connections. Zero uses the store default.
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`
}

// EngineConfig configures the progress bar of CLI engines.
type EngineConfig struct {
	// Progress shows a progress bar while iterating batches.
	Progress bool `yaml:"progress"`

	// ProgressLabel prefixes the progress bar.
	ProgressLabel string `yaml:"progress_label" validate:"max=64"`
}

// PHOCConfig configures PHOC encoding.
type PHOCConfig struct {
	// Levels are the pyramid levels.
	Levels []int `yaml:"levels" validate:"required,min=1,dive,gt=0"`

	// CacheSize is the number of cached encodings. Zero uses the default.
	CacheSize int `yaml:"cache_size" validate:"gte=0"`

	// IgnoreMissing skips symbols missing from the symbol table.
	IgnoreMissing bool `yaml:"ignore_missing"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Telemetry: *telemetry.DefaultConfig(),
		PHOC: PHOCConfig{
			Levels:    []int{1, 2, 3, 4, 5},
			CacheSize: phoc.DefaultCacheSize,
		},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct constraints and the nested telemetry settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}

	return nil
}

// StoreConfig converts the store section to a stores.Config.
func (c *Config) StoreConfig() stores.Config {
	return stores.Config{
		Path:         c.Store.Path,
		MaxOpenConns: c.Store.MaxOpenConns,
		MaxIdleConns: c.Store.MaxIdleConns,
	}
}

// Encode writes the configuration as YAML.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
