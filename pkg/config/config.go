package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. Nesting levels are separated by
// a double underscore: CLONESTREAM_DETECTOR__CHUNK_SIZE=7.
const EnvPrefix = "CLONESTREAM_"

// Config holds all configuration options for clonestream.
type Config struct {
	// Clone detection settings
	Detector DetectorConfig `koanf:"detector" toml:"detector" yaml:"detector"`

	// Corpus storage
	Store StoreConfig `koanf:"store" toml:"store" yaml:"store"`

	// HTTP ingestion endpoint
	Server ServerConfig `koanf:"server" toml:"server" yaml:"server"`

	// Count sampler
	Monitor MonitorConfig `koanf:"monitor" toml:"monitor" yaml:"monitor"`

	// Batch ingestion
	Ingest IngestConfig `koanf:"ingest" toml:"ingest" yaml:"ingest"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude" yaml:"exclude"`

	Log LogConfig `koanf:"log" toml:"log" yaml:"log"`
}

// DetectorConfig controls chunking and the accepted file types.
type DetectorConfig struct {
	ChunkSize    int      `koanf:"chunk_size" toml:"chunk_size" yaml:"chunk_size" validate:"min=1"`
	Accept       []string `koanf:"accept" toml:"accept" yaml:"accept" validate:"min=1,dive,required"`
	CacheEntries int      `koanf:"cache_entries" toml:"cache_entries" yaml:"cache_entries" validate:"min=0"`
}

// StoreConfig selects the corpus backend.
type StoreConfig struct {
	Driver string `koanf:"driver" toml:"driver" yaml:"driver" validate:"oneof=memory sqlite"`
	Path   string `koanf:"path" toml:"path" yaml:"path" validate:"required_if=Driver sqlite"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr           string `koanf:"addr" toml:"addr" yaml:"addr" validate:"required"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes" toml:"max_upload_bytes" yaml:"max_upload_bytes" validate:"min=1"`
	StatsHistory   int    `koanf:"stats_history" toml:"stats_history" yaml:"stats_history" validate:"min=1"`
	StatsEvery     int    `koanf:"stats_every" toml:"stats_every" yaml:"stats_every" validate:"min=0"`
}

// MonitorConfig controls the count sampler.
type MonitorConfig struct {
	Enabled    bool          `koanf:"enabled" toml:"enabled" yaml:"enabled"`
	Interval   time.Duration `koanf:"interval" toml:"interval" yaml:"interval" validate:"min=1ms"`
	MaxSamples int           `koanf:"max_samples" toml:"max_samples" yaml:"max_samples" validate:"min=1"`
}

// IngestConfig controls batch ingestion.
type IngestConfig struct {
	Workers int `koanf:"workers" toml:"workers" yaml:"workers" validate:"min=1"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns" yaml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs" yaml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore" yaml:"gitignore"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level      string `koanf:"level" toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `koanf:"format" toml:"format" yaml:"format" validate:"oneof=console json"`
	File       string `koanf:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb" validate:"min=1"`
	MaxBackups int    `koanf:"max_backups" toml:"max_backups" yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `koanf:"max_age_days" toml:"max_age_days" yaml:"max_age_days" validate:"min=0"`
	Compress   bool   `koanf:"compress" toml:"compress" yaml:"compress"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Detector: DetectorConfig{
			ChunkSize:    5,
			Accept:       []string{"*.java"},
			CacheEntries: 4096,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   ".clonestream/corpus.db",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 10 << 20,
			StatsHistory:   5000,
			StatsEvery:     100,
		},
		Monitor: MonitorConfig{
			Enabled:    true,
			Interval:   5 * time.Second,
			MaxSamples: 1000,
		},
		Ingest: IngestConfig{
			Workers: 1,
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				".git",
				".clonestream",
				"build",
				"target",
				"node_modules",
			},
			Gitignore: true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from a file, then applies environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return unmarshal(k)
}

// FromEnv returns defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	return unmarshal(koanf.New("."))
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps CLONESTREAM_SERVER__STATS_EVERY to server.stats_every.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// ConfigNames are the file names searched by LoadOrDefault, in order.
var ConfigNames = []string{
	"clonestream.toml",
	"clonestream.yaml",
	"clonestream.yml",
	"clonestream.json",
	".clonestream.toml",
	".clonestream.yaml",
	".clonestream.yml",
	".clonestream.json",
}

// Find returns the first config file in the current directory or
// .clonestream/, or "" when there is none.
func Find() string {
	for _, dir := range []string{".", ".clonestream"} {
		for _, name := range ConfigNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	if path := Find(); path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	if cfg, err := FromEnv(); err == nil {
		return cfg
	}
	return DefaultConfig()
}

// Validate checks the struct tags and the accept patterns.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msg := fmt.Sprintf("%s: rule '%s'", e.Namespace(), e.Tag())
				if e.Param() != "" {
					msg += fmt.Sprintf(" (expected: %s)", e.Param())
				}
				msgs = append(msgs, msg)
			}
			return fmt.Errorf("configuration validation failed:\n  %s", strings.Join(msgs, "\n  "))
		}
		return fmt.Errorf("configuration validation error: %w", err)
	}
	return nil
}

// ShouldExclude checks if a path should be excluded from ingestion.
func (c *Config) ShouldExclude(path string) bool {
	sep := string(filepath.Separator)
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, sep+dir+sep) || strings.HasPrefix(path, dir+sep) {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
