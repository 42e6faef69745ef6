// Package config loads the ferret-bam YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the default configuration file, looked up next to the executable
const FileName = "ferret-bam.yaml"

// EnvPath overrides the configuration file location
const EnvPath = "FERRET_BAM_CONFIG"

// Output formats
const (
	FormatTable  = "table"
	FormatJSON   = "json"
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Config represents the ferret-bam configuration.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogDir    string          `yaml:"log_dir"`
	LogLevel  string          `yaml:"log_level"`
	Artifact  ArtifactConfig  `yaml:"artifact"`
	Trust     TrustConfig     `yaml:"trust"`
	Auxiliary AuxiliaryConfig `yaml:"auxiliary"`
	Rules     RulesConfig     `yaml:"rules"`
	Output    OutputConfig    `yaml:"output"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ArtifactConfig selects the registry roots that are read.
type ArtifactConfig struct {
	Paths         []string `yaml:"paths"`
	IncludeLegacy bool     `yaml:"include_legacy"`
}

// TrustConfig tunes the trust classifier.
type TrustConfig struct {
	DenyList []string `yaml:"deny_list"`
	Stores   []string `yaml:"stores"`
}

// AuxiliaryConfig configures the replace scanner.
type AuxiliaryConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Payload string `yaml:"payload"`
	// Timeout bounds the scanner run; 0 uses the default and a negative value waits unbounded
	Timeout time.Duration `yaml:"timeout"`
}

// RulesConfig configures the pattern engine.
type RulesConfig struct {
	Path        string `yaml:"path"`
	MaxFileSize int64  `yaml:"max_file_size"`
	CacheSize   int    `yaml:"cache_size"`
}

// OutputConfig configures report export.
type OutputConfig struct {
	Format   string `yaml:"format"`
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// MetricsConfig configures the node-exporter textfile.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// AuxiliaryEnabled reports whether the replace scanner runs (default true)
func (c *Config) AuxiliaryEnabled() bool {
	return c.Auxiliary.Enabled == nil || *c.Auxiliary.Enabled
}

// Default returns the default configuration.
func Default() *Config {
	enabled := true
	return &Config{
		LogLevel: "debug",
		Auxiliary: AuxiliaryConfig{
			Enabled: &enabled,
			Timeout: 2 * time.Minute,
		},
		Rules: RulesConfig{
			MaxFileSize: 64 << 20,
			CacheSize:   4096,
		},
		Output: OutputConfig{
			Format: FormatTable,
		},
	}
}

// Load reads the configuration at path. An empty path resolves FERRET_BAM_CONFIG, then
// ferret-bam.yaml next to the executable. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = resolvePath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	hydrateDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the scanner cannot act on
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatTable, FormatJSON, FormatCSV, FormatSQLite:
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	if c.Output.Compress && c.Output.Format != FormatJSON {
		return fmt.Errorf("output.compress requires the json format")
	}
	if c.Rules.MaxFileSize < 0 {
		return fmt.Errorf("rules.max_file_size must not be negative")
	}
	return nil
}

func resolvePath() string {
	if custom := os.Getenv(EnvPath); custom != "" {
		return filepath.Clean(custom)
	}
	exe, err := os.Executable()
	if err != nil {
		return FileName
	}
	return filepath.Join(filepath.Dir(exe), FileName)
}

func hydrateDefaults(cfg *Config) {
	def := Default()
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Auxiliary.Timeout == 0 {
		cfg.Auxiliary.Timeout = def.Auxiliary.Timeout
	}
	if cfg.Rules.MaxFileSize == 0 {
		cfg.Rules.MaxFileSize = def.Rules.MaxFileSize
	}
	if cfg.Rules.CacheSize <= 0 {
		cfg.Rules.CacheSize = def.Rules.CacheSize
	}
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))
	if cfg.Output.Format == "" {
		cfg.Output.Format = def.Output.Format
	}
}
