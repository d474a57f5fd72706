// Package config loads phiup configuration with precedence
// defaults → YAML file → environment variables. CLI flags are applied on top
// by the commands themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. It is read-only after Load()
// returns.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Upload   UploadConfig   `yaml:"upload"`
	Output   OutputConfig   `yaml:"output"`
	Archive  ArchiveConfig  `yaml:"archive"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// RegistryConfig contains remote registry settings. Credentials are env or
// flag only, never YAML.
type RegistryConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Timeout  Duration `yaml:"timeout"`
	Email    string   `yaml:"-"`
	Password string   `yaml:"-"`
}

// UploadConfig contains the per-payload rate-limit retry settings.
type UploadConfig struct {
	MaxRetries  int     `yaml:"max_retries"`
	BackoffBase float64 `yaml:"backoff_base"`
}

// OutputConfig contains the filesystem layout settings.
type OutputConfig struct {
	// Root is the directory under which the API/ tree is generated.
	Root string `yaml:"root"`
	// Template is the path of the request template document.
	Template string `yaml:"template"`
}

// ArchiveConfig contains optional S3-compatible collection archival settings.
// An empty bucket disables archival.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
}

// HistoryConfig contains the run ledger settings.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string
// parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("PHIUP_CONFIG_PATH", "config/phiup.yaml")

	// Missing file is not an error; defaults apply.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path. The file must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL: "https://phidb.pnc.unipd.it/api/v1",
			Timeout: Duration(30 * time.Second),
		},
		Upload: UploadConfig{
			MaxRetries:  3,
			BackoffBase: 2,
		},
		Output: OutputConfig{
			Root:     ".",
			Template: "template/postman.json",
		},
		History: HistoryConfig{
			Path: "data/phiup.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Registry
	if v := os.Getenv("PHIUP_BASE_URL"); v != "" {
		cfg.Registry.BaseURL = v
	}
	if v := os.Getenv("PHIUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Registry.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("PHIUP_EMAIL"); v != "" {
		cfg.Registry.Email = v
	}
	if v := os.Getenv("PHIUP_PASSWORD"); v != "" {
		cfg.Registry.Password = v
	}

	// Upload
	if v := os.Getenv("PHIUP_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upload.MaxRetries = n
		}
	}
	if v := os.Getenv("PHIUP_BACKOFF_BASE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Upload.BackoffBase = f
		}
	}

	// Output
	if v := os.Getenv("PHIUP_OUTPUT_ROOT"); v != "" {
		cfg.Output.Root = v
	}
	if v := os.Getenv("PHIUP_TEMPLATE"); v != "" {
		cfg.Output.Template = v
	}

	// Archive
	if v := os.Getenv("PHIUP_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("PHIUP_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("PHIUP_ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("PHIUP_ARCHIVE_USE_SSL"); v != "" {
		ssl := v == "true" || v == "1"
		cfg.Archive.UseSSL = &ssl
	}
	if v := os.Getenv("PHIUP_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("PHIUP_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}

	// History
	if v := os.Getenv("PHIUP_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// Log
	if v := os.Getenv("PHIUP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PHIUP_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) validate() error {
	if c.Upload.MaxRetries < 0 {
		return errors.New("upload.max_retries must not be negative")
	}
	if c.Upload.BackoffBase <= 0 {
		return errors.New("upload.backoff_base must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
