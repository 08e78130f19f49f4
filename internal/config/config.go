package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the complete daypack configuration. Everything has a working
// default except the source directory and, for the s3 store, the bucket.
type Config struct {
	Source  string        `yaml:"source"`
	Staging StagingConfig `yaml:"staging"`
	Backup  BackupConfig  `yaml:"backup"`
	Retry   RetryConfig   `yaml:"retry"`
	Store   StoreConfig   `yaml:"store"`
}

// StagingConfig holds local staging configuration.
type StagingConfig struct {
	Dir      string `yaml:"dir"`
	KeepDays int    `yaml:"keep_days"`
}

// BackupConfig holds pipeline configuration.
type BackupConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	Format      string `yaml:"format"` // "zip" or "tzst"
	Concurrency int    `yaml:"concurrency"`
	Prefix      string `yaml:"prefix"` // optional key prefix inside the bucket
}

// RetryConfig bounds upload retries.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
}

// StoreConfig selects and configures the remote store backend.
type StoreConfig struct {
	Type string   `yaml:"type"` // "fs" or "s3"
	Dir  string   `yaml:"dir"`  // fs: bucket directory
	S3   S3Config `yaml:"s3"`
}

// S3Config holds S3 backend configuration. Empty credentials fall back to
// the SDK's default chain.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Staging: StagingConfig{
			Dir:      "./daypack-staging",
			KeepDays: 7,
		},
		Backup: BackupConfig{
			BatchSize:   25,
			Format:      "zip",
			Concurrency: 1,
		},
		Retry: RetryConfig{
			Attempts: 5,
			Delay:    500 * time.Millisecond,
			MaxDelay: 30 * time.Second,
		},
		Store: StoreConfig{
			Type: "fs",
			Dir:  "./daypack-bucket",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
	}
}

// Load reads configuration from path (if it exists), applies environment
// overrides, and validates the result. A missing file is not an error:
// defaults plus environment are enough to run against a local fs store.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, so a run configured by flags can
// persist its settings for the next invocation.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks invariants that would otherwise surface mid-run.
func (c *Config) Validate() error {
	if c.Backup.BatchSize <= 0 {
		return fmt.Errorf("backup.batch_size must be positive")
	}
	if c.Backup.Concurrency < 0 {
		return fmt.Errorf("backup.concurrency must not be negative")
	}
	switch c.Backup.Format {
	case "", "zip", "tzst", "tar.zst":
	default:
		return fmt.Errorf("backup.format must be \"zip\" or \"tzst\", got %q", c.Backup.Format)
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive")
	}

	switch c.Store.Type {
	case "fs":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the fs store")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 store")
		}
	default:
		return fmt.Errorf("store.type must be \"fs\" or \"s3\", got %q", c.Store.Type)
	}
	return nil
}

// applyEnv overrides fields from DAYPACK_* environment variables.
func applyEnv(c *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("DAYPACK_SOURCE", &c.Source)
	setString("DAYPACK_STAGING_DIR", &c.Staging.Dir)
	setString("DAYPACK_FORMAT", &c.Backup.Format)
	setString("DAYPACK_PREFIX", &c.Backup.Prefix)
	setString("DAYPACK_STORE_TYPE", &c.Store.Type)
	setString("DAYPACK_STORE_DIR", &c.Store.Dir)
	setString("DAYPACK_S3_BUCKET", &c.Store.S3.Bucket)
	setString("DAYPACK_S3_REGION", &c.Store.S3.Region)
	setString("DAYPACK_S3_ENDPOINT", &c.Store.S3.Endpoint)
	setString("DAYPACK_S3_ACCESS_KEY", &c.Store.S3.AccessKey)
	setString("DAYPACK_S3_SECRET_KEY", &c.Store.S3.SecretKey)
}
