// Package config provides configuration for the tablet catalog and its
// command-line tools, and loads table definitions.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of all environment overrides.
const EnvPrefix = "TABLETS_"

// Config holds the configuration of the catalog and snapshot storage.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Manifest configuration
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Partitioning limits applied when tables are created
	Partitioning PartitioningConfig `json:"partitioning" yaml:"partitioning"`

	// Storage configuration for exported snapshots
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// ManifestConfig holds catalog database configuration.
type ManifestConfig struct {
	// Path is the SQLite database path (default: <data_dir>/manifest.db)
	Path string `json:"path" yaml:"path"`

	// BusyTimeout is how long writers wait for the database lock
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
}

// PartitioningConfig holds table creation limits.
type PartitioningConfig struct {
	// MaxPartitions caps the partitions a table may be created with (0 = unlimited)
	MaxPartitions int `json:"max_partitions" yaml:"max_partitions"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Prefix is prepended to every snapshot object path
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/tablets",
		Manifest: ManifestConfig{
			BusyTimeout: 5 * time.Second,
		},
		Partitioning: PartitioningConfig{
			MaxPartitions: 1000,
		},
		Storage: StorageConfig{
			Type:   "local",
			Prefix: "snapshots",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tablets"
	}
	if c.Manifest.Path == "" {
		c.Manifest.Path = filepath.Join(c.DataDir, "manifest.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Partitioning.MaxPartitions < 0 {
		return fmt.Errorf("partitioning.max_partitions must not be negative, got %d", c.Partitioning.MaxPartitions)
	}

	if c.Manifest.BusyTimeout < 0 {
		return fmt.Errorf("manifest.busy_timeout must not be negative, got %s", c.Manifest.BusyTimeout)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeFile decodes a YAML or JSON file into out, chosen by extension.
func decodeFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse JSON %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TABLETS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Manifest configuration
	if v := os.Getenv(EnvPrefix + "MANIFEST_PATH"); v != "" {
		cfg.Manifest.Path = v
	}
	if v := os.Getenv(EnvPrefix + "MANIFEST_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Manifest.BusyTimeout = d
		}
	}

	// Partitioning configuration
	if v := os.Getenv(EnvPrefix + "MAX_PARTITIONS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Partitioning.MaxPartitions)
	}

	// Storage configuration
	if v := os.Getenv(EnvPrefix + "STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_PREFIX"); v != "" {
		cfg.Storage.Prefix = v
	}
	if v := os.Getenv(EnvPrefix + "S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv(EnvPrefix + "S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv(EnvPrefix + "S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.Manifest.Path)}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
