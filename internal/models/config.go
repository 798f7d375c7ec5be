// Package models - Service configuration and operational settings.
// This file defines configuration structures shared by the otapush CLI and the
// otapushd server.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, upload, etc.)
// - Defaults that work out of the box with local JSON storage
// - Every section validates itself so misconfigurations fail at startup
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeGCS      = "gcs"
	StorageTypeBadger   = "badger"
)

// Upload type constants
const (
	UploadTypeLocal = "local"
	UploadTypeGCS   = "gcs"
)

// Config is the root configuration structure.
//
// Configuration Structure:
// - Server: HTTP server for device checks and history administration
// - Storage: where release histories live
// - Upload: where bundle archives are published
// - Bundle: how the JS bundle and Hermes bytecode are produced
// - Versioning: which ordering scheme release keys follow
// - Security: API keys and rate limiting
// - Logging, Metrics, Observability: operational output
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server" toml:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage" toml:"storage"`
	Upload        UploadConfig        `yaml:"upload" json:"upload" toml:"upload"`
	Bundle        BundleConfig        `yaml:"bundle" json:"bundle" toml:"bundle"`
	Versioning    VersioningConfig    `yaml:"versioning" json:"versioning" toml:"versioning"`
	Security      SecurityConfig      `yaml:"security" json:"security" toml:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging" toml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics" toml:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" toml:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port" toml:"port"`
	Host         string        `yaml:"host" json:"host" toml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled" toml:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file" toml:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file" toml:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type" toml:"type"`
	Path     string         `yaml:"path" json:"path" toml:"path"`
	CacheTTL time.Duration  `yaml:"cache_ttl" json:"cache_ttl" toml:"cache_ttl"`
	Database DatabaseConfig `yaml:"database" json:"database" toml:"database"`
	GCS      GCSConfig      `yaml:"gcs" json:"gcs" toml:"gcs"`
	Badger   BadgerConfig   `yaml:"badger" json:"badger" toml:"badger"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn" toml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

// GCSConfig addresses a Google Cloud Storage bucket. An empty CredentialsFile
// uses application default credentials.
type GCSConfig struct {
	Bucket          string `yaml:"bucket" json:"bucket" toml:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix" toml:"prefix"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file" toml:"credentials_file"`
}

type BadgerConfig struct {
	Path     string `yaml:"path" json:"path" toml:"path"`
	InMemory bool   `yaml:"in_memory" json:"in_memory" toml:"in_memory"`
}

// UploadConfig selects where bundle archives go. BaseURL is prefixed to the
// bundle object path to form the download URL handed to devices.
type UploadConfig struct {
	Type         string    `yaml:"type" json:"type" toml:"type"`
	Path         string    `yaml:"path" json:"path" toml:"path"`
	BaseURL      string    `yaml:"base_url" json:"base_url" toml:"base_url"`
	CacheControl string    `yaml:"cache_control" json:"cache_control" toml:"cache_control"`
	GCS          GCSConfig `yaml:"gcs" json:"gcs" toml:"gcs"`
}

type BundleConfig struct {
	Framework           string       `yaml:"framework" json:"framework" toml:"framework"`
	OutputPath          string       `yaml:"output_path" json:"output_path" toml:"output_path"`
	EntryFile           string       `yaml:"entry_file" json:"entry_file" toml:"entry_file"`
	BundleName          string       `yaml:"bundle_name" json:"bundle_name" toml:"bundle_name"`
	OutputBundleDir     string       `yaml:"output_bundle_dir" json:"output_bundle_dir" toml:"output_bundle_dir"`
	ReactNativeCLI      string       `yaml:"react_native_cli" json:"react_native_cli" toml:"react_native_cli"`
	ExpoCLI             string       `yaml:"expo_cli" json:"expo_cli" toml:"expo_cli"`
	ExtraBundlerOptions []string     `yaml:"extra_bundler_options" json:"extra_bundler_options" toml:"extra_bundler_options"`
	Hermes              HermesConfig `yaml:"hermes" json:"hermes" toml:"hermes"`
}

// HermesConfig controls bytecode compilation. Empty paths are looked up under
// node_modules.
type HermesConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	Command           string   `yaml:"command" json:"command" toml:"command"`
	ExtraFlags        []string `yaml:"extra_flags" json:"extra_flags" toml:"extra_flags"`
	ComposeSourceMaps string   `yaml:"compose_source_maps" json:"compose_source_maps" toml:"compose_source_maps"`
}

type VersioningConfig struct {
	Strategy string `yaml:"strategy" json:"strategy" toml:"strategy"`
}

type SecurityConfig struct {
	EnableAuth bool            `yaml:"enable_auth" json:"enable_auth" toml:"enable_auth"`
	APIKeys    []APIKey        `yaml:"api_keys" json:"api_keys" toml:"api_keys"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute" toml:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size" toml:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" toml:"cleanup_interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" toml:"level"`
	Format   string `yaml:"format" json:"format" toml:"format"`
	Output   string `yaml:"output" json:"output" toml:"output"`
	FilePath string `yaml:"file_path" json:"file_path" toml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Path    string `yaml:"path" json:"path" toml:"path"`
	Port    int    `yaml:"port" json:"port" toml:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name" toml:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing" toml:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" toml:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter" toml:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint" toml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate" toml:"sample_rate"`
}

// NewDefaultConfig creates a configuration with working defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - JSON storage and local upload under ./data: no external services needed
// - Semantic versioning: the common scheme for app releases
// - Bundle paths match the react-native CLI layout (build/, bundle/, index.ts)
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type:     StorageTypeJSON,
			Path:     "./data",
			CacheTTL: 30 * time.Second,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
		},
		Upload: UploadConfig{
			Type:         UploadTypeLocal,
			Path:         "./data/public",
			BaseURL:      "http://localhost:8080/static",
			CacheControl: "public, max-age=31536000, immutable",
		},
		Bundle: BundleConfig{
			OutputPath:      "build",
			EntryFile:       "index.ts",
			OutputBundleDir: "bundle",
			ReactNativeCLI:  "node_modules/.bin/react-native",
			ExpoCLI:         "node_modules/.bin/expo",
			Hermes: HermesConfig{
				Enabled: true,
			},
		},
		Versioning: VersioningConfig{
			Strategy: "semantic",
		},
		Security: SecurityConfig{
			APIKeys: []APIKey{},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				BurstSize:         20,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "otapush",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("invalid upload config: %w", err)
	}

	if err := c.Bundle.Validate(); err != nil {
		return fmt.Errorf("invalid bundle config: %w", err)
	}

	if err := c.Versioning.Validate(); err != nil {
		return fmt.Errorf("invalid versioning config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

// StorageTypes lists the supported history backends.
func StorageTypes() []string {
	return []string{StorageTypeJSON, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite, StorageTypeGCS, StorageTypeBadger}
}

func (stc *StorageConfig) Validate() error {
	if !slices.Contains(StorageTypes(), stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.CacheTTL < 0 {
		return errors.New("cache TTL cannot be negative")
	}

	switch stc.Type {
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	case StorageTypeGCS:
		if stc.GCS.Bucket == "" {
			return errors.New("bucket is required for GCS storage")
		}
	case StorageTypeBadger:
		if !stc.Badger.InMemory && stc.Badger.Path == "" {
			return errors.New("path is required for on-disk badger storage")
		}
	}

	return nil
}

func (uc *UploadConfig) Validate() error {
	switch uc.Type {
	case UploadTypeLocal:
		if uc.Path == "" {
			return errors.New("path is required for local upload")
		}
	case UploadTypeGCS:
		if uc.GCS.Bucket == "" {
			return errors.New("bucket is required for GCS upload")
		}
	default:
		return fmt.Errorf("invalid upload type: %s", uc.Type)
	}
	return nil
}

func (bc *BundleConfig) Validate() error {
	if bc.Framework != "" && bc.Framework != "expo" {
		return fmt.Errorf("invalid framework: %s", bc.Framework)
	}
	if bc.OutputPath == "" {
		return errors.New("output path cannot be empty")
	}
	if bc.OutputBundleDir == "" {
		return errors.New("output bundle dir cannot be empty")
	}
	if bc.EntryFile == "" {
		return errors.New("entry file cannot be empty")
	}
	return nil
}

func (vc *VersioningConfig) Validate() error {
	switch vc.Strategy {
	case "semantic", "incremental":
		return nil
	default:
		return fmt.Errorf("invalid versioning strategy: %q", vc.Strategy)
	}
}

func (sec *SecurityConfig) Validate() error {
	if sec.RateLimit.Enabled {
		if sec.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if sec.RateLimit.BurstSize < 0 {
			return errors.New("burst size cannot be negative")
		}
	}

	for _, apiKey := range sec.APIKeys {
		if apiKey.Key == "" && apiKey.KeyHash == "" {
			return errors.New("API key cannot be empty")
		}
		if apiKey.Name == "" {
			return errors.New("API key name cannot be empty")
		}
	}

	if sec.EnableAuth && len(sec.APIKeys) == 0 {
		return errors.New("at least one API key is required when auth is enabled")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("otlp endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}
