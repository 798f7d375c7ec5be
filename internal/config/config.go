package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"otapush/internal/models"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OTAPUSH_"

// Load builds the configuration from defaults, the file at configPath (if
// any) and OTAPUSH_* environment variables, then validates it.
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// deprecatedConfig mirrors keys that older config files may still carry.
type deprecatedConfig struct {
	Storage struct {
		Database struct {
			Driver string `yaml:"driver"`
		} `yaml:"database"`
	} `yaml:"storage"`
	Cache         any    `yaml:"cache"`
	BinaryDir     string `yaml:"binary_dir"`
	Observability struct {
		ServiceVersion string `yaml:"service_version"`
	} `yaml:"observability"`
}

// warnDeprecatedKeys logs a warning for each removed key found in data. The
// keys are ignored by the main decoder.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Storage.Database.Driver != "" {
		slog.Warn("Config key is no longer used; the driver follows storage.type.", "config_key", "storage.database.driver")
	}
	if dep.Cache != nil {
		slog.Warn("Config key is no longer supported; use storage.cache_ttl for the json store.", "config_key", "cache")
	}
	if dep.BinaryDir != "" {
		slog.Warn("Config key is no longer supported; use bundle.output_bundle_dir.", "config_key", "binary_dir")
	}
	if dep.Observability.ServiceVersion != "" {
		slog.Warn("Config key is no longer supported; version is set at build time via ldflags.", "config_key", "observability.service_version")
	}
}

// loadFromFile decodes filePath by extension. TOML and JSON documents are
// normalized through YAML so durations read as "30s" in every format.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".toml":
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return err
		}
	case ".json":
		var doc map[string]any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return err
		}
	case ".yaml", ".yml", "":
	default:
		return fmt.Errorf("unsupported config format: %s", ext)
	}

	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envList(name string, dst *[]string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
}

// loadFromEnvironment applies OTAPUSH_* overrides. Unparseable values are
// ignored.
func loadFromEnvironment(config *models.Config) {
	// Server
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Storage
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)
	envDuration("STORAGE_CACHE_TTL", &config.Storage.CacheTTL)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)
	envDuration("DATABASE_CONN_MAX_LIFETIME", &config.Storage.Database.ConnMaxLifetime)
	envString("GCS_BUCKET", &config.Storage.GCS.Bucket)
	envString("GCS_PREFIX", &config.Storage.GCS.Prefix)
	envString("GCS_CREDENTIALS_FILE", &config.Storage.GCS.CredentialsFile)
	envString("BADGER_PATH", &config.Storage.Badger.Path)
	envBool("BADGER_IN_MEMORY", &config.Storage.Badger.InMemory)

	// Upload
	envString("UPLOAD_TYPE", &config.Upload.Type)
	envString("UPLOAD_PATH", &config.Upload.Path)
	envString("UPLOAD_BASE_URL", &config.Upload.BaseURL)
	envString("UPLOAD_CACHE_CONTROL", &config.Upload.CacheControl)
	envString("UPLOAD_GCS_BUCKET", &config.Upload.GCS.Bucket)
	envString("UPLOAD_GCS_PREFIX", &config.Upload.GCS.Prefix)
	envString("UPLOAD_GCS_CREDENTIALS_FILE", &config.Upload.GCS.CredentialsFile)

	// Bundle
	envString("FRAMEWORK", &config.Bundle.Framework)
	envString("BUNDLE_OUTPUT_PATH", &config.Bundle.OutputPath)
	envString("BUNDLE_ENTRY_FILE", &config.Bundle.EntryFile)
	envString("BUNDLE_NAME", &config.Bundle.BundleName)
	envString("OUTPUT_BUNDLE_DIR", &config.Bundle.OutputBundleDir)
	envList("EXTRA_BUNDLER_OPTIONS", &config.Bundle.ExtraBundlerOptions)
	envBool("HERMES_ENABLED", &config.Bundle.Hermes.Enabled)
	envString("HERMES_COMMAND", &config.Bundle.Hermes.Command)
	envList("HERMES_EXTRA_FLAGS", &config.Bundle.Hermes.ExtraFlags)

	envString("VERSIONING_STRATEGY", &config.Versioning.Strategy)

	// Security
	envBool("ENABLE_AUTH", &config.Security.EnableAuth)
	if key := os.Getenv(EnvPrefix + "API_KEY"); key != "" {
		config.Security.APIKeys = append(config.Security.APIKeys, models.APIKey{
			Name:        "env",
			Key:         key,
			Permissions: []string{"write"},
			Enabled:     true,
		})
	}
	envBool("RATE_LIMIT_ENABLED", &config.Security.RateLimit.Enabled)
	envInt("RATE_LIMIT_REQUESTS_PER_MINUTE", &config.Security.RateLimit.RequestsPerMinute)
	envInt("RATE_LIMIT_BURST_SIZE", &config.Security.RateLimit.BurstSize)

	// Logging
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics and tracing
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	envFloat("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

// ExampleConfig returns the defaults with placeholder values for the
// settings users usually change.
func ExampleConfig() *models.Config {
	config := models.NewDefaultConfig()

	config.Security.APIKeys = []models.APIKey{{
		Name:        "ci",
		Key:         models.APIKeyPrefix + "replace-with-otapush-generated-key",
		Permissions: []string{"write"},
		Enabled:     true,
	}}

	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"
	return config
}

// Marshal encodes config in the format implied by ext (".yaml", ".toml" or
// ".json").
func Marshal(config *models.Config, ext string) ([]byte, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml", "":
		return data, nil
	case ".toml", ".json":
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if strings.EqualFold(ext, ".toml") {
		return toml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// SaveExample writes ExampleConfig to filePath in the format matching its
// extension. An existing file is left alone unless force is set.
func SaveExample(filePath string, force bool) error {
	if !force {
		if _, err := os.Stat(filePath); err == nil {
			return fmt.Errorf("config file already exists: %s", filePath)
		}
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := Marshal(ExampleConfig(), filepath.Ext(filePath))
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
