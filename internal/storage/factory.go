package storage

import (
	"context"
	"fmt"
	"log/slog"
	"otapush/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
// This allows for easy extensibility and provider swapping without code changes.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new storage factory. logger may be nil.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - json: one JSON file per history under a directory (file locked, cached)
//   - memory: In-memory storage (for testing/development)
//   - postgres: PostgreSQL database storage (production-ready)
//   - sqlite: SQLite database storage (lightweight database)
//   - gcs: Google Cloud Storage objects guarded by generation preconditions
//   - badger: embedded key-value store
func (f *Factory) Create(ctx context.Context, config models.StorageConfig) (Storage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	// Convert models.StorageConfig to internal Config format
	storageConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		CacheTTL:         config.CacheTTL,
		MaxConns:         config.Database.MaxOpenConns,
		Bucket:           config.GCS.Bucket,
		Prefix:           config.GCS.Prefix,
		CredentialsFile:  config.GCS.CredentialsFile,
		InMemory:         config.Badger.InMemory,
	}

	switch config.Type {
	case models.StorageTypeJSON:
		return NewJSONStorage(storageConfig)
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStorage(ctx, storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteStorage(ctx, storageConfig)
	case models.StorageTypeGCS:
		return NewGCSStorage(ctx, storageConfig)
	case models.StorageTypeBadger:
		storageConfig.Path = config.Badger.Path
		return NewBadgerStorage(storageConfig, f.logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return models.StorageTypes()
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeJSON:
		if config.Path == "" {
			return fmt.Errorf("path is required for JSON storage")
		}
	case models.StorageTypeMemory:
		// Memory storage requires no additional configuration
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	case models.StorageTypeGCS:
		if config.GCS.Bucket == "" {
			return fmt.Errorf("bucket is required for GCS storage")
		}
	case models.StorageTypeBadger:
		if !config.Badger.InMemory && config.Badger.Path == "" {
			return fmt.Errorf("path is required for badger storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
	return nil
}
