package storage

import (
	"context"
	"otapush/internal/models"
	"time"
)

// Storage defines the interface for release history persistence and retrieval.
// A history is stored per HistoryKey together with a revision that changes on
// every successful publish. Publishing is a compare-and-swap on that revision,
// so two writers racing on the same history cannot both succeed.
type Storage interface {
	// FetchReleaseHistory returns the stored history for key, or ErrNotFound.
	FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error)

	// PublishReleaseHistory stores history for key when the stored revision
	// equals expectedRevision and returns the new revision. An expectedRevision
	// of 0 creates the history and fails with ErrAlreadyExists if it exists.
	// A stale revision fails with ErrConflict.
	PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error)

	// ListHistories returns the binary versions that have a history for the
	// platform and identifier, sorted lexically.
	ListHistories(ctx context.Context, platform, identifier string) ([]string, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (json, memory, postgres, ...)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// CacheTTL specifies how long to cache reads in memory
	CacheTTL time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	// MaxConns bounds the database connection pool
	MaxConns int `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`

	// Bucket, Prefix and CredentialsFile address a GCS bucket
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// InMemory runs badger without touching disk
	InMemory bool `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
}
