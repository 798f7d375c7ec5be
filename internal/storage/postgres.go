package storage

import (
	"context"
	"errors"
	"fmt"
	"otapush/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS release_histories (
	platform       TEXT        NOT NULL,
	identifier     TEXT        NOT NULL,
	binary_version TEXT        NOT NULL,
	history        JSONB       NOT NULL,
	revision       BIGINT      NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (platform, identifier, binary_version)
)`

// PostgresStorage implements the Storage interface using PostgreSQL. Each
// history is one JSONB row; the revision column guards publishes.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = int32(config.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

// FetchReleaseHistory reads one history row.
func (ps *PostgresStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	var (
		data     []byte
		revision int64
	)
	err = ps.pool.QueryRow(ctx,
		`SELECT history, revision FROM release_histories
		 WHERE platform = $1 AND identifier = $2 AND binary_version = $3`,
		key.Platform, key.Identifier, key.BinaryVersion,
	).Scan(&data, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release history: %w", err)
	}

	h, err := decodeHistory(data)
	if err != nil {
		return nil, err
	}
	return &models.HistoryRecord{Key: key, History: h, Revision: revision}, nil
}

// PublishReleaseHistory inserts or conditionally updates the row.
func (ps *PostgresStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}

	data, err := encodeHistory(history)
	if err != nil {
		return 0, err
	}

	if expectedRevision == 0 {
		tag, err := ps.pool.Exec(ctx,
			`INSERT INTO release_histories (platform, identifier, binary_version, history, revision)
			 VALUES ($1, $2, $3, $4, 1)
			 ON CONFLICT (platform, identifier, binary_version) DO NOTHING`,
			key.Platform, key.Identifier, key.BinaryVersion, data,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create release history: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return 0, fmt.Errorf("%w: %s", ErrAlreadyExists, key)
		}
		return 1, nil
	}

	var revision int64
	err = ps.pool.QueryRow(ctx,
		`UPDATE release_histories
		 SET history = $4, revision = revision + 1, updated_at = now()
		 WHERE platform = $1 AND identifier = $2 AND binary_version = $3 AND revision = $5
		 RETURNING revision`,
		key.Platform, key.Identifier, key.BinaryVersion, data, expectedRevision,
	).Scan(&revision)
	if err == nil {
		return revision, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to update release history: %w", err)
	}

	// No row matched: tell a missing history apart from a stale revision.
	var current int64
	err = ps.pool.QueryRow(ctx,
		`SELECT revision FROM release_histories
		 WHERE platform = $1 AND identifier = $2 AND binary_version = $3`,
		key.Platform, key.Identifier, key.BinaryVersion,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	if err := checkRevision(key, current, expectedRevision); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %s", ErrConflict, key)
}

// ListHistories returns the binary versions for platform and identifier.
func (ps *PostgresStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	if identifier == "" {
		identifier = models.DefaultIdentifier
	}

	rows, err := ps.pool.Query(ctx,
		`SELECT binary_version FROM release_histories
		 WHERE platform = $1 AND identifier = $2 ORDER BY binary_version`,
		platform, identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list release histories: %w", err)
	}

	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan release histories: %w", err)
	}
	return sortedVersions(versions), nil
}

// Ping checks the database connection.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
