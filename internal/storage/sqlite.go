package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"otapush/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS release_histories (
	platform       TEXT    NOT NULL,
	identifier     TEXT    NOT NULL,
	binary_version TEXT    NOT NULL,
	history        TEXT    NOT NULL,
	revision       INTEGER NOT NULL,
	updated_at     TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (platform, identifier, binary_version)
)`

// SQLiteStorage keeps release histories in a single SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database file and ensures the schema exists.
func NewSQLiteStorage(ctx context.Context, config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) revision(ctx context.Context, key models.HistoryKey) (int64, error) {
	var current int64
	err := ss.db.QueryRowContext(ctx,
		`SELECT revision FROM release_histories WHERE platform = ? AND identifier = ? AND binary_version = ?`,
		key.Platform, key.Identifier, key.BinaryVersion,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return current, nil
}

// FetchReleaseHistory reads one history row.
func (ss *SQLiteStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	var (
		data     string
		revision int64
	)
	err = ss.db.QueryRowContext(ctx,
		`SELECT history, revision FROM release_histories WHERE platform = ? AND identifier = ? AND binary_version = ?`,
		key.Platform, key.Identifier, key.BinaryVersion,
	).Scan(&data, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release history: %w", err)
	}

	h, err := decodeHistory([]byte(data))
	if err != nil {
		return nil, err
	}
	return &models.HistoryRecord{Key: key, History: h, Revision: revision}, nil
}

// PublishReleaseHistory inserts or conditionally updates the row.
func (ss *SQLiteStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}

	data, err := encodeHistory(history)
	if err != nil {
		return 0, err
	}

	var res sql.Result
	if expectedRevision == 0 {
		res, err = ss.db.ExecContext(ctx,
			`INSERT INTO release_histories (platform, identifier, binary_version, history, revision)
			 VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT (platform, identifier, binary_version) DO NOTHING`,
			key.Platform, key.Identifier, key.BinaryVersion, string(data),
		)
	} else {
		res, err = ss.db.ExecContext(ctx,
			`UPDATE release_histories
			 SET history = ?, revision = revision + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE platform = ? AND identifier = ? AND binary_version = ? AND revision = ?`,
			string(data), key.Platform, key.Identifier, key.BinaryVersion, expectedRevision,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to publish release history: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to publish release history: %w", err)
	}
	if n == 1 {
		return expectedRevision + 1, nil
	}

	current, err := ss.revision(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := checkRevision(key, current, expectedRevision); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %s", ErrConflict, key)
}

// ListHistories returns the binary versions for platform and identifier.
func (ss *SQLiteStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	if identifier == "" {
		identifier = models.DefaultIdentifier
	}

	rows, err := ss.db.QueryContext(ctx,
		`SELECT binary_version FROM release_histories WHERE platform = ? AND identifier = ?`,
		platform, identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list release histories: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan release histories: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list release histories: %w", err)
	}
	return sortedVersions(versions), nil
}

// Ping checks the database connection.
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
