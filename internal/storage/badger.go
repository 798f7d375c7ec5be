package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"otapush/internal/models"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage keeps release histories in an embedded badger database keyed
// by object path. Each value is a JSON envelope carrying the revision.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens the database at config.Path, or in memory when
// config.InMemory is set. A nil logger silences badger.
func NewBadgerStorage(config Config, logger *slog.Logger) (*BadgerStorage, error) {
	if !config.InMemory && config.Path == "" {
		return nil, errors.New("path is required for persistent badger storage")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(config.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", config.Path, err)
		}
		opts = badger.DefaultOptions(config.Path)
	}

	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

func getRecord(txn *badger.Txn, k []byte) (storedRecord, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storedRecord{}, ErrNotFound
	}
	if err != nil {
		return storedRecord{}, fmt.Errorf("failed to get %s: %w", k, err)
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return storedRecord{}, fmt.Errorf("failed to read %s: %w", k, err)
	}

	var rec storedRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return storedRecord{}, fmt.Errorf("failed to unmarshal %s: %w", k, err)
	}
	if rec.History == nil {
		rec.History = models.ReleaseHistory{}
	}
	return rec, nil
}

// FetchReleaseHistory reads the record in a read-only transaction.
func (b *BadgerStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	var rec storedRecord
	err = b.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, []byte(key.ObjectPath()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &models.HistoryRecord{Key: key, History: rec.History, Revision: rec.Revision}, nil
}

// PublishReleaseHistory checks the revision and writes in one transaction.
// A badger transaction conflict is reported as ErrConflict.
func (b *BadgerStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	k := []byte(key.ObjectPath())
	var revision int64
	err = b.db.Update(func(txn *badger.Txn) error {
		var current int64
		existing, err := getRecord(txn, k)
		switch {
		case err == nil:
			current = existing.Revision
		case !errors.Is(err, ErrNotFound):
			return err
		}
		if err := checkRevision(key, current, expectedRevision); err != nil {
			return err
		}

		stored := history.Clone()
		if stored == nil {
			stored = models.ReleaseHistory{}
		}
		value, err := json.Marshal(storedRecord{Revision: current + 1, History: stored})
		if err != nil {
			return fmt.Errorf("failed to marshal release history: %w", err)
		}
		revision = current + 1
		return txn.Set(k, value)
	})
	if errors.Is(err, badger.ErrConflict) {
		return 0, fmt.Errorf("%w: %s", ErrConflict, key)
	}
	if err != nil {
		return 0, err
	}
	return revision, nil
}

// ListHistories iterates keys under the platform and identifier prefix.
func (b *BadgerStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	prefix := []byte(listPrefix(platform, identifier))

	var versions []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			name := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			if strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
				continue
			}
			versions = append(versions, strings.TrimSuffix(name, ".json"))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}
	return sortedVersions(versions), nil
}

// Ping reports whether the database is open.
func (b *BadgerStorage) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
