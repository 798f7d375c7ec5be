package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"otapush/internal/models"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// JSONStorage implements the Storage interface with one JSON file per history
// under a root directory, laid out by HistoryKey.ObjectPath. Each file holds
// the bare release history and its revision lives in a ".rev" file next to
// it. Writes take an advisory file lock so several processes can share the
// directory, and reads are served from a short-lived cache.
type JSONStorage struct {
	root     string
	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]*cachedRecord
}

const revisionSuffix = ".rev"

type cachedRecord struct {
	record       storedRecord
	lastModified time.Time
	expiry       time.Time
}

// NewJSONStorage creates a new JSON-based storage instance rooted at config.Path
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, errors.New("path is required for JSON storage")
	}

	cacheTTL := config.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}

	if err := os.MkdirAll(config.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &JSONStorage{
		root:     config.Path,
		cacheTTL: cacheTTL,
		cache:    make(map[string]*cachedRecord),
	}, nil
}

func (j *JSONStorage) filePath(key models.HistoryKey) string {
	return filepath.Join(j.root, filepath.FromSlash(key.ObjectPath()))
}

// load reads a history file with caching.
// It uses double-checked locking: a fast read-lock path for cache hits,
// and a write-lock slow path with re-validation to prevent TOCTOU races.
func (j *JSONStorage) load(path string) (storedRecord, error) {
	// Fast path: cache is still valid.
	j.mu.RLock()
	if c, ok := j.cache[path]; ok && time.Now().Before(c.expiry) {
		rec := c.record
		j.mu.RUnlock()
		return rec, nil
	}
	j.mu.RUnlock()

	// Slow path: acquire write lock and re-validate before doing any I/O.
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.cache[path]
	if ok && time.Now().Before(c.expiry) {
		return c.record, nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		delete(j.cache, path)
		return storedRecord{}, ErrNotFound
	}
	if err != nil {
		return storedRecord{}, fmt.Errorf("failed to stat file: %w", err)
	}

	// If the file hasn't changed, extend the cache and return.
	if ok && !info.ModTime().After(c.lastModified) {
		c.expiry = time.Now().Add(j.cacheTTL)
		return c.record, nil
	}

	rec, err := readRecord(path)
	if err != nil {
		return storedRecord{}, err
	}

	j.cache[path] = &cachedRecord{
		record:       rec,
		lastModified: info.ModTime(),
		expiry:       time.Now().Add(j.cacheTTL),
	}
	return rec, nil
}

// readRecord reads the bare history object at path and its revision from the
// sidecar file. A history with no sidecar is at revision 1. Files in the
// older {"revision","history"} envelope are still accepted.
func readRecord(path string) (storedRecord, error) {
	fileData, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storedRecord{}, ErrNotFound
	}
	if err != nil {
		return storedRecord{}, fmt.Errorf("failed to read file: %w", err)
	}

	history, err := decodeHistory(fileData)
	if err != nil {
		if rec, ok := decodeEnvelope(fileData); ok {
			return rec, nil
		}
		return storedRecord{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	revision, err := readRevision(path + revisionSuffix)
	if err != nil {
		return storedRecord{}, err
	}
	return storedRecord{Revision: revision, History: history}, nil
}

func decodeEnvelope(data []byte) (storedRecord, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec storedRecord
	if err := dec.Decode(&rec); err != nil || rec.Revision <= 0 || rec.History == nil {
		return storedRecord{}, false
	}
	return rec, true
}

func readRevision(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	revision, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || revision <= 0 {
		return 0, fmt.Errorf("invalid revision in %s: %q", path, data)
	}
	return revision, nil
}

// writeRecord writes the history first and the revision second. Both are
// only ever written under the publish lock.
func writeRecord(path string, rec storedRecord) error {
	fileData, err := json.MarshalIndent(rec.History, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := writeFileAtomic(path, append(fileData, '\n')); err != nil {
		return err
	}
	return writeFileAtomic(path+revisionSuffix, []byte(strconv.FormatInt(rec.Revision, 10)+"\n"))
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// FetchReleaseHistory returns the history stored for key
func (j *JSONStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	rec, err := j.load(j.filePath(key))
	if err != nil {
		return nil, err
	}

	return &models.HistoryRecord{Key: key, History: rec.History.Clone(), Revision: rec.Revision}, nil
}

// PublishReleaseHistory writes history under an exclusive file lock. The
// revision check reads the file itself, never the cache.
func (j *JSONStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}

	path := j.filePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer lock.Unlock()
	defer j.invalidate(path)

	var current int64
	existing, err := readRecord(path)
	switch {
	case err == nil:
		current = existing.Revision
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}
	if err := checkRevision(key, current, expectedRevision); err != nil {
		return 0, err
	}

	stored := history.Clone()
	if stored == nil {
		stored = models.ReleaseHistory{}
	}
	rec := storedRecord{Revision: current + 1, History: stored}
	if err := writeRecord(path, rec); err != nil {
		return 0, err
	}
	return rec.Revision, nil
}

func (j *JSONStorage) invalidate(path string) {
	j.mu.Lock()
	delete(j.cache, path)
	j.mu.Unlock()
}

// ListHistories lists the history files for platform and identifier
func (j *JSONStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	dir := filepath.Join(j.root, filepath.FromSlash(listPrefix(platform, identifier)))

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, ".json"))
	}
	return sortedVersions(versions), nil
}

// Ping checks that the root directory is still there
func (j *JSONStorage) Ping(ctx context.Context) error {
	info, err := os.Stat(j.root)
	if err != nil {
		return fmt.Errorf("failed to stat storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", j.root)
	}
	return nil
}

// Close drops the read cache; files stay on disk
func (j *JSONStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.cache = make(map[string]*cachedRecord)
	return nil
}
