package storage

import (
	"context"
	"otapush/internal/models"
	"sync"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development, testing, and scenarios where data
// persistence is not required. It provides fast access but data is lost on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*models.HistoryRecord // keyed by object path
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		records: make(map[string]*models.HistoryRecord),
	}, nil
}

// FetchReleaseHistory returns a copy of the stored record
func (m *MemoryStorage) FetchReleaseHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[key.ObjectPath()]
	if !exists {
		return nil, ErrNotFound
	}

	return &models.HistoryRecord{Key: rec.Key, History: rec.History.Clone(), Revision: rec.Revision}, nil
}

// PublishReleaseHistory stores a copy of history when the revision matches
func (m *MemoryStorage) PublishReleaseHistory(ctx context.Context, key models.HistoryKey, history models.ReleaseHistory, expectedRevision int64) (int64, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := key.ObjectPath()
	var current int64
	if rec, exists := m.records[path]; exists {
		current = rec.Revision
	}
	if err := checkRevision(key, current, expectedRevision); err != nil {
		return 0, err
	}

	stored := history.Clone()
	if stored == nil {
		stored = models.ReleaseHistory{}
	}
	m.records[path] = &models.HistoryRecord{Key: key, History: stored, Revision: current + 1}
	return current + 1, nil
}

// ListHistories returns the binary versions stored for platform and identifier
func (m *MemoryStorage) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	if identifier == "" {
		identifier = models.DefaultIdentifier
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var versions []string
	for _, rec := range m.records {
		if rec.Key.Platform == platform && rec.Key.Identifier == identifier {
			versions = append(versions, rec.Key.BinaryVersion)
		}
	}
	return sortedVersions(versions), nil
}

// Ping always succeeds
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close clears all data from memory
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]*models.HistoryRecord)
	return nil
}
