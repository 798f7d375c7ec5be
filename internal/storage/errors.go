package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"otapush/internal/models"
	"sort"
)

var (
	// ErrNotFound is returned when no history is stored for a key.
	ErrNotFound = errors.New("release history not found")

	// ErrConflict is returned when a publish carries a stale revision.
	ErrConflict = errors.New("release history was modified concurrently")

	// ErrAlreadyExists is returned when a create-only publish finds a history.
	ErrAlreadyExists = errors.New("release history already exists")
)

// checkRevision applies the publish precondition. current is 0 when nothing is stored.
func checkRevision(key models.HistoryKey, current, expected int64) error {
	switch {
	case expected == 0 && current != 0:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	case expected != 0 && current == 0:
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case current != expected:
		return fmt.Errorf("%w: %s at revision %d, expected %d", ErrConflict, key, current, expected)
	}
	return nil
}

// storedRecord is the envelope written by backends that keep the revision
// next to the history.
type storedRecord struct {
	Revision int64                 `json:"revision"`
	History  models.ReleaseHistory `json:"history"`
}

func encodeHistory(h models.ReleaseHistory) ([]byte, error) {
	if h == nil {
		h = models.ReleaseHistory{}
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal release history: %w", err)
	}
	return data, nil
}

func decodeHistory(data []byte) (models.ReleaseHistory, error) {
	var h models.ReleaseHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal release history: %w", err)
	}
	if h == nil {
		h = models.ReleaseHistory{}
	}
	return h, nil
}

// normalizeKey applies the default identifier and validates key.
func normalizeKey(key models.HistoryKey) (models.HistoryKey, error) {
	if key.Identifier == "" {
		key.Identifier = models.DefaultIdentifier
	}
	if err := key.Validate(); err != nil {
		return key, fmt.Errorf("invalid history key: %w", err)
	}
	return key, nil
}

func listPrefix(platform, identifier string) string {
	if identifier == "" {
		identifier = models.DefaultIdentifier
	}
	return "histories/" + platform + "/" + identifier + "/"
}

func sortedVersions(versions []string) []string {
	sort.Strings(versions)
	if versions == nil {
		return []string{}
	}
	return versions
}
