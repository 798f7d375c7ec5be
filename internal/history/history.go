// Package history validates and applies changes to a release history before it
// is published. Every function returns a new history and leaves its input alone.
package history

import (
	"errors"
	"fmt"
	"otapush/internal/models"
)

var (
	// ErrDuplicateRelease is returned when a version is already in the history.
	ErrDuplicateRelease = errors.New("release already exists")

	// ErrReleaseNotFound is returned when a version is missing from the history.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrInvalidRollout is returned for a rollout outside [0,100].
	ErrInvalidRollout = errors.New("rollout percentage number must be between 0 and 100 (inclusive)")

	// ErrNoChanges is returned when an update names no field to change.
	ErrNoChanges = errors.New("no options specified")
)

// Update carries the fields to change on an existing release; nil fields are
// left as they are.
type Update struct {
	Mandatory *bool    `json:"mandatory,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Rollout   *float64 `json:"rollout,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Mandatory == nil && u.Enabled == nil && u.Rollout == nil
}

// BinaryRelease is the entry a new history starts with: the code shipped in the
// binary, enabled and optional, with nothing to download.
func BinaryRelease() models.ReleaseInfo {
	return models.ReleaseInfo{Enabled: true, Mandatory: false, DownloadURL: "", PackageHash: ""}
}

// New returns the initial history for binaryVersion.
func New(binaryVersion string) models.ReleaseHistory {
	return models.ReleaseHistory{binaryVersion: BinaryRelease()}
}

// ValidateRollout checks an optional rollout percentage.
func ValidateRollout(rollout *float64) error {
	if rollout == nil {
		return nil
	}
	// NaN fails both comparisons.
	if !(*rollout >= 0 && *rollout <= 100) {
		return fmt.Errorf("%w: got %v", ErrInvalidRollout, *rollout)
	}
	return nil
}

// AddRelease returns h with version added. Published versions are immutable, so
// an existing key fails with ErrDuplicateRelease.
func AddRelease(h models.ReleaseHistory, version string, info models.ReleaseInfo) (models.ReleaseHistory, error) {
	if version == "" {
		return nil, errors.New("version is required")
	}
	if _, ok := h[version]; ok {
		return nil, fmt.Errorf("%w: v%s is already released", ErrDuplicateRelease, version)
	}
	if err := ValidateRollout(info.Rollout); err != nil {
		return nil, err
	}

	out := h.Clone()
	if out == nil {
		out = models.ReleaseHistory{}
	}
	out[version] = info.Clone()
	return out, nil
}

// UpdateRelease returns h with the fields named by u changed on version.
func UpdateRelease(h models.ReleaseHistory, version string, u Update) (models.ReleaseHistory, error) {
	if u.Empty() {
		return nil, ErrNoChanges
	}
	info, ok := h[version]
	if !ok {
		return nil, fmt.Errorf("%w: v%s is not released", ErrReleaseNotFound, version)
	}
	if err := ValidateRollout(u.Rollout); err != nil {
		return nil, err
	}

	info = info.Clone()
	if u.Mandatory != nil {
		info.Mandatory = *u.Mandatory
	}
	if u.Enabled != nil {
		info.Enabled = *u.Enabled
	}
	if u.Rollout != nil {
		r := *u.Rollout
		info.Rollout = &r
	}

	out := h.Clone()
	out[version] = info
	return out, nil
}
