// Package models - Release history records and their storage identity.
// This file defines the release history artifact that is persisted as JSON and
// round-tripped through every storage backend.
//
// Design Principles:
// - A history is scoped to one binary version, one platform and one identifier
// - Keys are release versions; the map order carries no meaning
// - Records are values: callers clone before mutating
// - The JSON shape is stable and shared with device clients
package models

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Platform constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// DefaultIdentifier is used when a history key carries no identifier.
const DefaultIdentifier = "staging"

var SupportedPlatforms = []string{PlatformIOS, PlatformAndroid}

// ReleaseInfo describes one published release.
//
// Field Semantics:
// - Enabled: eligible to be served; disabled releases stay in history for audit
// - Mandatory: installing this release, once it is the target, is forced
// - DownloadURL: location of the bundle archive
// - PackageHash: content hash of the bundle, also its file name
// - Rollout: staged rollout percentage; nil means 100
type ReleaseInfo struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Mandatory   bool     `json:"mandatory" yaml:"mandatory"`
	DownloadURL string   `json:"downloadUrl" yaml:"downloadUrl"`
	PackageHash string   `json:"packageHash" yaml:"packageHash"`
	Rollout     *float64 `json:"rollout,omitempty" yaml:"rollout,omitempty"`
}

// RolloutPercent returns the rollout percentage, treating an absent value as 100.
func (ri ReleaseInfo) RolloutPercent() float64 {
	if ri.Rollout == nil {
		return 100
	}
	return *ri.Rollout
}

// Clone returns a copy that shares no pointers with ri.
func (ri ReleaseInfo) Clone() ReleaseInfo {
	out := ri
	if ri.Rollout != nil {
		r := *ri.Rollout
		out.Rollout = &r
	}
	return out
}

// ReleaseHistory maps a release version to its release info.
type ReleaseHistory map[string]ReleaseInfo

// Clone returns a deep copy of the history. A nil history clones to nil.
func (h ReleaseHistory) Clone() ReleaseHistory {
	if h == nil {
		return nil
	}
	out := make(ReleaseHistory, len(h))
	for version, info := range h {
		out[version] = info.Clone()
	}
	return out
}

// Versions returns the history keys in no particular order.
func (h ReleaseHistory) Versions() []string {
	versions := make([]string, 0, len(h))
	for version := range h {
		versions = append(versions, version)
	}
	return versions
}

// HistoryKey identifies one release history.
type HistoryKey struct {
	BinaryVersion string `json:"binary_version" validate:"required"`
	Platform      string `json:"platform" validate:"required,oneof=ios android"`
	Identifier    string `json:"identifier"`
}

// NewHistoryKey builds a normalized key.
func NewHistoryKey(binaryVersion, platform, identifier string) HistoryKey {
	k := HistoryKey{
		BinaryVersion: strings.TrimSpace(binaryVersion),
		Platform:      strings.ToLower(strings.TrimSpace(platform)),
		Identifier:    strings.TrimSpace(identifier),
	}
	if k.Identifier == "" {
		k.Identifier = DefaultIdentifier
	}
	return k
}

// Validate checks that the key can address a stored history.
func (k HistoryKey) Validate() error {
	if k.BinaryVersion == "" {
		return errors.New("binary version is required")
	}
	if !IsSupportedPlatform(k.Platform) {
		return fmt.Errorf("unsupported platform: %s", k.Platform)
	}
	for _, part := range []string{k.BinaryVersion, k.Identifier} {
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return fmt.Errorf("invalid path segment: %q", part)
		}
	}
	return nil
}

// identifier returns the identifier with the default applied.
func (k HistoryKey) identifier() string {
	if k.Identifier == "" {
		return DefaultIdentifier
	}
	return k.Identifier
}

// ObjectPath returns the remote path of the history file:
// histories/{platform}/{identifier}/{binaryVersion}.json
func (k HistoryKey) ObjectPath() string {
	return path.Join("histories", k.Platform, k.identifier(), k.BinaryVersion+".json")
}

// BundlePath returns the remote path of a bundle file published for this key:
// bundles/{platform}/{identifier}/{fileName}
func (k HistoryKey) BundlePath(fileName string) string {
	return BundleObjectPath(k.Platform, k.identifier(), fileName)
}

// String implements fmt.Stringer.
func (k HistoryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Platform, k.identifier(), k.BinaryVersion)
}

// BundleObjectPath returns bundles/{platform}/{identifier}/{fileName}.
func BundleObjectPath(platform, identifier, fileName string) string {
	if identifier == "" {
		identifier = DefaultIdentifier
	}
	return path.Join("bundles", platform, identifier, fileName)
}

// HistoryRecord is a stored history together with its revision.
// Revision starts at 1 and increases on every successful publish.
type HistoryRecord struct {
	Key      HistoryKey     `json:"key"`
	History  ReleaseHistory `json:"history"`
	Revision int64          `json:"revision"`
}

// IsSupportedPlatform reports whether platform is ios or android.
func IsSupportedPlatform(platform string) bool {
	for _, p := range SupportedPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}
