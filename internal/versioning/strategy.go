// Package versioning decides, for a release history and the version a device is
// running, which release is latest and whether the device must update, roll back,
// or return to the code shipped in its binary.
//
// Everything here is pure. An engine takes an immutable snapshot of a history at
// construction and answers every query from views derived once.
package versioning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind names a versioning scheme.
type Kind string

const (
	KindIncremental Kind = "incremental"
	KindSemantic    Kind = "semantic"
)

// Kinds returns the supported versioning schemes.
func Kinds() []Kind {
	return []Kind{KindIncremental, KindSemantic}
}

// Strategy orders release versions under one scheme.
type Strategy interface {
	// Kind reports the scheme implemented by the strategy.
	Kind() Kind

	// Validate reports whether version can be ordered by the strategy.
	Validate(version string) error

	// Compare returns -1 when a is older than b, 1 when a is newer and 0 only when
	// a and b are the same string. Both versions must be valid.
	Compare(a, b string) int
}

// IncrementalStrategy orders versions that are whole numbers.
type IncrementalStrategy struct{}

func (IncrementalStrategy) Kind() Kind { return KindIncremental }

func (IncrementalStrategy) Validate(version string) error {
	if _, err := strconv.ParseUint(version, 10, 64); err != nil {
		return fmt.Errorf("%w: %q is not an incremental version", ErrInvalidArgument, version)
	}
	return nil
}

func (IncrementalStrategy) Compare(a, b string) int {
	av, _ := strconv.ParseUint(a, 10, 64)
	bv, _ := strconv.ParseUint(b, 10, 64)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	}
	// "01" and "1" are the same number but distinct keys.
	return strings.Compare(a, b)
}

// SemanticStrategy orders versions by semantic-version precedence, with
// pre-releases before their release.
type SemanticStrategy struct{}

func (SemanticStrategy) Kind() Kind { return KindSemantic }

func (SemanticStrategy) Validate(version string) error {
	if _, err := semver.StrictNewVersion(version); err != nil {
		return fmt.Errorf("%w: %q is not a semantic version: %v", ErrInvalidArgument, version, err)
	}
	return nil
}

func (SemanticStrategy) Compare(a, b string) int {
	av, errA := semver.StrictNewVersion(a)
	bv, errB := semver.StrictNewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	if c := av.Compare(bv); c != 0 {
		return c
	}
	// Build metadata does not affect precedence; fall back to the raw key.
	return strings.Compare(a, b)
}

// StrategyFor returns the strategy for kind.
func StrategyFor(kind Kind) (Strategy, error) {
	switch kind {
	case KindIncremental:
		return IncrementalStrategy{}, nil
	case KindSemantic:
		return SemanticStrategy{}, nil
	case "":
		return nil, ErrAbstractInstantiation
	default:
		return nil, fmt.Errorf("%w: unknown versioning kind %q", ErrInvalidArgument, kind)
	}
}
