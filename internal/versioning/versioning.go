package versioning

import (
	"otapush/internal/models"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Versioning is implemented by IncrementalVersioning and SemanticVersioning.
type Versioning interface {
	Strategy() Strategy
	FindLatestRelease() (Release, error)
	CheckIsMandatory(runtime string) (bool, error)
	ShouldRollback(runtime string) (bool, error)
	ShouldRollbackToBinary(runtime string) (bool, error)
	Decide(runtime string) (Decision, error)
}

// IncrementalVersioning is an engine over whole-number versions.
type IncrementalVersioning struct {
	*Engine
}

// NewIncremental builds an engine for a history keyed by whole numbers.
func NewIncremental(history models.ReleaseHistory) (*IncrementalVersioning, error) {
	e, err := newEngine(IncrementalStrategy{}, history)
	if err != nil {
		return nil, err
	}
	return &IncrementalVersioning{Engine: e}, nil
}

// SemanticVersioning is an engine over semantic versions.
type SemanticVersioning struct {
	*Engine
}

// NewSemantic builds an engine for a history keyed by semantic versions.
func NewSemantic(history models.ReleaseHistory) (*SemanticVersioning, error) {
	e, err := newEngine(SemanticStrategy{}, history)
	if err != nil {
		return nil, err
	}
	return &SemanticVersioning{Engine: e}, nil
}

// ShouldRollbackToLatestMajorVersion reports whether a rollback is needed and
// its target opens a major line: M.0.0, or for pre-releases M.0.0-0 and
// M.0.0-<tag>.0.
func (s *SemanticVersioning) ShouldRollbackToLatestMajorVersion(runtime string) (bool, error) {
	if s == nil {
		return false, ErrAbstractInstantiation
	}
	rollback, err := s.ShouldRollback(runtime)
	if err != nil || !rollback {
		return false, err
	}
	latest, err := s.FindLatestRelease()
	if err != nil {
		return false, err
	}
	v, err := semver.StrictNewVersion(latest.Version)
	if err != nil {
		return false, err
	}
	if v.Minor() != 0 || v.Patch() != 0 {
		return false, nil
	}
	if v.Prerelease() == "" {
		return true, nil
	}
	ids := strings.Split(v.Prerelease(), ".")
	if ids[len(ids)-1] != "0" {
		return false, nil
	}
	switch len(ids) {
	case 1:
		return true, nil
	case 2:
		return strings.Trim(ids[0], "0123456789") != "", nil
	}
	return false, nil
}

// New builds the engine for kind. An empty kind names no concrete scheme and
// fails with ErrAbstractInstantiation.
func New(kind Kind, history models.ReleaseHistory) (Versioning, error) {
	if _, err := StrategyFor(kind); err != nil {
		return nil, err
	}
	if kind == KindSemantic {
		v, err := NewSemantic(history)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	v, err := NewIncremental(history)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateVersion checks version against the scheme named by kind.
func ValidateVersion(kind Kind, version string) error {
	strategy, err := StrategyFor(kind)
	if err != nil {
		return err
	}
	return strategy.Validate(version)
}
