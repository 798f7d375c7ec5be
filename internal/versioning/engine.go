package versioning

import (
	"fmt"
	"otapush/internal/models"
	"sort"
)

// Release is one history entry.
type Release struct {
	Version string
	Info    models.ReleaseInfo
}

// Engine answers ordering and rollout questions over one history snapshot.
// The zero value has no strategy and fails every query with
// ErrAbstractInstantiation; obtain engines from New, NewIncremental or
// NewSemantic.
type Engine struct {
	strategy  Strategy
	sorted    []Release // newest first
	enabled   []Release
	mandatory []Release
}

func newEngine(strategy Strategy, history models.ReleaseHistory) (*Engine, error) {
	if strategy == nil || history == nil {
		return nil, fmt.Errorf("%w: release history and strategy are required", ErrInvalidArgument)
	}

	sorted := make([]Release, 0, len(history))
	for version, info := range history {
		if err := strategy.Validate(version); err != nil {
			return nil, err
		}
		sorted = append(sorted, Release{Version: version, Info: info.Clone()})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return strategy.Compare(sorted[i].Version, sorted[j].Version) > 0
	})

	e := &Engine{strategy: strategy, sorted: sorted}
	for _, r := range sorted {
		if !r.Info.Enabled {
			continue
		}
		e.enabled = append(e.enabled, r)
		if r.Info.Mandatory {
			e.mandatory = append(e.mandatory, r)
		}
	}
	return e, nil
}

func (e *Engine) ready() error {
	if e == nil || e.strategy == nil {
		return ErrAbstractInstantiation
	}
	return nil
}

// Strategy returns the ordering used by the engine.
func (e *Engine) Strategy() Strategy {
	if e == nil {
		return nil
	}
	return e.strategy
}

// Sorted returns every entry, newest first.
func (e *Engine) Sorted() []Release {
	if e == nil {
		return nil
	}
	return append([]Release(nil), e.sorted...)
}

// Enabled returns the enabled entries, newest first.
func (e *Engine) Enabled() []Release {
	if e == nil {
		return nil
	}
	return append([]Release(nil), e.enabled...)
}

// Mandatory returns the enabled mandatory entries, newest first.
func (e *Engine) Mandatory() []Release {
	if e == nil {
		return nil
	}
	return append([]Release(nil), e.mandatory...)
}

// FindLatestRelease returns the newest enabled release.
func (e *Engine) FindLatestRelease() (Release, error) {
	if err := e.ready(); err != nil {
		return Release{}, err
	}
	if len(e.enabled) == 0 {
		return Release{}, ErrNoReleaseFound
	}
	return e.enabled[0], nil
}

// ShouldRollback reports whether runtime is newer than the latest enabled
// release. An empty runtime means the device runs its binary and never rolls back.
func (e *Engine) ShouldRollback(runtime string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if runtime == "" {
		return false, nil
	}
	latest, err := e.FindLatestRelease()
	if err != nil {
		return false, err
	}
	if err := e.strategy.Validate(runtime); err != nil {
		return false, err
	}
	return e.strategy.Compare(runtime, latest.Version) > 0, nil
}

// ShouldRollbackToBinary reports whether a rollback is needed and the latest
// enabled release is the oldest entry of the whole history, leaving nothing
// between the device and its binary.
func (e *Engine) ShouldRollbackToBinary(runtime string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if runtime == "" {
		return false, nil
	}
	rollback, err := e.ShouldRollback(runtime)
	if err != nil || !rollback {
		return false, err
	}
	latest, err := e.FindLatestRelease()
	if err != nil {
		return false, err
	}
	return latest.Version == e.sorted[len(e.sorted)-1].Version, nil
}

// CheckIsMandatory reports whether a device running runtime must update.
// A rollback is always mandatory. Otherwise the newest enabled mandatory release
// must be strictly newer than runtime; a device on its binary must update when
// any mandatory release exists.
func (e *Engine) CheckIsMandatory(runtime string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	rollback, err := e.ShouldRollback(runtime)
	if err != nil {
		return false, err
	}
	if rollback {
		return true, nil
	}
	if len(e.mandatory) == 0 {
		return false, nil
	}
	if runtime == "" {
		return true, nil
	}
	if err := e.strategy.Validate(runtime); err != nil {
		return false, err
	}
	return e.strategy.Compare(e.mandatory[0].Version, runtime) > 0, nil
}

// Decide folds the individual queries into a single per-device outcome.
func (e *Engine) Decide(runtime string) (Decision, error) {
	latest, err := e.FindLatestRelease()
	if err != nil {
		return Decision{}, err
	}

	toBinary, err := e.ShouldRollbackToBinary(runtime)
	if err != nil {
		return Decision{}, err
	}
	if toBinary {
		return Decision{Action: ActionRollbackToBinary, Target: latest, Mandatory: true}, nil
	}

	rollback, err := e.ShouldRollback(runtime)
	if err != nil {
		return Decision{}, err
	}
	if rollback {
		return Decision{Action: ActionRollback, Target: latest, Mandatory: true}, nil
	}

	if runtime == latest.Version {
		return Decision{Action: ActionNoUpdate, Target: latest}, nil
	}
	// A binary install already runs the oldest entry's code.
	if runtime == "" && latest.Version == e.sorted[len(e.sorted)-1].Version {
		return Decision{Action: ActionNoUpdate, Target: latest}, nil
	}

	mandatory, err := e.CheckIsMandatory(runtime)
	if err != nil {
		return Decision{}, err
	}
	if mandatory {
		return Decision{Action: ActionMandatoryUpdate, Target: latest, Mandatory: true}, nil
	}
	return Decision{Action: ActionOptionalUpdate, Target: latest}, nil
}
