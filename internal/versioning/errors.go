package versioning

import "errors"

var (
	// ErrAbstractInstantiation is returned when an engine is used without a
	// concrete versioning scheme.
	ErrAbstractInstantiation = errors.New("abstract versioning can't be instantiated")

	// ErrInvalidArgument is returned for a missing history or strategy and for
	// versions the strategy cannot order.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoReleaseFound is returned when no enabled release exists.
	ErrNoReleaseFound = errors.New("there is no latest release")
)
