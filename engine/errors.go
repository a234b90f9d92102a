package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel wrapped by NotFoundError.
	ErrNotFound = errors.New("release not found")

	// ErrUnavailable is returned when release metadata could not be
	// obtained for a request. The outcome is memoized for the engine
	// lifetime, so repeated lookups return it without re-querying.
	ErrUnavailable = errors.New("release metadata unavailable")

	// ErrAborted is returned when the interactive chooser declines to pick
	// a release. Distinct from NotFoundError: the caller aborted, the
	// selection did not fail.
	ErrAborted = errors.New("release selection aborted")
)

// NotFoundKind identifies which selection branch found no release.
type NotFoundKind string

const (
	// KindDev means no development snapshot exists for the project.
	KindDev NotFoundKind = "dev"

	// KindVersion means the pinned version does not exist.
	KindVersion NotFoundKind = "version"

	// KindStable means no stable release exists.
	KindStable NotFoundKind = "stable"
)

// NotFoundError reports that no release matched the selection inputs.
type NotFoundError struct {
	Name    string
	Version string
	Kind    NotFoundKind
}

func (e *NotFoundError) Error() string {
	switch e.Kind {
	case KindDev:
		return fmt.Sprintf("no development release for project %s", e.Name)
	case KindVersion:
		return fmt.Sprintf("could not locate version %s of project %s", e.Version, e.Name)
	default:
		return fmt.Sprintf("no stable releases for project %s", e.Name)
	}
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// UnknownStrategyError reports a selection strategy outside the supported
// set. This is a configuration failure, reported before any metadata lookup.
type UnknownStrategyError struct {
	Strategy Strategy
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown release selection strategy %q", string(e.Strategy))
}
