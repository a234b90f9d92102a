// Package releasecache provides the shared value types for the release
// metadata cache and the artifact fetcher.
package releasecache

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingName is returned when a request carries no package name.
	ErrMissingName = errors.New("request has no package name")

	// ErrMissingPlatformVersion is returned when a request carries no
	// platform version.
	ErrMissingPlatformVersion = errors.New("request has no platform version")
)

// Request identifies a package and the platform context for which release
// metadata or artifacts are sought. Cache identity is (PlatformVersion, Name);
// Version and Type are selection inputs only and never contribute to keys.
type Request struct {
	// Name is the machine name of the package, e.g. "token".
	Name string

	// PlatformVersion is the platform release line the package must
	// target, e.g. "11.x".
	PlatformVersion string

	// Version optionally pins an exact release version.
	Version string

	// Type optionally declares the expected package type.
	Type string
}

// Validate reports whether the request carries the fields required for cache
// identity. Version and Type are optional.
func (r Request) Validate() error {
	if r.Name == "" {
		return ErrMissingName
	}
	if r.PlatformVersion == "" {
		return ErrMissingPlatformVersion
	}
	return nil
}

// CacheKey returns the persistent cache key for this request's metadata.
func (r Request) CacheKey() string {
	return fmt.Sprintf("%s-%s", r.PlatformVersion, r.Name)
}

// String implements fmt.Stringer for log output.
func (r Request) String() string {
	if r.Version != "" {
		return fmt.Sprintf("%s-%s (%s)", r.PlatformVersion, r.Name, r.Version)
	}
	return fmt.Sprintf("%s-%s", r.PlatformVersion, r.Name)
}
