// Package metadata defines the contract between the release cache engine and
// the remote release-metadata service. The wire format and its parsing belong
// to provider implementations, not to this module.
package metadata

import (
	"context"
	"time"

	releasecache "github.com/wolfeidau/release-cache"
)

// Filter selects which releases an enumeration includes.
type Filter string

const (
	// FilterDefault enumerates the stable releases.
	FilterDefault Filter = ""

	// FilterDev enumerates development snapshots only.
	FilterDev Filter = "dev"

	// FilterAll enumerates every known release.
	FilterAll Filter = "all"
)

// Metadata is the per-request view of the releases available for a package.
//
// Ordering and recommendation policy belong entirely to the provider; the
// engine only branches on the presence or absence of a match.
type Metadata interface {
	// IsValid reports whether the metadata parsed into a usable state.
	IsValid() bool

	// Type returns the package type, e.g. "module" or "theme".
	Type() string

	// DevRelease returns the latest development snapshot, if any.
	DevRelease() (releasecache.Release, bool)

	// SpecificRelease returns the release with exactly the given version,
	// if any.
	SpecificRelease(version string) (releasecache.Release, bool)

	// RecommendedOrSupportedRelease returns the release the provider
	// recommends, falling back to the best supported one, if any.
	RecommendedOrSupportedRelease() (releasecache.Release, bool)

	// FilterReleases enumerates releases matching the filter, in the
	// provider's display order. A non-empty version narrows the listing.
	FilterReleases(filter Filter, version string) []releasecache.Release
}

// Provider constructs Metadata for a request. Construction is expensive (a
// network fetch plus parse), which is why the engine caches outcomes both
// in-process and persistently.
type Provider interface {
	// Fetch retrieves and parses release metadata for the request. The ttl
	// is a hint for any transport-level caching the provider performs.
	Fetch(ctx context.Context, req releasecache.Request, ttl time.Duration) (Metadata, error)

	// FetchURL returns the URL the provider fetches metadata for the
	// request from. The engine uses it to evict the corresponding download
	// cache entry alongside the metadata cache entry.
	FetchURL(req releasecache.Request) string

	// Encode serializes metadata for persistent caching.
	Encode(m Metadata) ([]byte, error)

	// Decode reverses Encode.
	Decode(data []byte) (Metadata, error)
}
