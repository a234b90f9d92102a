// Package engine implements the release metadata cache and selection engine.
//
// The engine owns an in-process memo plus a persistent TTL cache for release
// metadata keyed by (platform version, package name), and resolves a single
// release for a request according to a selection strategy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	releasecache "github.com/wolfeidau/release-cache"
	"github.com/wolfeidau/release-cache/metadata"
	"github.com/wolfeidau/release-cache/store"
	"github.com/wolfeidau/release-cache/telemetry"
)

// releaseInfoBin is the persistent cache bin for release metadata records.
const releaseInfoBin = "release-info"

// DefaultCacheDuration is the metadata TTL applied when the config does not
// set one. Mirrors the cache-duration-releasexml option default.
const DefaultCacheDuration = 24 * time.Hour

// Config holds engine configuration, resolved once at construction.
type Config struct {
	// CacheDuration is the persistent metadata TTL.
	// Zero means DefaultCacheDuration.
	CacheDuration time.Duration
}

// DownloadCache is the slice of the artifact fetcher the engine needs to keep
// the download cache consistent with the metadata cache.
type DownloadCache interface {
	DeleteCachedDownload(url string) error
}

// Chooser presents releases for interactive selection and returns the chosen
// version. Implementations return ErrAborted when the user declines.
type Chooser interface {
	Choose(choices []Choice, prompt string) (string, error)
}

// Choice is one selectable release row, in provider display order.
type Choice struct {
	Version string
	Row     string
}

// Engine caches and selects release metadata for requests.
//
// An Engine instance is confined to one logical caller sequence; the memo is
// not safe for concurrent use.
type Engine struct {
	name      string
	ttl       time.Duration
	cache     store.Cache
	provider  metadata.Provider
	downloads DownloadCache
	chooser   Chooser
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// memo holds one outcome per package name for the engine lifetime,
	// negative outcomes (nil) included, so a repeated lookup never re-runs
	// the expensive provider construction.
	memo map[string]metadata.Metadata
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithChooser sets the interactive choice surface. Without one, selections
// that reach the interactive fallback abort.
func WithChooser(c Chooser) Option {
	return func(e *Engine) {
		e.chooser = c
	}
}

// WithDownloadCache connects the artifact download cache so metadata eviction
// also evicts the corresponding cached download.
func WithDownloadCache(dc DownloadCache) Option {
	return func(e *Engine) {
		e.downloads = dc
	}
}

// WithMetrics sets the metrics instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine with the given identity, persistent cache and
// metadata provider.
func New(name string, cfg Config, cache store.Cache, provider metadata.Provider, opts ...Option) *Engine {
	e := &Engine{
		name:     name,
		ttl:      cfg.CacheDuration,
		cache:    cache,
		provider: provider,
		logger:   slog.Default(),
		now:      time.Now,
		memo:     make(map[string]metadata.Metadata),
	}
	if e.ttl == 0 {
		e.ttl = DefaultCacheDuration
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Get returns release metadata for the request, consulting the in-process
// memo, then the persistent cache, then the provider. A negative outcome is
// memoized and surfaces as ErrUnavailable on every subsequent call for the
// same package name.
func (e *Engine) Get(ctx context.Context, req releasecache.Request) (metadata.Metadata, error) {
	return e.get(ctx, req, false)
}

// Refresh evicts any cached entries for the request and fetches anew.
func (e *Engine) Refresh(ctx context.Context, req releasecache.Request) (metadata.Metadata, error) {
	return e.get(ctx, req, true)
}

func (e *Engine) get(ctx context.Context, req releasecache.Request, refresh bool) (metadata.Metadata, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if refresh {
		if err := e.ClearCached(ctx, req); err != nil {
			return nil, err
		}
	}

	if m, ok := e.memo[req.Name]; ok {
		e.metrics.MetadataMemoHit()
		if m == nil {
			return nil, ErrUnavailable
		}
		return m, nil
	}

	m := e.lookup(ctx, req)
	e.memo[req.Name] = m
	if m == nil {
		return nil, ErrUnavailable
	}
	return m, nil
}

// lookup consults the persistent cache and falls back to the provider,
// persisting a successful construction. A nil return is a negative outcome.
func (e *Engine) lookup(ctx context.Context, req releasecache.Request) metadata.Metadata {
	key := req.CacheKey()

	if rec, err := e.cache.Get(ctx, releaseInfoBin, key); err == nil && !rec.Expired(e.now()) {
		m, err := e.provider.Decode(rec.Payload)
		if err == nil && m.IsValid() {
			e.metrics.MetadataStoreHit()
			e.logger.Debug("serving release metadata from cache", "engine", e.name, "key", key)
			return m
		}
		// An unreadable record is a cache miss, never an error.
		e.logger.Warn("discarding unreadable cached metadata", "engine", e.name, "key", key, "error", err)
	}

	e.metrics.MetadataFetch()
	m, err := e.provider.Fetch(ctx, req, e.ttl)
	if err != nil || m == nil || !m.IsValid() {
		e.metrics.MetadataFetchFailure()
		if err != nil {
			e.logger.Warn("fetching release metadata failed", "engine", e.name, "project", req.Name, "error", err)
		} else {
			e.logger.Warn("release metadata is invalid", "engine", e.name, "project", req.Name)
		}
		return nil
	}

	payload, err := e.provider.Encode(m)
	if err != nil {
		e.logger.Warn("encoding release metadata for caching failed", "engine", e.name, "project", req.Name, "error", err)
		return m
	}
	if err := e.cache.Set(ctx, releaseInfoBin, key, payload, e.now().Add(e.ttl)); err != nil {
		e.logger.Warn("caching release metadata failed", "engine", e.name, "key", key, "error", err)
	}
	return m
}

// ClearCached removes the in-process and persistent cache entries for the
// request, and deletes any cached download of the metadata the provider would
// fetch for it. Evicting one evicts the other: stale metadata and a stale
// previously-downloaded payload are invalidated together.
func (e *Engine) ClearCached(ctx context.Context, req releasecache.Request) error {
	delete(e.memo, req.Name)

	if err := e.cache.Clear(ctx, releaseInfoBin, req.CacheKey()); err != nil {
		return fmt.Errorf("clearing cached metadata for %s: %w", req.Name, err)
	}

	if e.downloads != nil && e.provider != nil {
		if url := e.provider.FetchURL(req); url != "" {
			if err := e.downloads.DeleteCachedDownload(url); err != nil {
				return fmt.Errorf("clearing cached download for %s: %w", req.Name, err)
			}
		}
	}
	return nil
}

// OldestCacheEntry returns the creation time of the oldest persistent cache
// entry among the given requests, bypassing the in-process memo. The zero
// time is returned when no entries exist. Callers use it to decide whether a
// bulk refresh is warranted.
func (e *Engine) OldestCacheEntry(ctx context.Context, reqs []releasecache.Request) time.Time {
	var oldest time.Time
	for _, req := range reqs {
		rec, err := e.cache.Get(ctx, releaseInfoBin, req.CacheKey())
		if err != nil {
			continue
		}
		if oldest.IsZero() || rec.CreatedAt.Before(oldest) {
			oldest = rec.CreatedAt
		}
	}
	return oldest
}

// CheckProject reports whether release metadata is available for the request
// and, when typ is non-empty, whether the project's type matches it exactly.
func (e *Engine) CheckProject(ctx context.Context, req releasecache.Request, typ string) bool {
	m, err := e.Get(ctx, req)
	if err != nil {
		return false
	}
	if typ != "" && m.Type() != typ {
		return false
	}
	return true
}
