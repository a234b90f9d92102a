// Package fetch retrieves artifacts over HTTP or from local paths, with a
// URL-keyed persistent download cache, transport fallback, and stale-cache
// degradation.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wolfeidau/release-cache/telemetry"
	"github.com/wolfeidau/release-cache/transport"
)

const (
	// primaryTool is the preferred streaming download tool.
	primaryTool = "curl"

	// secondaryTool is attempted when the primary tool is unavailable or
	// produced nothing.
	secondaryTool = "wget"

	// DefaultTimeout bounds each transport attempt.
	DefaultTimeout = 30 * time.Second
)

// ErrNoTransport is returned by Validate when no download tool is available.
// This is a missing-dependency condition, distinct from a fetch failure.
var ErrNoTransport = errors.New("no download tool available: install curl or wget")

// DownloadError reports that every transport attempt produced no usable data.
type DownloadError struct {
	URL string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("unable to download %s: all transports failed or returned no data", e.URL)
}

// Config holds fetcher configuration, resolved once at construction.
type Config struct {
	// CacheDir is the download cache directory. An empty value disables
	// caching regardless of Caching.
	CacheDir string

	// Caching is the global download cache toggle. Individual fetches also
	// require a non-zero cache duration for the cache to apply.
	Caching bool

	// Timeout bounds each transport attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// Logger for fetch events.
	Logger *slog.Logger
}

// Fetcher resolves URLs and local paths to local files.
//
// A Fetcher is confined to one logical caller sequence; it performs no
// internal locking beyond the transport probe memo and the cleanup registry.
type Fetcher struct {
	runner   transport.Runner
	cacheDir string
	caching  bool
	timeout  time.Duration
	fallback *httpTransport
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	probeOnce sync.Once
	primaryOK bool

	mu      sync.Mutex
	cleanup []string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

// WithMetrics sets the metrics instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// New creates a Fetcher using the given transport runner.
func New(runner transport.Runner, cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	f := &Fetcher{
		runner:   runner,
		cacheDir: cfg.CacheDir,
		caching:  cfg.Caching,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.fallback == nil {
		f.fallback = newHTTPTransport(cfg.Timeout)
	}
	return f
}

// Validate confirms that at least one download tool is available. It performs
// no network call.
func (f *Fetcher) Validate() error {
	if f.runner.Probe(primaryTool) || f.runner.Probe(secondaryTool) {
		return nil
	}
	return ErrNoTransport
}

// Fetch resolves rawURL to a local file.
//
// When destination is empty it is derived from the URL's path segment in the
// current working directory. Local paths are plainly copied. Network URLs go
// through the download cache when caching is enabled both globally and for
// this call (non-zero cacheDuration); a failed refresh degrades to a stale
// cache file when one exists. Uncached downloads are registered for deferred
// deletion via Cleanup.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destination string, cacheDuration time.Duration) (string, error) {
	if destination == "" {
		dest, err := defaultDestination(rawURL)
		if err != nil {
			return "", err
		}
		destination = dest
	}

	if isLocalPath(rawURL) {
		src := localPath(rawURL)
		if err := copyFile(src, destination); err != nil {
			return "", fmt.Errorf("copying %s to %s: %w", src, destination, err)
		}
		return destination, nil
	}

	if f.caching && cacheDuration != 0 && f.cacheDir != "" {
		return f.fetchCached(ctx, rawURL, destination, cacheDuration)
	}

	p, err := f.download(ctx, rawURL, destination, true)
	if err != nil {
		return "", err
	}
	f.ScheduleCleanup(p)
	return p, nil
}

// fetchCached serves rawURL through the download cache directory.
func (f *Fetcher) fetchCached(ctx context.Context, rawURL, destination string, cacheDuration time.Duration) (string, error) {
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	cacheFile := filepath.Join(f.cacheDir, CacheFileName(rawURL))

	info, statErr := os.Stat(cacheFile)
	fresh := statErr == nil && info.ModTime().After(f.now().Add(-cacheDuration))

	if fresh {
		f.metrics.DownloadCacheHit()
		f.logger.Debug("serving fetch from download cache", "url", rawURL, "cache_file", cacheFile)
	} else {
		if _, err := f.download(ctx, rawURL, cacheFile, true); err != nil {
			if statErr != nil {
				// No stale copy to fall back on.
				return "", err
			}
			f.metrics.StaleCacheReuse()
			f.logger.Warn("download failed, reusing stale cached copy",
				"url", rawURL,
				"cache_file", cacheFile,
				"error", err,
			)
		}
	}

	if err := copyFile(cacheFile, destination); err != nil {
		return "", fmt.Errorf("copying cached download to %s: %w", destination, err)
	}
	return destination, nil
}

// DeleteCachedDownload deletes the cache file for url, if present.
func (f *Fetcher) DeleteCachedDownload(rawURL string) error {
	if f.cacheDir == "" {
		return nil
	}
	err := os.Remove(filepath.Join(f.cacheDir, CacheFileName(rawURL)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing cached download for %s: %w", rawURL, err)
	}
	return nil
}

// ScheduleCleanup registers path for deferred deletion by Cleanup. Used for
// one-shot temporary downloads the caller consumes and discards.
func (f *Fetcher) ScheduleCleanup(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanup = append(f.cleanup, path)
}

// Cleanup removes every registered one-shot download. Missing files are
// ignored.
func (f *Fetcher) Cleanup() {
	f.mu.Lock()
	paths := f.cleanup
	f.cleanup = nil
	f.mu.Unlock()

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("removing temporary download", "path", p, "error", err)
		}
	}
}

// CacheStats summarizes the download cache directory.
type CacheStats struct {
	Entries   int
	TotalSize int64
}

// Stats reports the entry count and total size of the download cache.
func (f *Fetcher) Stats() (CacheStats, error) {
	stats := CacheStats{}
	if f.cacheDir == "" {
		return stats, nil
	}

	entries, err := os.ReadDir(f.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), stagingPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalSize += info.Size()
	}
	return stats, nil
}

// isLocalPath reports whether rawURL denotes a local filesystem path rather
// than a network URL.
func isLocalPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return u.Scheme == "" || u.Scheme == "file" || len(u.Scheme) == 1 // single letter: Windows drive
}

// localPath strips the file scheme from a local URL, leaving plain paths
// untouched.
func localPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return rawURL
	}
	return u.Path
}

// defaultDestination derives a destination in the working directory from the
// URL's final path segment.
func defaultDestination(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %s: %w", rawURL, err)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("cannot derive a destination file name from %s", rawURL)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return filepath.Join(cwd, base), nil
}

// copyFile copies src to dst, truncating any existing file.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
