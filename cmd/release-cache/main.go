// Command release-cache fetches release artifacts through the local download
// cache and inspects the release metadata cache.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	releasecache "github.com/wolfeidau/release-cache"
	"github.com/wolfeidau/release-cache/engine"
	"github.com/wolfeidau/release-cache/fetch"
	"github.com/wolfeidau/release-cache/store/boltcache"
	"github.com/wolfeidau/release-cache/transport"
)

var cli struct {
	CacheDir                string        `help:"Download cache directory." default:"${cache_dir}" env:"RELEASE_CACHE_DIR"`
	DB                      string        `help:"Path to the metadata cache database." default:"${db_path}" env:"RELEASE_CACHE_DB"`
	Cache                   bool          `help:"Enable the download cache." default:"true" negatable:""`
	CacheDurationReleasexml time.Duration `name:"cache-duration-releasexml" help:"TTL for cached release metadata." default:"24h"`
	LogLevel                string        `help:"Log level." enum:"debug,info,warn,error" default:"info"`

	Fetch          FetchCmd          `cmd:"" help:"Fetch a URL (or copy a local path) to a destination."`
	DeleteDownload DeleteDownloadCmd `cmd:"" name:"delete-download" help:"Remove the cached download for a URL."`
	Validate       ValidateCmd       `cmd:"" help:"Check that a download transport is available."`
	Oldest         OldestCmd         `cmd:"" help:"Print the oldest cached metadata entry for platform/name pairs."`
	Stats          StatsCmd          `cmd:"" help:"Show download cache statistics."`
}

type appContext struct {
	logger  *slog.Logger
	fetcher *fetch.Fetcher
	ttl     time.Duration
	dbPath  string
}

// FetchCmd downloads a URL through the cache.
type FetchCmd struct {
	URL         string        `arg:"" help:"URL or local path to fetch."`
	Destination string        `arg:"" optional:"" help:"Destination path. Derived from the URL when omitted."`
	TTL         time.Duration `help:"Download cache TTL for this fetch. Zero bypasses the cache." default:"24h"`
}

func (c *FetchCmd) Run(app *appContext) error {
	path, err := app.fetcher.Fetch(context.Background(), c.URL, c.Destination, c.TTL)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// DeleteDownloadCmd evicts a single URL from the download cache.
type DeleteDownloadCmd struct {
	URL string `arg:"" help:"URL whose cached download should be removed."`
}

func (c *DeleteDownloadCmd) Run(app *appContext) error {
	return app.fetcher.DeleteCachedDownload(c.URL)
}

// ValidateCmd probes for an available download transport.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(app *appContext) error {
	if err := app.fetcher.Validate(); err != nil {
		return err
	}
	fmt.Println("download transport available")
	return nil
}

// OldestCmd reports the oldest metadata cache entry among requests given as
// platform/name pairs, e.g. "11.x/token".
type OldestCmd struct {
	Projects []string `arg:"" help:"Projects as platformVersion/name pairs."`
}

func (c *OldestCmd) Run(app *appContext) error {
	reqs := make([]releasecache.Request, 0, len(c.Projects))
	for _, p := range c.Projects {
		platform, name, ok := strings.Cut(p, "/")
		if !ok {
			return fmt.Errorf("invalid project %q, expected platformVersion/name", p)
		}
		reqs = append(reqs, releasecache.Request{Name: name, PlatformVersion: platform})
	}

	db, err := boltcache.Open(app.dbPath, boltcache.WithLogger(app.logger))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	eng := engine.New("release-cache", engine.Config{CacheDuration: app.ttl}, db, nil,
		engine.WithLogger(app.logger))

	oldest := eng.OldestCacheEntry(context.Background(), reqs)
	if oldest.IsZero() {
		fmt.Println("no cached metadata entries")
		return nil
	}
	fmt.Println(oldest.Format(time.RFC3339))
	return nil
}

// StatsCmd prints download cache statistics.
type StatsCmd struct{}

func (c *StatsCmd) Run(app *appContext) error {
	stats, err := app.fetcher.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("entries: %d\ntotal size: %d bytes\n", stats.Entries, stats.TotalSize)
	return nil
}

func main() {
	cacheHome, err := os.UserCacheDir()
	if err != nil {
		cacheHome = "."
	}
	baseDir := filepath.Join(cacheHome, "release-cache")

	ctx := kong.Parse(&cli,
		kong.Name("release-cache"),
		kong.Description("Resolve and fetch package release artifacts with persistent caching."),
		kong.UsageOnError(),
		kong.Vars{
			"cache_dir": filepath.Join(baseDir, "download"),
			"db_path":   filepath.Join(baseDir, "release-info.db"),
		},
	)

	var level slog.Level
	switch cli.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	fetcher := fetch.New(
		transport.NewExecRunner(transport.WithLogger(logger)),
		fetch.Config{
			CacheDir: cli.CacheDir,
			Caching:  cli.Cache,
			Logger:   logger,
		},
	)
	defer fetcher.Cleanup()

	app := &appContext{
		logger:  logger,
		fetcher: fetcher,
		ttl:     cli.CacheDurationReleasexml,
		dbPath:  cli.DB,
	}

	ctx.FatalIfErrorf(ctx.Run(app))
}
