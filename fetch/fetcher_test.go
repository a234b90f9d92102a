package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRunner simulates download tools. A tool present in the map probes as
// available; its function receives the args and may write the output file.
type fakeRunner struct {
	tools map[string]func(args []string) error
	calls []string
}

func (r *fakeRunner) Probe(tool string) bool {
	_, ok := r.tools[tool]
	return ok
}

func (r *fakeRunner) Run(_ context.Context, tool string, args ...string) error {
	r.calls = append(r.calls, tool)
	fn, ok := r.tools[tool]
	if !ok {
		return errors.New("tool not found")
	}
	return fn(args)
}

// outputPath extracts the destination path that follows flag in args.
func outputPath(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeOutput(flag string, data []byte) func(args []string) error {
	return func(args []string) error {
		path := outputPath(args, flag)
		if path == "" {
			return errors.New("no output flag")
		}
		return os.WriteFile(path, data, 0o644)
	}
}

func failingTool(args []string) error {
	return errors.New("transport error")
}

func newTestFetcher(t *testing.T, runner *fakeRunner, caching bool, opts ...Option) *Fetcher {
	t.Helper()

	cfg := Config{
		CacheDir: filepath.Join(t.TempDir(), "download"),
		Caching:  caching,
	}
	return New(runner, cfg, opts...)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tools   []string
		wantErr error
	}{
		{name: "primary available", tools: []string{"curl"}},
		{name: "secondary available", tools: []string{"wget"}},
		{name: "none available", wantErr: ErrNoTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{tools: map[string]func([]string) error{}}
			for _, tool := range tt.tools {
				runner.tools[tool] = writeOutput("--output", []byte("x"))
			}

			f := newTestFetcher(t, runner, true)
			err := f.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFetchLocalPathCopies(t *testing.T) {
	runner := &fakeRunner{tools: map[string]func([]string) error{}}
	f := newTestFetcher(t, runner, true)

	src := filepath.Join(t.TempDir(), "pkg.tgz")
	require.NoError(t, os.WriteFile(src, []byte("local content"), 0o644))
	dest := filepath.Join(t.TempDir(), "out.tgz")

	got, err := f.Fetch(context.Background(), src, dest, time.Hour)
	require.NoError(t, err)
	require.Equal(t, dest, got)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("local content"), data)

	// A plain copy never touches the transports or the download cache.
	require.Empty(t, runner.calls)
	entries, _ := os.ReadDir(f.cacheDir)
	require.Empty(t, entries)
}

func TestFetchCachedFreshSkipsTransport(t *testing.T) {
	runner := &fakeRunner{tools: map[string]func([]string) error{
		"curl": writeOutput("--output", []byte("v1")),
	}}
	f := newTestFetcher(t, runner, true)

	url := "https://example.org/pkg-1.0.tgz"
	dest := filepath.Join(t.TempDir(), "pkg.tgz")

	_, err := f.Fetch(context.Background(), url, dest, time.Hour)
	require.NoError(t, err)
	transportCalls := len(runner.calls)

	// Within TTL the cache file answers without a new download.
	_, err = f.Fetch(context.Background(), url, dest, time.Hour)
	require.NoError(t, err)
	require.Len(t, runner.calls, transportCalls)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), data)
}

func TestFetchStaleReuseOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	url := srv.URL + "/pkg-1.0.tgz"

	runner := &fakeRunner{tools: map[string]func([]string) error{
		"curl": failingTool,
		"wget": failingTool,
	}}
	f := newTestFetcher(t, runner, true)

	// Seed a stale cache file: written now, judged against a future clock.
	require.NoError(t, os.MkdirAll(f.cacheDir, 0o755))
	cacheFile := filepath.Join(f.cacheDir, CacheFileName(url))
	require.NoError(t, os.WriteFile(cacheFile, []byte("stale content"), 0o644))
	f.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	dest := filepath.Join(t.TempDir(), "pkg.tgz")
	got, err := f.Fetch(context.Background(), url, dest, time.Hour)
	require.NoError(t, err)
	require.Equal(t, dest, got)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("stale content"), data)
}

func TestFetchFailsWithoutStaleCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	runner := &fakeRunner{tools: map[string]func([]string) error{
		"curl": failingTool,
		"wget": failingTool,
	}}
	f := newTestFetcher(t, runner, true)

	dest := filepath.Join(t.TempDir(), "pkg.tgz")
	_, err := f.Fetch(context.Background(), srv.URL+"/pkg-1.0.tgz", dest, time.Hour)

	var downloadErr *DownloadError
	require.ErrorAs(t, err, &downloadErr)
}

func TestFetchUncachedRegistersCleanup(t *testing.T) {
	runner := &fakeRunner{tools: map[string]func([]string) error{
		"curl": writeOutput("--output", []byte("one shot")),
	}}
	f := newTestFetcher(t, runner, false)

	dest := filepath.Join(t.TempDir(), "pkg.tgz")
	got, err := f.Fetch(context.Background(), "https://example.org/pkg-1.0.tgz", dest, 0)
	require.NoError(t, err)
	require.FileExists(t, got)

	f.Cleanup()
	require.NoFileExists(t, got)
}

func TestDownloadEmptyResultFallsBack(t *testing.T) {
	runner := &fakeRunner{tools: map[string]func([]string) error{
		// Primary "succeeds" but writes an empty file; it must not be
		// promoted.
		"curl": writeOutput("--output", nil),
		"wget": writeOutput("-O", []byte("secondary data")),
	}}
	f := newTestFetcher(t, runner, false)

	dest := filepath.Join(t.TempDir(), "pkg.tgz")
	_, err := f.Fetch(context.Background(), "https://example.org/pkg-1.0.tgz", dest, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, []byte("secondary data"), data)
	require.Equal(t, []string{"curl", "wget"}, runner.calls)
}

func TestDownloadHTTPFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote data"))
	}))
	defer srv.Close()

	// No external tools at all: the in-process transport is the last resort.
	runner := &fakeRunner{tools: map[string]func([]string) error{}}
	f := newTestFetcher(t, runner, false)

	dest := filepath.Join(t.TempDir(), "pkg.tgz")
	got, err := f.Fetch(context.Background(), srv.URL+"/pkg-1.0.tgz", dest, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	require.Equal(t, []byte("remote data"), data)
}

func TestDeleteCachedDownload(t *testing.T) {
	runner := &fakeRunner{tools: map[string]func([]string) error{
		"curl": writeOutput("--output", []byte("v1")),
	}}
	f := newTestFetcher(t, runner, true)

	url := "https://example.org/pkg-1.0.tgz"
	dest := filepath.Join(t.TempDir(), "pkg.tgz")

	// Deleting an absent entry is a no-op.
	require.NoError(t, f.DeleteCachedDownload(url))

	_, err := f.Fetch(context.Background(), url, dest, time.Hour)
	require.NoError(t, err)
	calls := len(runner.calls)

	// After eviction the next fetch always downloads fresh.
	require.NoError(t, f.DeleteCachedDownload(url))
	_, err = f.Fetch(context.Background(), url, dest, time.Hour)
	require.NoError(t, err)
	require.Greater(t, len(runner.calls), calls)
}

func TestStats(t *testing.T) {
	runner := &fakeRunner{tools: map[string]func([]string) error{
		"curl": writeOutput("--output", []byte("12345")),
	}}
	f := newTestFetcher(t, runner, true)

	stats, err := f.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.Entries)

	dest := filepath.Join(t.TempDir(), "pkg.tgz")
	_, err = f.Fetch(context.Background(), "https://example.org/pkg-1.0.tgz", dest, time.Hour)
	require.NoError(t, err)

	stats, err = f.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, int64(5), stats.TotalSize)
}

func TestDefaultDestination(t *testing.T) {
	dest, err := defaultDestination("https://example.org/files/pkg-1.0.tgz")
	require.NoError(t, err)
	require.Equal(t, "pkg-1.0.tgz", filepath.Base(dest))

	_, err = defaultDestination("https://example.org/")
	require.Error(t, err)
}

func TestIsLocalPath(t *testing.T) {
	require.True(t, isLocalPath("/tmp/pkg.tgz"))
	require.True(t, isLocalPath("./pkg.tgz"))
	require.True(t, isLocalPath("file:///tmp/pkg.tgz"))
	require.False(t, isLocalPath("https://example.org/pkg.tgz"))
	require.False(t, isLocalPath("http://example.org/pkg.tgz"))
}
