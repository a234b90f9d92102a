package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// stagingPrefix marks in-progress download files so cache statistics and
// directory listings can skip them.
const stagingPrefix = ".staging-"

// download retrieves rawURL into destination via the transport chain: the
// primary streaming tool, then the secondary tool, then an in-process HTTP
// request. Each attempt writes to its own staging file; only a non-empty
// result is promoted into destination.
func (f *Fetcher) download(ctx context.Context, rawURL, destination string, overwrite bool) (string, error) {
	if !overwrite {
		if _, err := os.Stat(destination); err == nil {
			return "", fmt.Errorf("destination %s already exists", destination)
		}
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating destination directory: %w", err)
	}

	f.probeOnce.Do(func() {
		f.primaryOK = f.runner.Probe(primaryTool)
		if !f.primaryOK {
			f.logger.Debug("primary download tool not found", "tool", primaryTool)
		}
	})

	staging := f.tryTransports(ctx, rawURL, dir)
	if staging == "" {
		f.metrics.Download("all", "failure")
		return "", &DownloadError{URL: rawURL}
	}

	// Atomic promote. Staging lives in the destination directory, so the
	// rename never crosses filesystems.
	if err := os.Rename(staging, destination); err != nil {
		_ = os.Remove(staging)
		return "", fmt.Errorf("promoting download of %s: %w", rawURL, err)
	}
	return destination, nil
}

// tryTransports walks the transport chain and returns the path of the first
// non-empty staging file, or empty when every attempt failed.
func (f *Fetcher) tryTransports(ctx context.Context, rawURL, dir string) string {
	timeoutSecs := strconv.Itoa(int(f.timeout.Seconds()))

	if f.primaryOK {
		staging := stagingPath(dir)
		err := f.runTool(ctx, primaryTool,
			"--fail", "--silent", "--show-error", "--location",
			"--connect-timeout", timeoutSecs,
			"--output", staging,
			rawURL,
		)
		if err == nil && nonEmptyFile(staging) {
			f.metrics.Download("primary", "success")
			return staging
		}
		_ = os.Remove(staging)
		f.metrics.Download("primary", "failure")
		f.logger.Debug("primary transport failed", "url", rawURL, "error", err)
	}

	if f.runner.Probe(secondaryTool) {
		staging := stagingPath(dir)
		err := f.runTool(ctx, secondaryTool,
			"--quiet",
			"--timeout="+timeoutSecs,
			"-O", staging,
			rawURL,
		)
		if err == nil && nonEmptyFile(staging) {
			f.metrics.Download("secondary", "success")
			return staging
		}
		_ = os.Remove(staging)
		f.metrics.Download("secondary", "failure")
		f.logger.Debug("secondary transport failed", "url", rawURL, "error", err)
	}

	// Last resort: in-process retrieval.
	staging := stagingPath(dir)
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	err := f.fallback.get(actx, rawURL, staging)
	cancel()
	if err == nil && nonEmptyFile(staging) {
		f.metrics.Download("http", "success")
		return staging
	}
	_ = os.Remove(staging)
	f.metrics.Download("http", "failure")
	f.logger.Debug("in-process transport failed", "url", rawURL, "error", err)

	return ""
}

// runTool executes a download tool with the per-attempt timeout applied.
func (f *Fetcher) runTool(ctx context.Context, tool string, args ...string) error {
	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.runner.Run(actx, tool, args...)
}

func stagingPath(dir string) string {
	return filepath.Join(dir, stagingPrefix+uuid.NewString())
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
