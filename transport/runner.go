// Package transport runs external download tools as subprocesses with
// captured output and bounded execution via context.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// maxCapturedOutput bounds how much tool output an error message carries.
const maxCapturedOutput = 2048

// Runner executes download tools and reports their availability.
type Runner interface {
	// Run executes tool with args, capturing combined output. A non-zero
	// exit or a context timeout is reported as an error carrying the
	// captured output.
	Run(ctx context.Context, tool string, args ...string) error

	// Probe reports whether tool exists on PATH.
	Probe(tool string) bool
}

// RunError reports a failed tool execution with its captured output.
type RunError struct {
	Tool   string
	Output string
	Err    error
}

func (e *RunError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("running %s: %v: %s", e.Tool, e.Err, e.Output)
	}
	return fmt.Sprintf("running %s: %v", e.Tool, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// ExecRunner runs tools as subprocesses.
type ExecRunner struct {
	logger *slog.Logger
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// NewExecRunner creates a runner executing tools from PATH.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes tool with args, capturing combined stdout and stderr.
func (r *ExecRunner) Run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	r.logger.Debug("running download tool", "tool", tool, "args", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		out := buf.String()
		if len(out) > maxCapturedOutput {
			out = out[:maxCapturedOutput]
		}
		return &RunError{Tool: tool, Output: strings.TrimSpace(out), Err: err}
	}
	return nil
}

// Probe reports whether tool exists on PATH.
func (r *ExecRunner) Probe(tool string) bool {
	_, err := exec.LookPath(tool)
	return err == nil
}

// Compile-time interface check
var _ Runner = (*ExecRunner)(nil)
