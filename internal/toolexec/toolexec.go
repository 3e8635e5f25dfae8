// Package toolexec runs external tools and reports an explicit per-unit
// result. A failed invocation is a value, never a panic: the stage
// runner decides what a failure means for the run.
package toolexec

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// Result holds the outcome of a single tool invocation.
type Result struct {
	Stderr string
	Err    error
}

// OK reports whether the invocation exited successfully.
func (r Result) OK() bool { return r.Err == nil }

// Run executes name with args, capturing stderr for diagnostics. When
// timeout is positive the invocation is bounded and a deadline hit
// surfaces as the command error (treated as unit failure upstream).
// The call blocks; cancelling ctx kills the child process.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return Result{
		Stderr: stderr.String(),
		Err:    err,
	}
}

// Tail returns the last n lines of a tool's stderr, trimmed, for
// compact error logging.
func Tail(stderr string, n int) []string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}
