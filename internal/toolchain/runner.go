package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nexuspro/nexus-bundler/internal/logger"
)

// outputTailLimit bounds how much subprocess output is replayed into the log.
// Dependency installers are chatty; only the tail is useful for diagnosis.
const outputTailLimit = 4096

// Runner abstracts subprocess execution so the pipeline can be exercised
// in tests without a real toolchain on PATH.
type Runner interface {
	// Run executes a command, streams nothing, and returns once it exits.
	// Output is captured and logged; a non-zero exit is returned as an error.
	Run(ctx context.Context, name string, args ...string) error
	// LookPath resolves an executable name against PATH.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec and logs each invocation,
// its exit code and a bounded tail of its output.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and waits for it to finish.
// The provided context cancels the subprocess when the build is aborted.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	logger.InfoKV(ctx, "Running command", "command", name+" "+strings.Join(args, " "))

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if out := tail(stdout.Bytes()); out != "" {
		logger.DebugKV(ctx, "Command stdout", "output", out)
	}

	if out := tail(stderr.Bytes()); out != "" {
		logger.DebugKV(ctx, "Command stderr", "output", out)
	}

	if err != nil {
		if out := tail(stderr.Bytes()); out != "" {
			return fmt.Errorf("%s: %w: %s", name, err, out)
		}

		return fmt.Errorf("%s: %w", name, err)
	}

	logger.DebugKV(ctx, "Command finished", "command", name, "exit_code", cmd.ProcessState.ExitCode())

	return nil
}

// LookPath resolves an executable against PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// tail returns at most the last outputTailLimit bytes as trimmed text.
func tail(b []byte) string {
	if len(b) > outputTailLimit {
		b = b[len(b)-outputTailLimit:]
	}

	return strings.TrimSpace(string(b))
}
