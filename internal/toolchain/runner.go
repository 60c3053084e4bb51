// Package toolchain adapts the external build tools (git, repo, the AOSP
// build system) behind narrow interfaces so the pipeline never composes
// shell commands from user input.
package toolchain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"context"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/logfields"
)

// LineSink receives one line of combined tool output. Lines arrive in
// emission order while the process is still running.
type LineSink func(line string)

// Runner executes external commands. The short form runs to completion; the
// streaming form hands combined stdout+stderr to a sink line by line so that
// status reads stay serviceable during multi-hour invocations.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
	Stream(ctx context.Context, dir string, sink LineSink, name string, args ...string) error
	LookPath(name string) (string, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct{}

// NewExecRunner returns the default process runner.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes the command to completion. A non-zero exit or a launch
// failure becomes a tool error carrying the tail of the combined output.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	slog.Debug("Running external tool", logfields.Tool(name), slog.Any("args", args), logfields.Path(dir))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return derrors.ToolError(name, fmt.Errorf("%w: %s", err, outputTail(out)))
	}
	return nil
}

// Stream launches the command and feeds combined stdout+stderr to the sink
// line by line as output is produced. No line is reordered or dropped; the
// sink sees every line before Stream returns. The call blocks until the
// process exits and returns a tool error on non-zero exit.
func (r *ExecRunner) Stream(ctx context.Context, dir string, sink LineSink, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	slog.Debug("Streaming external tool", logfields.Tool(name), slog.Any("args", args), logfields.Path(dir))
	if err := cmd.Start(); err != nil {
		pw.Close()
		return derrors.ToolLaunchError(name, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		pw.Close()
	}()

	// ReadString grows without a line length cap. Build tools emit
	// arbitrarily long lines (ninja command echoes, repo sync status) and
	// a capped reader would stop consuming the pipe, wedging the process
	// on a full pipe buffer.
	reader := bufio.NewReader(pr)
	var readErr error
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			sink(strings.TrimSpace(line))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	if err := <-waitErr; err != nil {
		return derrors.ToolError(name, err)
	}
	return readErr
}

// LookPath reports where a tool resolves on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// outputTail returns the last few lines of tool output for error context.
func outputTail(out []byte) string {
	const tailLines = 5
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return strings.Join(lines, "\n")
}
