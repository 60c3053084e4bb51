package toolchain

import (
	"context"
	"regexp"
	"strconv"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
)

// targetPattern bounds what a device codename or make target may look like.
// Anything outside it is rejected before the value can reach a shell.
var targetPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var validVariants = map[string]bool{
	"user":      true,
	"userdebug": true,
	"eng":       true,
}

// Toolchain exposes the discrete build-tool operations the pipeline needs.
// User-supplied fields (codename, variant) are validated here and passed to
// bash as positional parameters, never spliced into the command string.
type Toolchain struct {
	runner   Runner
	repoTool string
}

// New constructs a toolchain around the given runner. repoTool is the path
// to the repo launcher binary.
func New(runner Runner, repoTool string) *Toolchain {
	return &Toolchain{runner: runner, repoTool: repoTool}
}

// RepoInit initializes the manifest repository in dir on the given branch.
func (t *Toolchain) RepoInit(ctx context.Context, dir, manifestURL, branch string) error {
	return t.runner.Run(ctx, dir, t.repoTool, "init", "-u", manifestURL, "-b", branch)
}

// RepoSync synchronizes the source tree. Output streams to the sink; this
// runs for hours on a cold tree.
func (t *Toolchain) RepoSync(ctx context.Context, dir string, jobs int, sink LineSink) error {
	if jobs < 1 {
		jobs = 1
	}
	return t.runner.Stream(ctx, dir, sink, t.repoTool, "sync", "-c", "-j"+strconv.Itoa(jobs))
}

// SelectTarget sources the build environment and runs lunch for the
// codename/variant combination.
func (t *Toolchain) SelectTarget(ctx context.Context, dir, codename, variant string, sink LineSink) error {
	target, err := LunchTarget(codename, variant)
	if err != nil {
		return err
	}
	return t.runner.Stream(ctx, dir, sink,
		"bash", "-c", `source build/envsetup.sh && lunch "$1"`, "lunch", target)
}

// Compile sources the build environment, selects the target, and builds the
// named artifact. The only stage with line-level progress output.
func (t *Toolchain) Compile(ctx context.Context, dir, codename, variant, artifact string, sink LineSink) error {
	target, err := LunchTarget(codename, variant)
	if err != nil {
		return err
	}
	if !targetPattern.MatchString(artifact) {
		return derrors.ValidationFailed("artifact", "contains characters not allowed in a make target")
	}
	return t.runner.Stream(ctx, dir, sink,
		"bash", "-c", `source build/envsetup.sh && lunch "$1" && mka "$2"`, "mka", target, artifact)
}

// LunchTarget validates the codename and variant and returns the combined
// lunch target. Validation failures are surfaced, never escaped around.
func LunchTarget(codename, variant string) (string, error) {
	if !targetPattern.MatchString(codename) {
		return "", derrors.ValidationFailed("device_codename", "contains characters not allowed in a lunch target")
	}
	if !validVariants[variant] {
		return "", derrors.ValidationFailed("build_variant", "must be one of user, userdebug, eng")
	}
	return codename + "-" + variant, nil
}
