// Package sysdeps probes and installs the host tools an AOSP build needs.
package sysdeps

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/toolchain"
)

// requiredTools are the host dependencies probed by Check.
var requiredTools = []string{
	"git", "curl", "repo", "python3", "build-essential",
	"bc", "bison", "flex", "libssl-dev", "zip",
}

// installPackages is the apt package set installed by Install. Matches the
// canonical AOSP host setup list.
var installPackages = []string{
	"git", "curl", "python3", "build-essential",
	"bc", "bison", "flex", "libssl-dev", "zip",
	"unzip", "git-core", "gnupg", "gperf",
	"zlib1g-dev", "gcc-multilib", "g++-multilib",
	"libc6-dev-i386", "lib32ncurses5-dev",
	"x11proto-core-dev", "libx11-dev", "lib32z-dev",
	"libgl1-mesa-dev", "libxml2-utils", "xsltproc",
}

const repoLauncherURL = "https://storage.googleapis.com/git-repo-downloads/repo"

// Report is the outcome of one dependency check.
type Report struct {
	Installed   []string  `json:"installed"`
	Missing     []string  `json:"missing"`
	SystemReady bool      `json:"system_ready"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Checker probes host dependencies and caches the latest report so status
// endpoints and the periodic re-check share one result.
type Checker struct {
	runner toolchain.Runner

	mu   sync.RWMutex
	last *Report
}

// NewChecker creates a checker around the given runner.
func NewChecker(runner toolchain.Runner) *Checker {
	return &Checker{runner: runner}
}

// Check probes every required tool and caches the report. Packages that are
// not commands (build-essential, libssl-dev) are queried through dpkg.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{CheckedAt: time.Now().UTC()}

	for _, tool := range requiredTools {
		ok := false
		switch tool {
		case "build-essential", "libssl-dev":
			ok = c.dpkgInstalled(ctx, tool)
		default:
			_, err := c.runner.LookPath(tool)
			ok = err == nil
		}
		if ok {
			report.Installed = append(report.Installed, tool)
		} else {
			report.Missing = append(report.Missing, tool)
		}
	}
	report.SystemReady = len(report.Missing) == 0

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report
}

// Cached returns the most recent report, or nil when no check has run yet.
func (c *Checker) Cached() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// dpkgInstalled reports whether dpkg lists the package as installed ("ii").
func (c *Checker) dpkgInstalled(ctx context.Context, pkg string) bool {
	installed := false
	err := c.runner.Stream(ctx, "", func(line string) {
		if strings.HasPrefix(line, "ii") && strings.Contains(line, pkg) {
			installed = true
		}
	}, "dpkg", "-l", pkg)
	return err == nil && installed
}

// Install installs the AOSP host package set and fetches the repo launcher
// into ~/bin. Requires passwordless sudo for apt-get.
func (c *Checker) Install(ctx context.Context) error {
	slog.Info("Installing host dependencies", "packages", len(installPackages))

	if err := c.runner.Run(ctx, "", "sudo", "apt-get", "update"); err != nil {
		return err
	}
	args := append([]string{"apt-get", "install", "-y"}, installPackages...)
	if err := c.runner.Run(ctx, "", "sudo", args...); err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return derrors.InternalError("failed to resolve home directory", err)
	}
	binDir := filepath.Join(home, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityFatal, "failed to create ~/bin")
	}

	repoPath := filepath.Join(binDir, "repo")
	if err := c.runner.Run(ctx, "", "curl", "-fsSL", repoLauncherURL, "-o", repoPath); err != nil {
		return err
	}
	if err := os.Chmod(repoPath, 0o755); err != nil {
		return derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityFatal, "failed to mark repo launcher executable")
	}

	slog.Info("Host dependencies installed", "repo_launcher", repoPath)
	return nil
}
