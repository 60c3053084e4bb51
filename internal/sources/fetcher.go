// Package sources materializes build inputs (device tree, kernel, vendor
// blobs) into the build workspace.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-git/v5"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/logfields"
	"git.home.luguber.info/inful/rombuilder/internal/state"
)

// Fetcher materializes a source at a destination path or fails.
type Fetcher interface {
	Fetch(ctx context.Context, src state.SourceConfig, dest string) error
}

// GitFetcher fetches remote sources with go-git and copies local ones.
type GitFetcher struct{}

// NewGitFetcher returns the default fetcher.
func NewGitFetcher() *GitFetcher { return &GitFetcher{} }

// Fetch clones github/gitlab/url sources and copies local ones into dest.
// An existing destination is replaced; there is no cleanup on failure.
func (f *GitFetcher) Fetch(ctx context.Context, src state.SourceConfig, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return derrors.SourceFetchError(string(src.Kind), fmt.Errorf("failed to remove existing directory: %w", err))
	}

	switch src.Method {
	case state.MethodGitHub, state.MethodGitLab, state.MethodURL:
		return f.clone(ctx, src, dest)
	case state.MethodLocal:
		return f.copyLocal(src, dest)
	default:
		return derrors.ValidationFailed("method", "unsupported source method "+string(src.Method))
	}
}

func (f *GitFetcher) clone(ctx context.Context, src state.SourceConfig, dest string) error {
	slog.Debug("Cloning source repository", logfields.URL(src.Value), logfields.Path(dest), slog.String("kind", string(src.Kind)))

	repository, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   src.Value,
		Depth: 1,
	})
	if err != nil {
		return derrors.SourceFetchError(string(src.Kind), err)
	}
	if ref, herr := repository.Head(); herr == nil {
		slog.Info("Source repository cloned", logfields.URL(src.Value), slog.String("commit", ref.Hash().String()[:8]), logfields.Path(dest))
	} else {
		slog.Info("Source repository cloned", logfields.URL(src.Value), logfields.Path(dest))
	}
	return nil
}

func (f *GitFetcher) copyLocal(src state.SourceConfig, dest string) error {
	info, err := os.Stat(src.Value)
	if err != nil {
		return derrors.SourceFetchError(string(src.Kind), err)
	}
	if !info.IsDir() {
		return derrors.SourceFetchError(string(src.Kind), fmt.Errorf("%s is not a directory", src.Value))
	}

	slog.Debug("Copying local source", logfields.Path(src.Value), slog.String("dest", dest))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return derrors.SourceFetchError(string(src.Kind), err)
	}
	if err := os.CopyFS(dest, os.DirFS(src.Value)); err != nil {
		return derrors.SourceFetchError(string(src.Kind), err)
	}
	return nil
}

// CopyTree copies a directory tree. Used when placing fetched sources into
// their final locations inside the synced tree.
func CopyTree(src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.CopyFS(dest, os.DirFS(src))
}
