package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/logfields"
	"git.home.luguber.info/inful/rombuilder/internal/progress"
	"git.home.luguber.info/inful/rombuilder/internal/sources"
	"git.home.luguber.info/inful/rombuilder/internal/state"
)

// stageSetupSources materializes the device tree, kernel, and vendor sources
// into staging directories inside the build workspace.
func (s *Sequencer) stageSetupSources(ctx context.Context, bs *buildState) error {
	for _, src := range bs.cfg.Sources() {
		dest := filepath.Join(bs.buildDir, string(src.Kind)+"_temp")
		if err := s.fetcher.Fetch(ctx, src, dest); err != nil {
			return err
		}
	}
	return nil
}

// stageRepoInit initializes the manifest repository on the branch mapped
// from the requested platform version.
func (s *Sequencer) stageRepoInit(ctx context.Context, bs *buildState) error {
	branch := bs.settings.BranchFor(bs.cfg.AndroidVersion)
	return s.tools.RepoInit(ctx, bs.buildDir, bs.settings.Repo.ManifestURL, branch)
}

// stageRepoSync synchronizes the full source tree, streaming every output
// line into the build log.
func (s *Sequencer) stageRepoSync(ctx context.Context, bs *buildState) error {
	return s.tools.RepoSync(ctx, bs.buildDir, bs.settings.Workspace.SyncJobs, s.logSink(ctx, bs.id))
}

// stageCopyDeviceFiles places the staged sources into their final locations
// inside the synced tree. Partially copied trees are not rolled back on
// failure.
func (s *Sequencer) stageCopyDeviceFiles(_ context.Context, bs *buildState) error {
	placements := []struct {
		kind state.SourceKind
		dest string
	}{
		{state.SourceDevice, filepath.Join(bs.buildDir, "device", bs.cfg.DeviceCodename)},
		{state.SourceKernel, filepath.Join(bs.buildDir, "kernel", bs.cfg.DeviceCodename)},
		{state.SourceVendor, filepath.Join(bs.buildDir, "vendor", bs.cfg.DeviceCodename)},
	}
	for _, p := range placements {
		staged := filepath.Join(bs.buildDir, string(p.kind)+"_temp")
		if err := sources.CopyTree(staged, p.dest); err != nil {
			return derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityFatal, "failed to place "+string(p.kind)+" files")
		}
	}
	return nil
}

// stageSelectTarget configures the build environment for the device/variant
// combination.
func (s *Sequencer) stageSelectTarget(ctx context.Context, bs *buildState) error {
	return s.tools.SelectTarget(ctx, bs.buildDir, bs.cfg.DeviceCodename, string(bs.cfg.BuildVariant), s.logSink(ctx, bs.id))
}

// stageCompile runs the main build. Output lines carrying a bracketed
// percentage update the displayed progress within the 50-100 window; other
// lines only extend the log.
func (s *Sequencer) stageCompile(ctx context.Context, bs *buildState) error {
	log := s.logSink(ctx, bs.id)
	sink := func(line string) {
		log(line)
		if p, ok := progress.ScanInto(line, progress.CompileRange); ok {
			s.tracker.SetProgress(p)
			s.recorder.SetCompileProgress(p)
			if err := s.store.Update(ctx, bs.id, state.Patch{Progress: &p}); err != nil {
				slog.Warn("Failed to persist compile progress", logfields.BuildID(bs.id), logfields.Error(err))
			}
		}
	}
	return s.tools.Compile(ctx, bs.buildDir, bs.cfg.DeviceCodename, string(bs.cfg.BuildVariant), bs.settings.Workspace.Artifact, sink)
}
