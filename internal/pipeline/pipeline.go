// Package pipeline sequences the build stages for one ROM build and keeps
// the status store consistent across multi-hour runs.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/rombuilder/internal/config"
	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/events"
	"git.home.luguber.info/inful/rombuilder/internal/logfields"
	"git.home.luguber.info/inful/rombuilder/internal/metrics"
	"git.home.luguber.info/inful/rombuilder/internal/sources"
	"git.home.luguber.info/inful/rombuilder/internal/state"
	"git.home.luguber.info/inful/rombuilder/internal/status"
	"git.home.luguber.info/inful/rombuilder/internal/toolchain"
)

// Tools is the narrow toolchain surface the stages need. Satisfied by
// *toolchain.Toolchain; stubbed in tests.
type Tools interface {
	RepoInit(ctx context.Context, dir, manifestURL, branch string) error
	RepoSync(ctx context.Context, dir string, jobs int, sink toolchain.LineSink) error
	SelectTarget(ctx context.Context, dir, codename, variant string, sink toolchain.LineSink) error
	Compile(ctx context.Context, dir, codename, variant, artifact string, sink toolchain.LineSink) error
}

// Sequencer runs the fixed ordered stage list against a build configuration.
// It owns the single build slot: at most one pipeline runs per process.
//
// Service settings live behind an atomic pointer so a config reload can land
// while a pipeline is running. Each build captures one snapshot at start and
// never sees a later reload.
type Sequencer struct {
	cfg      atomic.Pointer[config.Config]
	store    state.Store
	tracker  *status.Tracker
	fetcher  sources.Fetcher
	tools    Tools
	recorder metrics.Recorder
	events   *events.Publisher // nil when eventing is not configured
}

// New constructs a sequencer. recorder may be nil (treated as noop);
// publisher may be nil (eventing disabled).
func New(cfg *config.Config, store state.Store, tracker *status.Tracker, fetcher sources.Fetcher, tools Tools, recorder metrics.Recorder, publisher *events.Publisher) *Sequencer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	s := &Sequencer{
		store:    store,
		tracker:  tracker,
		fetcher:  fetcher,
		tools:    tools,
		recorder: recorder,
		events:   publisher,
	}
	s.cfg.Store(cfg)
	return s
}

// ApplyConfig publishes updated service settings for subsequent builds. Only
// fields that are safe to change between builds are taken; a build already in
// flight keeps the snapshot it started with.
func (s *Sequencer) ApplyConfig(next *config.Config) {
	merged := *s.cfg.Load()
	merged.Repo = next.Repo
	merged.Workspace.SyncJobs = next.Workspace.SyncJobs
	s.cfg.Store(&merged)
}

// StartBuild validates the configuration, claims the build slot, creates the
// durable record, and detaches pipeline execution. It returns the new build
// id before any stage has run.
func (s *Sequencer) StartBuild(ctx context.Context, cfg state.BuildConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	// Reject codename/variant combinations that could never reach the
	// toolchain, before any side effects.
	if _, err := toolchain.LunchTarget(cfg.DeviceCodename, string(cfg.BuildVariant)); err != nil {
		return "", err
	}

	if !s.tracker.TryActivate() {
		s.recorder.IncBuildConflict()
		return "", derrors.ConflictError("a build is already in progress")
	}

	rec, err := s.store.Create(ctx, cfg)
	if err != nil {
		s.tracker.Deactivate()
		return "", err
	}
	s.tracker.SetBuildID(rec.ID)
	s.recorder.IncBuildsStarted()
	s.events.Publish(events.Event{Type: events.EventBuildStarted, BuildID: rec.ID})

	slog.Info("Build started", logfields.BuildID(rec.ID), logfields.Device(cfg.DeviceCodename), logfields.Variant(string(cfg.BuildVariant)))

	// Detached: the caller's request context must not cancel the build.
	// The settings snapshot is taken here so a config reload racing the
	// start cannot split one build across two configurations.
	go s.runPipeline(context.WithoutCancel(ctx), cfg, rec.ID, s.cfg.Load())

	return rec.ID, nil
}

// stageDef pairs a stage's human-readable label and completion checkpoint
// with its executing function.
type stageDef struct {
	label      string
	checkpoint int
	fn         func(ctx context.Context, bs *buildState) error
}

// buildState carries per-build values across stages, including the service
// settings snapshot the build was started under.
type buildState struct {
	id       string
	cfg      state.BuildConfig
	settings *config.Config
	buildDir string
}

// stages is the fixed ordered stage list. Checkpoints are milestones, not
// proportional to actual work; only compilation reports finer progress.
func (s *Sequencer) stages() []stageDef {
	return []stageDef{
		{"Setting up sources", 5, s.stageSetupSources},
		{"Initializing AOSP repository", 10, s.stageRepoInit},
		{"Syncing AOSP source (this may take hours)", 15, s.stageRepoSync},
		{"Copying device-specific files", 40, s.stageCopyDeviceFiles},
		{"Running lunch command", 45, s.stageSelectTarget},
		{"Building ROM (this will take hours)", 100, s.stageCompile},
	}
}

// runPipeline executes the stage list, stopping at the first failure. All
// terminal paths clear the active flag as the last action.
func (s *Sequencer) runPipeline(ctx context.Context, cfg state.BuildConfig, id string, settings *config.Config) {
	defer s.tracker.Deactivate()

	bs := &buildState{id: id, cfg: cfg, settings: settings, buildDir: expandHome(cfg.BuildDirectory)}

	if err := os.MkdirAll(bs.buildDir, 0o755); err != nil {
		s.failBuild(ctx, bs, derrors.Wrap(err, derrors.CategoryFileSystem, derrors.SeverityFatal, "failed to create build directory"))
		return
	}

	checkpoint := 0
	for _, st := range s.stages() {
		s.setStage(ctx, bs, st.label, checkpoint)

		t0 := time.Now()
		err := st.fn(ctx, bs)
		s.recorder.ObserveStageDuration(st.label, time.Since(t0))
		if err != nil {
			s.failBuild(ctx, bs, err)
			return
		}
		checkpoint = st.checkpoint
	}

	s.completeBuild(ctx, bs)
}

// setStage records the upcoming stage label with the previous stage's
// checkpoint, in memory and durably, before the stage executes.
func (s *Sequencer) setStage(ctx context.Context, bs *buildState, label string, progress int) {
	s.tracker.SetStage(label, progress)
	s.appendLog(ctx, bs.id, stampLine(label))

	st := state.StatusBuilding
	if err := s.store.Update(ctx, bs.id, state.Patch{
		Status:       &st,
		Progress:     &progress,
		CurrentStage: &label,
	}); err != nil {
		slog.Error("Failed to persist stage transition", logfields.BuildID(bs.id), logfields.Stage(label), logfields.Error(err))
	}
	s.events.Publish(events.Event{Type: events.EventStageChanged, BuildID: bs.id, Stage: label, Progress: progress})
	slog.Info("Stage starting", logfields.BuildID(bs.id), logfields.Stage(label), logfields.Progress(progress))
}

// completeBuild marks the terminal success state at progress 100.
func (s *Sequencer) completeBuild(ctx context.Context, bs *buildState) {
	const label = "Build completed"
	s.tracker.SetStage(label, 100)
	s.appendLog(ctx, bs.id, stampLine(label))

	st := state.StatusCompleted
	p := 100
	if err := s.store.Update(ctx, bs.id, state.Patch{Status: &st, Progress: &p, CurrentStage: ptr(label)}); err != nil {
		slog.Error("Failed to persist completion", logfields.BuildID(bs.id), logfields.Error(err))
	}
	s.recorder.IncBuildOutcome(metrics.OutcomeCompleted)
	s.events.Publish(events.Event{Type: events.EventBuildCompleted, BuildID: bs.id, Progress: 100})
	slog.Info("Build completed", logfields.BuildID(bs.id))
}

// failBuild converts a stage error into the terminal failed state. The
// failure message is the final log line; effects of earlier stages stay in
// place with no cleanup.
func (s *Sequencer) failBuild(ctx context.Context, bs *buildState, cause error) {
	label := "Build failed: " + cause.Error()
	progress := s.tracker.Snapshot().Progress
	s.tracker.SetStage(label, progress)
	s.appendLog(ctx, bs.id, stampLine(label))

	st := state.StatusFailed
	if err := s.store.Update(ctx, bs.id, state.Patch{Status: &st, Progress: &progress, CurrentStage: &label}); err != nil {
		slog.Error("Failed to persist failure", logfields.BuildID(bs.id), logfields.Error(err))
	}
	s.recorder.IncBuildOutcome(metrics.OutcomeFailed)
	s.events.Publish(events.Event{Type: events.EventBuildFailed, BuildID: bs.id, Reason: cause.Error(), Progress: progress})
	slog.Error("Build failed", logfields.BuildID(bs.id), logfields.Error(cause))
}

// appendLog writes one line to both the live tail and the durable log,
// preserving a single emission order.
func (s *Sequencer) appendLog(ctx context.Context, id, line string) {
	s.tracker.AppendLog(line)
	if err := s.store.AppendLog(ctx, id, line); err != nil {
		slog.Warn("Failed to persist log line", logfields.BuildID(id), logfields.Error(err))
	}
}

// logSink adapts appendLog to the toolchain's streaming interface.
func (s *Sequencer) logSink(ctx context.Context, id string) toolchain.LineSink {
	return func(line string) {
		if line == "" {
			return
		}
		s.appendLog(ctx, id, line)
	}
}

// stampLine prefixes a status line with the emission time, matching the log
// format of streamed tool output consumers.
func stampLine(line string) string {
	return "[" + time.Now().UTC().Format("15:04:05") + "] " + line
}

// expandHome resolves a leading ~ against the current user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func ptr[T any](v T) *T { return &v }
