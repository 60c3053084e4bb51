package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rombuilder/internal/config"
	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/state"
	"git.home.luguber.info/inful/rombuilder/internal/status"
	"git.home.luguber.info/inful/rombuilder/internal/toolchain"
)

// fakeStore records every mutation and signals when a terminal status lands.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*state.BuildRecord
	patches []state.Patch
	logs    []string
	done    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*state.BuildRecord),
		done:    make(chan struct{}),
	}
}

func (f *fakeStore) Create(_ context.Context, cfg state.BuildConfig) (*state.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("build-%d", len(f.records)+1)
	rec := &state.BuildRecord{ID: id, Config: cfg, Status: state.StatusStarted, StartedAt: time.Now()}
	f.records[id] = rec
	return rec, nil
}

func (f *fakeStore) Update(_ context.Context, id string, p state.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return derrors.NotFoundError("build " + id)
	}
	f.patches = append(f.patches, p)
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Progress != nil {
		rec.Progress = *p.Progress
	}
	if p.CurrentStage != nil {
		rec.CurrentStage = *p.CurrentStage
	}
	if p.Status != nil && !p.Status.Active() {
		close(f.done)
	}
	return nil
}

func (f *fakeStore) AppendLog(_ context.Context, id, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, line)
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*state.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, derrors.NotFoundError("build " + id)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) List(_ context.Context, _ int) ([]state.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]state.BuildRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) stageProgression() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var seq []int
	for _, p := range f.patches {
		if p.CurrentStage != nil && p.Progress != nil {
			seq = append(seq, *p.Progress)
		}
	}
	return seq
}

// fakeFetcher creates empty staging directories instead of cloning. An
// optional block channel holds the first fetch until it is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	fetched []state.SourceConfig
	err     error
	block   chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, src state.SourceConfig, dest string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.fetched = append(f.fetched, src)
	return os.MkdirAll(dest, 0o755)
}

// fakeTools succeeds by default; individual stages can be failed or fed
// scripted output lines. It records the settings each build handed it.
type fakeTools struct {
	mu           sync.Mutex
	syncErr      error
	compileErr   error
	compileLines []string
	initBranches []string
	syncJobs     []int
	artifacts    []string
}

func (f *fakeTools) RepoInit(_ context.Context, _, _, branch string) error {
	f.mu.Lock()
	f.initBranches = append(f.initBranches, branch)
	f.mu.Unlock()
	return nil
}

func (f *fakeTools) RepoSync(_ context.Context, _ string, jobs int, sink toolchain.LineSink) error {
	f.mu.Lock()
	f.syncJobs = append(f.syncJobs, jobs)
	f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	sink("Fetching projects: 100% (1234/1234)")
	return nil
}

func (f *fakeTools) SelectTarget(_ context.Context, _, _, _ string, sink toolchain.LineSink) error {
	sink("============================================")
	return nil
}

func (f *fakeTools) Compile(_ context.Context, _, _, _, artifact string, sink toolchain.LineSink) error {
	f.mu.Lock()
	f.artifacts = append(f.artifacts, artifact)
	f.mu.Unlock()
	for _, line := range f.compileLines {
		sink(line)
	}
	return f.compileErr
}

func validConfig(t *testing.T) state.BuildConfig {
	t.Helper()
	src := state.SourceConfig{Method: state.MethodLocal, Value: "/tmp/src"}
	return state.BuildConfig{
		DeviceName:     "Pixel 7",
		DeviceCodename: "panther",
		AndroidVersion: "15",
		BuildVariant:   state.VariantUserdebug,
		BuildDirectory: filepath.Join(t.TempDir(), "aosp"),
		DeviceTree:     state.SourceConfig{Kind: state.SourceDevice, Method: src.Method, Value: src.Value},
		Kernel:         state.SourceConfig{Kind: state.SourceKernel, Method: src.Method, Value: src.Value},
		Vendor:         state.SourceConfig{Kind: state.SourceVendor, Method: src.Method, Value: src.Value},
	}
}

func newTestSequencer(t *testing.T, store *fakeStore, tools *fakeTools) (*Sequencer, *status.Tracker) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	tracker := status.NewTracker()
	seq := New(cfg, store, tracker, &fakeFetcher{}, tools, nil, nil)
	return seq, tracker
}

func waitForTerminal(t *testing.T, store *fakeStore, tracker *status.Tracker) {
	t.Helper()
	select {
	case <-store.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal build status")
	}
	require.Eventually(t, func() bool {
		return !tracker.Snapshot().Active
	}, time.Second, 10*time.Millisecond, "tracker must deactivate after terminal state")
}

func TestStartBuild_RejectsInvalidConfig(t *testing.T) {
	store := newFakeStore()
	seq, tracker := newTestSequencer(t, store, &fakeTools{})

	cfg := validConfig(t)
	cfg.DeviceCodename = ""

	_, err := seq.StartBuild(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryValidation))
	assert.False(t, tracker.Snapshot().Active, "invalid config must not claim the slot")
	assert.Empty(t, store.records, "invalid config must not create a record")
}

func TestStartBuild_RejectsUnsafeCodename(t *testing.T) {
	store := newFakeStore()
	seq, tracker := newTestSequencer(t, store, &fakeTools{})

	cfg := validConfig(t)
	cfg.DeviceCodename = "panther; rm -rf /"

	_, err := seq.StartBuild(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryValidation))
	assert.False(t, tracker.Snapshot().Active)
	assert.Empty(t, store.records)
}

func TestStartBuild_ConflictWhileBuildActive(t *testing.T) {
	store := newFakeStore()
	seq, tracker := newTestSequencer(t, store, &fakeTools{})

	require.True(t, tracker.TryActivate())

	_, err := seq.StartBuild(context.Background(), validConfig(t))
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryConflict))
	assert.Empty(t, store.records, "a rejected start must not create a record")
}

func TestStartBuild_ReturnsBeforeCompletion(t *testing.T) {
	store := newFakeStore()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	tracker := status.NewTracker()

	// Gate the first stage so the pipeline cannot finish before the
	// post-start state is observed.
	gate := make(chan struct{})
	fetcher := &fakeFetcher{block: gate}
	seq := New(cfg, store, tracker, fetcher, &fakeTools{}, nil, nil)

	id, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := tracker.Snapshot()
	assert.True(t, snap.Active, "build must be active while the pipeline runs")
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, id, snap.BuildID)

	close(gate)
	waitForTerminal(t, store, tracker)
}

func TestPipeline_CompletesThroughAllStages(t *testing.T) {
	store := newFakeStore()
	seq, tracker := newTestSequencer(t, store, &fakeTools{})

	id, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	waitForTerminal(t, store, tracker)

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, "Build completed", rec.CurrentStage)

	// Each stage starts at the previous stage's checkpoint; completion
	// lands at 100.
	assert.Equal(t, []int{0, 5, 10, 15, 40, 45, 100}, store.stageProgression())

	snap := tracker.Snapshot()
	assert.False(t, snap.Active)
	assert.Equal(t, "Build completed", snap.Stage)
	assert.Equal(t, 100, snap.Progress)
}

func TestPipeline_CompileOutputDrivesProgress(t *testing.T) {
	store := newFakeStore()
	tools := &fakeTools{compileLines: []string{
		"Starting ninja...",
		"[10%] compiling framework",
		"[42%] compiling vendor blobs",
		"[98%] linking system image",
	}}
	seq, tracker := newTestSequencer(t, store, tools)

	id, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	waitForTerminal(t, store, tracker)

	var seen []int
	store.mu.Lock()
	for _, p := range store.patches {
		if p.Progress != nil && p.CurrentStage == nil && p.Status == nil {
			seen = append(seen, *p.Progress)
		}
	}
	store.mu.Unlock()
	assert.Equal(t, []int{55, 71, 99}, seen, "bracketed percentages rescale into the 50-100 window")

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Progress)
}

func TestPipeline_StageFailureMarksBuildFailed(t *testing.T) {
	store := newFakeStore()
	tools := &fakeTools{syncErr: derrors.ToolError("repo sync", fmt.Errorf("exit status 1"))}
	seq, tracker := newTestSequencer(t, store, tools)

	id, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	waitForTerminal(t, store, tracker)

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, rec.Status)
	assert.Contains(t, rec.CurrentStage, "Build failed:")

	// Progress stays at the last stage checkpoint reached before the failure.
	assert.Equal(t, 10, rec.Progress)

	store.mu.Lock()
	last := store.logs[len(store.logs)-1]
	store.mu.Unlock()
	assert.Contains(t, last, "Build failed:")

	snap := tracker.Snapshot()
	assert.False(t, snap.Active)
	assert.Contains(t, snap.Stage, "Build failed:")
}

func TestPipeline_SecondBuildAfterCompletion(t *testing.T) {
	store := newFakeStore()
	seq, tracker := newTestSequencer(t, store, &fakeTools{})

	_, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	waitForTerminal(t, store, tracker)

	// The slot is free again; a new build starts with fresh live state.
	store.mu.Lock()
	store.done = make(chan struct{})
	store.mu.Unlock()

	id2, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	require.Len(t, store.records, 2)
	waitForTerminal(t, store, tracker)

	rec, err := store.Get(context.Background(), id2)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, rec.Status)
}

func TestApplyConfig_InFlightBuildKeepsItsSnapshot(t *testing.T) {
	store := newFakeStore()
	tools := &fakeTools{}
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	tracker := status.NewTracker()

	gate := make(chan struct{})
	seq := New(cfg, store, tracker, &fakeFetcher{block: gate}, tools, nil, nil)

	_, err = seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)

	// A reload lands while the first build is still in its first stage.
	next, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	next.Workspace.SyncJobs = 9
	next.Workspace.Artifact = "otapackage"
	next.Repo.Branches = map[string]string{"15": "android-15.0.0_r2"}
	seq.ApplyConfig(next)

	close(gate)
	waitForTerminal(t, store, tracker)

	store.mu.Lock()
	store.done = make(chan struct{})
	store.mu.Unlock()

	_, err = seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)
	waitForTerminal(t, store, tracker)

	tools.mu.Lock()
	defer tools.mu.Unlock()
	assert.Equal(t, []int{4, 9}, tools.syncJobs, "sync jobs apply from the next build on")
	assert.Equal(t, []string{"android-15.0.0_r1", "android-15.0.0_r2"}, tools.initBranches, "branch map applies from the next build on")
	assert.Equal(t, []string{"bacon", "bacon"}, tools.artifacts, "the artifact target is not reloadable")
}

func TestApplyConfig_SafeDuringActiveBuild(t *testing.T) {
	store := newFakeStore()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	tracker := status.NewTracker()

	gate := make(chan struct{})
	seq := New(cfg, store, tracker, &fakeFetcher{block: gate}, &fakeTools{}, nil, nil)

	id, err := seq.StartBuild(context.Background(), validConfig(t))
	require.NoError(t, err)

	next, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	// Hammer reloads while the pipeline runs; the race detector flags any
	// unsynchronized access to the shared settings.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cp := *next
			cp.Workspace.SyncJobs = i + 1
			cp.Repo.Branches = map[string]string{"15": fmt.Sprintf("android-15.0.0_r%d", i+1)}
			seq.ApplyConfig(&cp)
		}
	}()
	close(gate)
	wg.Wait()
	waitForTerminal(t, store, tracker)

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, rec.Status)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "android/aosp"), expandHome("~/android/aosp"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/opt/aosp", expandHome("/opt/aosp"))
	assert.True(t, strings.HasPrefix(expandHome("~/x"), home))
}
