package state

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
)

func testBuildConfig() BuildConfig {
	src := SourceConfig{Method: MethodLocal, Value: "/tmp/src"}
	return BuildConfig{
		DeviceName:     "Pixel 7",
		DeviceCodename: "panther",
		AndroidVersion: "15",
		BuildVariant:   VariantUserdebug,
		BuildDirectory: "~/android/aosp",
		DeviceTree:     SourceConfig{Kind: SourceDevice, Method: src.Method, Value: src.Value},
		Kernel:         SourceConfig{Kind: SourceKernel, Method: src.Method, Value: src.Value},
		Vendor:         SourceConfig{Kind: SourceVendor, Method: src.Method, Value: src.Value},
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "builds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, testBuildConfig())
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusStarted, rec.Status)
	assert.Equal(t, 0, rec.Progress)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "panther", got.Config.DeviceCodename)
	assert.Equal(t, VariantUserdebug, got.Config.BuildVariant)
	assert.Equal(t, StatusStarted, got.Status)
	assert.Empty(t, got.Logs)
	assert.WithinDuration(t, time.Now(), got.StartedAt, 5*time.Second)
}

func TestSQLiteStore_GetUnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-build")
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryNotFound))
}

func TestSQLiteStore_UpdatePartialPatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, testBuildConfig())
	require.NoError(t, err)

	st := StatusBuilding
	p := 45
	stage := "Running lunch command"
	require.NoError(t, store.Update(ctx, rec.ID, Patch{Status: &st, Progress: &p, CurrentStage: &stage}))

	// A progress-only patch must leave status and stage untouched.
	p2 := 71
	require.NoError(t, store.Update(ctx, rec.ID, Patch{Progress: &p2}))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBuilding, got.Status)
	assert.Equal(t, 71, got.Progress)
	assert.Equal(t, "Running lunch command", got.CurrentStage)
	assert.True(t, got.UpdatedAt.After(got.StartedAt) || got.UpdatedAt.Equal(got.StartedAt))
}

func TestSQLiteStore_UpdateUnknownID(t *testing.T) {
	store := newTestStore(t)

	st := StatusFailed
	err := store.Update(context.Background(), "no-such-build", Patch{Status: &st})
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryNotFound))
}

func TestSQLiteStore_AppendLogPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.Create(ctx, testBuildConfig())
	require.NoError(t, err)

	for i := range 50 {
		require.NoError(t, store.AppendLog(ctx, rec.ID, fmt.Sprintf("line %d", i)))
	}

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Logs, 50)
	for i, line := range got.Logs {
		assert.Equal(t, fmt.Sprintf("line %d", i), line)
	}
}

func TestSQLiteStore_LogsAreScopedToBuild(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.Create(ctx, testBuildConfig())
	require.NoError(t, err)
	b, err := store.Create(ctx, testBuildConfig())
	require.NoError(t, err)

	require.NoError(t, store.AppendLog(ctx, a.ID, "from a"))
	require.NoError(t, store.AppendLog(ctx, b.ID, "from b"))

	gotA, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"from a"}, gotA.Logs)

	gotB, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"from b"}, gotB.Logs)
}

func TestSQLiteStore_ListNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for range 5 {
		rec, err := store.Create(ctx, testBuildConfig())
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		time.Sleep(2 * time.Millisecond)
	}

	records, err := store.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ids[4], records[0].ID)
	assert.Equal(t, ids[3], records[1].ID)
	assert.Equal(t, ids[2], records[2].ID)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "builds.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	rec, err := store.Create(ctx, testBuildConfig())
	require.NoError(t, err)
	require.NoError(t, store.AppendLog(ctx, rec.ID, "survives restart"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"survives restart"}, got.Logs)
}
