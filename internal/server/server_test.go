package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rombuilder/internal/config"
	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/metrics"
	"git.home.luguber.info/inful/rombuilder/internal/search"
	"git.home.luguber.info/inful/rombuilder/internal/state"
	"git.home.luguber.info/inful/rombuilder/internal/status"
	"git.home.luguber.info/inful/rombuilder/internal/sysdeps"
)

type stubBuilds struct{}

func (stubBuilds) StartBuild(context.Context, state.BuildConfig) (string, error) {
	return "", derrors.ConflictError("a build is already in progress")
}
func (stubBuilds) Status() status.Snapshot { return status.Snapshot{Stage: "Idle"} }
func (stubBuilds) Logs() []string          { return nil }
func (stubBuilds) History(context.Context, int) ([]state.BuildRecord, error) {
	return []state.BuildRecord{{ID: "r1"}}, nil
}
func (stubBuilds) GetBuild(_ context.Context, id string) (*state.BuildRecord, error) {
	if id != "r1" {
		return nil, derrors.NotFoundError("build").WithContext("id", id)
	}
	return &state.BuildRecord{ID: "r1"}, nil
}

type stubSearcher struct{}

func (stubSearcher) SearchGitHub(context.Context, string, state.SourceKind) ([]search.Result, error) {
	return []search.Result{{Name: "hit"}}, nil
}
func (stubSearcher) SearchGitLab(context.Context, string, state.SourceKind) ([]search.Result, error) {
	return nil, nil
}

type stubSystem struct{}

func (stubSystem) Check(context.Context) sysdeps.Report {
	return sysdeps.Report{SystemReady: true}
}
func (stubSystem) Install(context.Context) error { return nil }

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	recorder := metrics.NewPrometheusRecorder(prom.NewRegistry())
	srv := New(cfg, stubBuilds{}, stubSearcher{}, stubSystem{}, recorder)
	return srv.Handler()
}

func TestRouting(t *testing.T) {
	handler := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/api/health", http.StatusOK},
		{"status", http.MethodGet, "/api/build/status", http.StatusOK},
		{"logs", http.MethodGet, "/api/build/logs", http.StatusOK},
		{"history", http.MethodGet, "/api/builds/history", http.StatusOK},
		{"record by id", http.MethodGet, "/api/builds/r1", http.StatusOK},
		{"unknown record", http.MethodGet, "/api/builds/zzz", http.StatusNotFound},
		{"system check", http.MethodGet, "/api/system/check", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"unknown path", http.MethodGet, "/api/nope", http.StatusNotFound},
		{"status rejects post", http.MethodPost, "/api/build/status", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestHistoryLiteralTakesPrecedenceOverID(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/builds/history", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"builds"`)
}

func TestStartBuildConflictSurfacesAs409(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/build/start", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	// The stub rejects before the body matters; malformed body yields 400,
	// conflict 409. The empty body here fails decoding first.
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
