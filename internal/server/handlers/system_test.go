package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/sysdeps"
)

type stubSystem struct {
	report       sysdeps.Report
	installErr   error
	installDelay time.Duration
	installed    bool
}

func (s *stubSystem) Check(context.Context) sysdeps.Report { return s.report }
func (s *stubSystem) Install(context.Context) error {
	time.Sleep(s.installDelay)
	s.installed = true
	return s.installErr
}

func TestHandleSystemCheck(t *testing.T) {
	h := NewSystemHandlers(&stubSystem{report: sysdeps.Report{
		Installed:   []string{"git", "curl"},
		Missing:     []string{"repo"},
		SystemReady: false,
		CheckedAt:   time.Now().UTC(),
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/system/check", nil)
	rr := httptest.NewRecorder()
	h.HandleSystemCheck(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var report sysdeps.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.False(t, report.SystemReady)
	assert.Equal(t, []string{"repo"}, report.Missing)
}

func TestHandleInstallDependencies(t *testing.T) {
	svc := &stubSystem{}
	h := NewSystemHandlers(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/system/install-dependencies", nil)
	rr := httptest.NewRecorder()
	h.HandleInstallDependencies(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, svc.installed)
	assert.Contains(t, rr.Body.String(), "success")
}

func TestHandleInstallDependencies_Failure(t *testing.T) {
	h := NewSystemHandlers(&stubSystem{
		installErr: derrors.ToolError("apt-get", fmt.Errorf("exit status 100")),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/system/install-dependencies", nil)
	rr := httptest.NewRecorder()
	h.HandleInstallDependencies(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHandleInstallDependencies_OutlivesWriteTimeout(t *testing.T) {
	svc := &stubSystem{installDelay: 300 * time.Millisecond}
	h := NewSystemHandlers(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/system/install-dependencies", h.HandleInstallDependencies)

	srv := httptest.NewUnstartedServer(mux)
	srv.Config.WriteTimeout = 50 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/system/install-dependencies", "application/json", nil)
	require.NoError(t, err, "an install slower than the write timeout must still produce a response")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "success")
}

func TestHandleInstallDependencies_RejectsGet(t *testing.T) {
	h := NewSystemHandlers(&stubSystem{})

	req := httptest.NewRequest(http.MethodGet, "/api/system/install-dependencies", nil)
	rr := httptest.NewRecorder()
	h.HandleInstallDependencies(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
