package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/search"
	"git.home.luguber.info/inful/rombuilder/internal/server/responses"
	"git.home.luguber.info/inful/rombuilder/internal/state"
)

type stubSearcher struct {
	gotQuery string
	gotKind  state.SourceKind
	results  []search.Result
	err      error
}

func (s *stubSearcher) SearchGitHub(_ context.Context, query string, kind state.SourceKind) ([]search.Result, error) {
	s.gotQuery, s.gotKind = query, kind
	return s.results, s.err
}

func (s *stubSearcher) SearchGitLab(_ context.Context, query string, kind state.SourceKind) ([]search.Result, error) {
	s.gotQuery, s.gotKind = query, kind
	return s.results, s.err
}

func TestHandleSearchGitHub(t *testing.T) {
	searcher := &stubSearcher{results: []search.Result{{Name: "android_device_google_panther", Stars: 42}}}
	h := NewSearchHandlers(searcher)

	req := httptest.NewRequest(http.MethodPost, "/api/search/github",
		strings.NewReader(`{"query": "panther", "source_type": "device"}`))
	rr := httptest.NewRecorder()
	h.HandleSearchGitHub(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "panther", searcher.gotQuery)
	assert.Equal(t, state.SourceDevice, searcher.gotKind)

	var resp responses.SearchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 42, resp.Results[0].Stars)
}

func TestHandleSearch_EmptyResultsIsArray(t *testing.T) {
	h := NewSearchHandlers(&stubSearcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/search/gitlab",
		strings.NewReader(`{"query": "panther", "source_type": "kernel"}`))
	rr := httptest.NewRecorder()
	h.HandleSearchGitLab(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"results":[]`)
}

func TestHandleSearch_RejectsGet(t *testing.T) {
	h := NewSearchHandlers(&stubSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/search/github", nil)
	rr := httptest.NewRecorder()
	h.HandleSearchGitHub(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSearch_UpstreamErrorMapsTo502(t *testing.T) {
	h := NewSearchHandlers(&stubSearcher{
		err: derrors.NetworkError("https://api.github.com", context.DeadlineExceeded),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/search/github",
		strings.NewReader(`{"query": "panther", "source_type": "device"}`))
	rr := httptest.NewRecorder()
	h.HandleSearchGitHub(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
