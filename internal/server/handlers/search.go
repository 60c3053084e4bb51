package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/search"
	"git.home.luguber.info/inful/rombuilder/internal/server/responses"
	"git.home.luguber.info/inful/rombuilder/internal/state"
)

// Searcher defines the repository search surface used by these handlers.
type Searcher interface {
	SearchGitHub(ctx context.Context, query string, kind state.SourceKind) ([]search.Result, error)
	SearchGitLab(ctx context.Context, query string, kind state.SourceKind) ([]search.Result, error)
}

// searchRequest is the body accepted by both search endpoints.
type searchRequest struct {
	Query      string           `json:"query"`
	SourceType state.SourceKind `json:"source_type"`
}

// SearchHandlers contains repository search HTTP handlers.
type SearchHandlers struct {
	searcher     Searcher
	errorAdapter *errors.HTTPErrorAdapter
}

// NewSearchHandlers creates a new search handlers instance.
func NewSearchHandlers(searcher Searcher) *SearchHandlers {
	return &SearchHandlers{
		searcher:     searcher,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleSearchGitHub searches GitHub for device/kernel/vendor repositories.
func (h *SearchHandlers) HandleSearchGitHub(w http.ResponseWriter, r *http.Request) {
	h.handleSearch(w, r, h.searcher.SearchGitHub)
}

// HandleSearchGitLab searches GitLab for device/kernel/vendor repositories.
func (h *SearchHandlers) HandleSearchGitLab(w http.ResponseWriter, r *http.Request) {
	h.handleSearch(w, r, h.searcher.SearchGitLab)
}

func (h *SearchHandlers) handleSearch(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, state.SourceKind) ([]search.Result, error)) {
	if r.Method != http.MethodPost {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("malformed search request").WithContext("cause", err.Error()))
		return
	}

	results, err := fn(r.Context(), req.Query, req.SourceType)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	if err := writeJSON(w, http.StatusOK, &responses.SearchResponse{Status: "success", Results: results}); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode search response", err))
	}
}
