package handlers

import (
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/server/responses"
	"git.home.luguber.info/inful/rombuilder/internal/version"
)

// APIHandlers contains service-level HTTP handlers.
type APIHandlers struct {
	errorAdapter *errors.HTTPErrorAdapter
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers() *APIHandlers {
	return &APIHandlers{errorAdapter: errors.NewHTTPErrorAdapter(slog.Default())}
}

// HandleHealth handles the health endpoint.
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.HealthResponse{
		Status:  "healthy",
		Service: "AOSP ROM Builder",
		Version: version.Version,
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode health response", err))
	}
}
