package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/server/responses"
	"git.home.luguber.info/inful/rombuilder/internal/state"
	"git.home.luguber.info/inful/rombuilder/internal/status"
)

// BuildService defines the pipeline and store methods needed by build handlers.
type BuildService interface {
	StartBuild(ctx context.Context, cfg state.BuildConfig) (string, error)
	Status() status.Snapshot
	Logs() []string
	History(ctx context.Context, limit int) ([]state.BuildRecord, error)
	GetBuild(ctx context.Context, id string) (*state.BuildRecord, error)
}

// historyLimit caps the records returned by the history endpoint.
const historyLimit = 20

// BuildHandlers contains build-related HTTP handlers.
type BuildHandlers struct {
	service      BuildService
	errorAdapter *errors.HTTPErrorAdapter
}

// NewBuildHandlers creates a new build handlers instance.
func NewBuildHandlers(service BuildService) *BuildHandlers {
	return &BuildHandlers{
		service:      service,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleStartBuild accepts a build configuration and starts the pipeline.
// The response returns before any stage completes; failures surface through
// the status endpoints, not here.
func (h *BuildHandlers) HandleStartBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	var cfg state.BuildConfig
	if err := decodeJSON(r, &cfg); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("malformed build configuration").WithContext("cause", err.Error()))
		return
	}

	buildID, err := h.service.StartBuild(r.Context(), cfg)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.StartBuildResponse{
		Status:  "success",
		BuildID: buildID,
		Message: "Build started",
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode start build response", err))
	}
}

// HandleBuildStatus serves the live status snapshot.
func (h *BuildHandlers) HandleBuildStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, h.service.Status()); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode build status", err))
	}
}

// HandleBuildLogs serves the bounded live log tail in chronological order.
func (h *BuildHandlers) HandleBuildLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, &responses.LogsResponse{Logs: h.service.Logs()}); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode build logs", err))
	}
}

// HandleBuildHistory serves persisted records, newest first.
func (h *BuildHandlers) HandleBuildHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	builds, err := h.service.History(r.Context(), historyLimit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if builds == nil {
		builds = []state.BuildRecord{}
	}
	if err := writeJSON(w, http.StatusOK, &responses.HistoryResponse{Builds: builds}); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode build history", err))
	}
}

// HandleGetBuild serves one full build record by id.
func (h *BuildHandlers) HandleGetBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("missing build id"))
		return
	}

	rec, err := h.service.GetBuild(r.Context(), id)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, rec); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode build record", err))
	}
}
