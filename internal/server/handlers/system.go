package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/server/responses"
	"git.home.luguber.info/inful/rombuilder/internal/sysdeps"
)

// SystemService defines the host dependency operations used by these handlers.
type SystemService interface {
	Check(ctx context.Context) sysdeps.Report
	Install(ctx context.Context) error
}

// SystemHandlers contains host dependency HTTP handlers.
type SystemHandlers struct {
	service      SystemService
	errorAdapter *errors.HTTPErrorAdapter
}

// NewSystemHandlers creates a new system handlers instance.
func NewSystemHandlers(service SystemService) *SystemHandlers {
	return &SystemHandlers{
		service:      service,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleSystemCheck probes the required host tools and reports readiness.
func (h *SystemHandlers) HandleSystemCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "GET")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	report := h.service.Check(r.Context())
	if err := writeJSON(w, http.StatusOK, report); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode system check", err))
	}
}

// HandleInstallDependencies installs the AOSP host package set.
func (h *SystemHandlers) HandleInstallDependencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := errors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST")
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	// Package installation routinely outruns the server's write timeout.
	// Lift the deadline for this response so the client still receives
	// the outcome instead of a severed connection.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("Could not clear write deadline for install", slog.String("error", err.Error()))
	}

	if err := h.service.Install(r.Context()); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := &responses.InstallResponse{
		Status:  "success",
		Message: "Dependencies installed successfully",
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.InternalError("failed to encode install response", err))
	}
}
