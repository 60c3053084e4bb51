// Package responses defines the JSON response shapes served by the API.
package responses

import (
	"git.home.luguber.info/inful/rombuilder/internal/search"
	"git.home.luguber.info/inful/rombuilder/internal/state"
)

// HealthResponse is served by /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// StartBuildResponse is served by /api/build/start.
type StartBuildResponse struct {
	Status  string `json:"status"`
	BuildID string `json:"build_id"`
	Message string `json:"message"`
}

// LogsResponse is served by /api/build/logs.
type LogsResponse struct {
	Logs []string `json:"logs"`
}

// HistoryResponse is served by /api/builds/history.
type HistoryResponse struct {
	Builds []state.BuildRecord `json:"builds"`
}

// SearchResponse is served by the repository search endpoints.
type SearchResponse struct {
	Status  string          `json:"status"`
	Results []search.Result `json:"results"`
}

// InstallResponse is served by /api/system/install-dependencies.
type InstallResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
