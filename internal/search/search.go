// Package search queries code-hosting APIs for device trees, kernels, and
// vendor blob repositories.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
	"git.home.luguber.info/inful/rombuilder/internal/state"
)

// Result is one repository hit, normalized across hosts.
type Result struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	CloneURL    string `json:"clone_url"`
	Stars       int    `json:"stars"`
	UpdatedAt   string `json:"updated_at"`
}

// Client searches GitHub and GitLab for build source repositories.
type Client struct {
	httpClient  *http.Client
	githubAPI   string
	gitlabAPI   string
	githubToken string
	gitlabToken string
}

// Option configures a Client.
type Option func(*Client)

// WithGitHubAPI overrides the GitHub API base URL (tests, GHE).
func WithGitHubAPI(base string) Option { return func(c *Client) { c.githubAPI = base } }

// WithGitLabAPI overrides the GitLab API base URL (tests, self-hosted).
func WithGitLabAPI(base string) Option { return func(c *Client) { c.gitlabAPI = base } }

// WithTokens sets optional API tokens to raise rate limits.
func WithTokens(github, gitlab string) Option {
	return func(c *Client) {
		c.githubToken = github
		c.gitlabToken = gitlab
	}
}

// NewClient creates a search client with sane timeouts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		githubAPI:  "https://api.github.com",
		gitlabAPI:  "https://gitlab.com/api/v4",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// buildQuery templates the raw query per source type so device searches find
// device trees, kernel searches find kernels, and so on.
func buildQuery(query string, kind state.SourceKind) string {
	switch kind {
	case state.SourceDevice:
		return query + " device tree android"
	case state.SourceKernel:
		return query + " kernel android"
	case state.SourceVendor:
		return query + " vendor blobs android"
	default:
		return query
	}
}

type githubRepo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	CloneURL    string `json:"clone_url"`
	Stars       int    `json:"stargazers_count"`
	UpdatedAt   string `json:"updated_at"`
}

type githubSearchResponse struct {
	Items []githubRepo `json:"items"`
}

// SearchGitHub returns the top repositories by stars matching the templated
// query.
func (c *Client) SearchGitHub(ctx context.Context, query string, kind state.SourceKind) ([]Result, error) {
	if query == "" {
		return nil, derrors.ValidationFailed("query", "must not be empty")
	}

	u := fmt.Sprintf("%s/search/repositories?q=%s&sort=stars&order=desc&per_page=10",
		c.githubAPI, url.QueryEscape(buildQuery(query, kind)))

	var payload githubSearchResponse
	if err := c.doRequest(ctx, u, c.githubToken, &payload); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(payload.Items))
	for _, repo := range payload.Items {
		results = append(results, Result{
			Name:        repo.Name,
			FullName:    repo.FullName,
			Description: repo.Description,
			CloneURL:    repo.CloneURL,
			Stars:       repo.Stars,
			UpdatedAt:   repo.UpdatedAt,
		})
	}
	return results, nil
}

type gitlabRepo struct {
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	StarCount         int    `json:"star_count"`
	LastActivityAt    string `json:"last_activity_at"`
}

// SearchGitLab returns the top projects by star count matching the templated
// query.
func (c *Client) SearchGitLab(ctx context.Context, query string, kind state.SourceKind) ([]Result, error) {
	if query == "" {
		return nil, derrors.ValidationFailed("query", "must not be empty")
	}

	u := fmt.Sprintf("%s/projects?search=%s&order_by=star_count&per_page=10",
		c.gitlabAPI, url.QueryEscape(buildQuery(query, kind)))

	var payload []gitlabRepo
	if err := c.doRequest(ctx, u, c.gitlabToken, &payload); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(payload))
	for _, repo := range payload {
		results = append(results, Result{
			Name:        repo.Name,
			FullName:    repo.PathWithNamespace,
			Description: repo.Description,
			CloneURL:    repo.HTTPURLToRepo,
			Stars:       repo.StarCount,
			UpdatedAt:   repo.LastActivityAt,
		})
	}
	return results, nil
}

func (c *Client) doRequest(ctx context.Context, u, token string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return derrors.NetworkError(u, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return derrors.NetworkError(u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return derrors.NetworkError(u, fmt.Errorf("upstream API error: %s", resp.Status))
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
