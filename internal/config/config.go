// Package config loads and validates the rombuilder service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Repo      RepoConfig      `yaml:"repo"`
	Search    SearchConfig    `yaml:"search"`
	Events    EventsConfig    `yaml:"events"`
	System    SystemConfig    `yaml:"system"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	MetricsPath string `yaml:"metrics_path,omitempty"`
}

// StoreConfig holds durable build record store settings
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps records in-process
	// (useful for tests); the default is a file under the data directory.
	Path string `yaml:"path,omitempty"`
}

// WorkspaceConfig holds build workspace settings
type WorkspaceConfig struct {
	// RepoTool is the path to the repo launcher. Defaults to ~/bin/repo,
	// matching where install-dependencies places it.
	RepoTool string `yaml:"repo_tool,omitempty"`
	// SyncJobs is the -j value passed to repo sync.
	SyncJobs int `yaml:"sync_jobs,omitempty"`
	// Artifact is the make target handed to the compile step.
	Artifact string `yaml:"artifact,omitempty"`
}

// RepoConfig holds manifest repository settings
type RepoConfig struct {
	ManifestURL string `yaml:"manifest_url,omitempty"`
	// Branches maps an Android platform version to a manifest branch.
	Branches map[string]string `yaml:"branches,omitempty"`
	// DefaultBranch is used when the requested version has no mapping.
	DefaultBranch string `yaml:"default_branch,omitempty"`
}

// SearchConfig holds code-hosting search settings
type SearchConfig struct {
	GitHubToken string `yaml:"github_token,omitempty"`
	GitLabToken string `yaml:"gitlab_token,omitempty"`
}

// EventsConfig holds optional NATS event publishing settings
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// SystemConfig holds host dependency check settings
type SystemConfig struct {
	// RecheckInterval is a duration string for the periodic dependency
	// re-check ("0" disables it).
	RecheckInterval string `yaml:"recheck_interval,omitempty"`
}

// Load loads configuration from the specified file and applies environment
// overrides. A missing file yields a default configuration rather than an error
// so the daemon can start from environment alone.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read configuration %s: %w", configPath, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnvOverrides maps environment variables onto config fields. Environment
// always wins over file values so deployments can keep secrets out of YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ROMBUILDER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ROMBUILDER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("ROMBUILDER_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.Search.GitHubToken = v
	}
	if v := os.Getenv("GITLAB_TOKEN"); v != "" {
		c.Search.GitLabToken = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8001
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Store.Path == "" {
		c.Store.Path = "rombuilder.db"
	}
	if c.Workspace.RepoTool == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Workspace.RepoTool = home + "/bin/repo"
		} else {
			c.Workspace.RepoTool = "repo"
		}
	}
	if c.Workspace.SyncJobs == 0 {
		c.Workspace.SyncJobs = 4
	}
	if c.Workspace.Artifact == "" {
		c.Workspace.Artifact = "bacon"
	}
	if c.Repo.ManifestURL == "" {
		c.Repo.ManifestURL = "https://android.googlesource.com/platform/manifest"
	}
	if len(c.Repo.Branches) == 0 {
		c.Repo.Branches = map[string]string{
			"14": "android-14.0.0_r1",
			"15": "android-15.0.0_r1",
			"16": "android-16.0.0_r1",
		}
	}
	if c.Repo.DefaultBranch == "" {
		c.Repo.DefaultBranch = "android-15.0.0_r1"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "rombuilder.builds"
	}
	if c.System.RecheckInterval == "" {
		c.System.RecheckInterval = "10m"
	}
}

// BranchFor resolves the manifest branch for an Android platform version,
// falling back to the default branch for unrecognized versions.
func (c *Config) BranchFor(androidVersion string) string {
	if b, ok := c.Repo.Branches[androidVersion]; ok {
		return b
	}
	return c.Repo.DefaultBranch
}
