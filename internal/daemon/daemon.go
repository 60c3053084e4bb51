// Package daemon assembles the build service: record store, status tracker,
// build sequencer, dependency checker, HTTP API, scheduler, and config watcher.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/rombuilder/internal/config"
	"git.home.luguber.info/inful/rombuilder/internal/events"
	"git.home.luguber.info/inful/rombuilder/internal/metrics"
	"git.home.luguber.info/inful/rombuilder/internal/pipeline"
	"git.home.luguber.info/inful/rombuilder/internal/search"
	"git.home.luguber.info/inful/rombuilder/internal/server"
	"git.home.luguber.info/inful/rombuilder/internal/sources"
	"git.home.luguber.info/inful/rombuilder/internal/state"
	"git.home.luguber.info/inful/rombuilder/internal/status"
	"git.home.luguber.info/inful/rombuilder/internal/sysdeps"
	"git.home.luguber.info/inful/rombuilder/internal/toolchain"
)

// Daemon owns the lifecycle of every component of the build service.
type Daemon struct {
	config     *config.Config
	configPath string

	store     state.Store
	tracker   *status.Tracker
	sequencer *pipeline.Sequencer
	checker   *sysdeps.Checker
	searcher  *search.Client
	publisher *events.Publisher
	recorder  metrics.Recorder

	httpServer    *server.Server
	scheduler     gocron.Scheduler
	configWatcher *config.Watcher
}

// New constructs a daemon from configuration. configFilePath may be empty,
// in which case configuration hot-reload is disabled.
func New(cfg *config.Config, configFilePath string) (*Daemon, error) {
	store, err := state.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open build record store: %w", err)
	}

	d := &Daemon{
		config:     cfg,
		configPath: configFilePath,
		store:      store,
		tracker:    status.NewTracker(),
		recorder:   metrics.NewPrometheusRecorder(prom.NewRegistry()),
	}

	runner := toolchain.NewExecRunner()
	d.checker = sysdeps.NewChecker(runner)
	d.searcher = search.NewClient(search.WithTokens(cfg.Search.GitHubToken, cfg.Search.GitLabToken))

	// NATS eventing is advisory: a missing broker downgrades to a nil
	// publisher, which drops events silently.
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			slog.Warn("Event publishing disabled", slog.String("error", err.Error()))
		} else {
			d.publisher = pub
		}
	}

	tools := toolchain.New(runner, cfg.Workspace.RepoTool)
	d.sequencer = pipeline.New(cfg, store, d.tracker, sources.NewGitFetcher(), tools, d.recorder, d.publisher)

	svc := &buildService{sequencer: d.sequencer, tracker: d.tracker, store: store}
	d.httpServer = server.New(cfg, svc, d.searcher, d.checker, d.recorder)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = sched

	if configFilePath != "" {
		watcher, err := config.NewWatcher(configFilePath, d.applyConfig)
		if err != nil {
			slog.Warn("Config watching disabled", slog.String("error", err.Error()))
		} else {
			d.configWatcher = watcher
		}
	}

	return d, nil
}

// Start brings up the HTTP API, the periodic dependency re-check, and the
// config watcher. An initial dependency check runs immediately so the first
// /api/system/check response is not empty.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Starting ROM builder daemon")

	report := d.checker.Check(ctx)
	if !report.SystemReady {
		slog.Warn("Host is missing build dependencies",
			slog.Int("missing", len(report.Missing)),
			slog.Any("tools", report.Missing))
	}

	if err := d.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := d.scheduleRecheck(); err != nil {
		slog.Warn("Periodic dependency re-check disabled", slog.String("error", err.Error()))
	}
	d.scheduler.Start()

	if d.configWatcher != nil {
		if err := d.configWatcher.Start(ctx); err != nil {
			slog.Error("Failed to start config watcher", slog.String("error", err.Error()))
		}
	}

	slog.Info("ROM builder daemon started",
		slog.String("host", d.config.Server.Host),
		slog.Int("port", d.config.Server.Port))
	return nil
}

// Stop shuts components down in reverse start order. The record store closes
// last so a finishing build can still persist its terminal state.
func (d *Daemon) Stop(ctx context.Context) error {
	slog.Info("Stopping ROM builder daemon")

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			slog.Warn("Config watcher stop failed", slog.String("error", err.Error()))
		}
	}

	if err := d.scheduler.Shutdown(); err != nil {
		slog.Warn("Scheduler shutdown failed", slog.String("error", err.Error()))
	}

	if err := d.httpServer.Stop(ctx); err != nil {
		slog.Warn("HTTP server stop failed", slog.String("error", err.Error()))
	}

	if d.publisher != nil {
		d.publisher.Close()
	}

	if err := d.store.Close(); err != nil {
		return fmt.Errorf("failed to close build record store: %w", err)
	}

	slog.Info("ROM builder daemon stopped")
	return nil
}

// scheduleRecheck registers the periodic host dependency check.
func (d *Daemon) scheduleRecheck() error {
	interval, err := time.ParseDuration(d.config.System.RecheckInterval)
	if err != nil {
		return fmt.Errorf("invalid recheck interval %q: %w", d.config.System.RecheckInterval, err)
	}
	if interval <= 0 {
		return nil
	}

	_, err = d.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			report := d.checker.Check(context.Background())
			if !report.SystemReady {
				slog.Warn("Host is missing build dependencies",
					slog.Any("tools", report.Missing))
			}
		}),
		gocron.WithName("sysdeps-recheck"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule dependency re-check: %w", err)
	}
	return nil
}

// applyConfig is invoked by the config watcher after a successful reload.
// Runtime-safe fields are published to the sequencer; everything else,
// including the dependency re-check interval, takes effect on restart. The
// boot-time Config held by the daemon is never mutated.
func (d *Daemon) applyConfig(next *config.Config) {
	d.sequencer.ApplyConfig(next)
	slog.Info("Applied updated configuration")
}
