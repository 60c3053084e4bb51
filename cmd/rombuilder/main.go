package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/rombuilder/internal/config"
	"git.home.luguber.info/inful/rombuilder/internal/daemon"
	"git.home.luguber.info/inful/rombuilder/internal/sysdeps"
	"git.home.luguber.info/inful/rombuilder/internal/toolchain"
	"git.home.luguber.info/inful/rombuilder/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Start the ROM build daemon and HTTP API"`

	Check struct{} `cmd:"" help:"Check host build dependencies and exit"`

	Install struct{} `cmd:"" help:"Install missing host build dependencies"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "serve":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runServe(cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "check":
		if err := runCheck(); err != nil {
			slog.Error("Dependency check failed", "error", err)
			os.Exit(1)
		}
	case "install":
		if err := runInstall(); err != nil {
			slog.Error("Dependency install failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("rombuilder %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
	}
}

func runServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, CLI.Config)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	return nil
}

func runCheck() error {
	checker := sysdeps.NewChecker(toolchain.NewExecRunner())
	report := checker.Check(context.Background())

	fmt.Printf("Checked %d tools at %s\n", len(report.Installed)+len(report.Missing),
		report.CheckedAt.Format(time.RFC3339))
	for _, tool := range report.Installed {
		fmt.Printf("  ok      %s\n", tool)
	}
	for _, tool := range report.Missing {
		fmt.Printf("  missing %s\n", tool)
	}
	if !report.SystemReady {
		return fmt.Errorf("%d required tools missing", len(report.Missing))
	}
	fmt.Println("System ready for ROM builds")
	return nil
}

func runInstall() error {
	checker := sysdeps.NewChecker(toolchain.NewExecRunner())
	if err := checker.Install(context.Background()); err != nil {
		return err
	}
	fmt.Println("Dependencies installed")
	return nil
}
