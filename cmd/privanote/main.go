// Command privanote is the entry point for the PrivaNote meeting assistant.
//
// It runs the HTTP and MCP server ("serve") and offers one-shot commands for
// processing a recording, listing the analysis backends and exporting a
// stored meeting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// Global flags.
var (
	cfgFile  string
	logLevel string
)

// logLevelVar is shared by the default logger so a config reload can change
// the level at runtime.
var logLevelVar = new(slog.LevelVar)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "privanote: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "privanote",
		Short: "Privacy-first meeting transcription and analysis",
		Long: `PrivaNote turns meeting recordings into transcripts, summaries, action
items and key decisions. Transcription always runs locally; analysis runs on
OpenAI, a local model server or the built-in keyword analyzer.

Examples:
  # Start the HTTP API and MCP endpoint
  privanote serve --config config.yaml

  # Process a recording and print the Markdown report
  privanote process standup.m4a --title "Daily standup"

  # Show which analysis backends are reachable
  privanote providers`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevelVar})))
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to the YAML configuration file (default: built-in defaults)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level: debug, info, warn, error")

	root.AddCommand(newServeCommand())
	root.AddCommand(newProcessCommand())
	root.AddCommand(newProvidersCommand())
	root.AddCommand(newExportCommand())
	return root
}

// loadConfig reads the configuration named by --config and applies
// --log-level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", cfgFile)
		}
		return nil, err
	}
	if logLevel != "" {
		lvl := config.LogLevel(logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("invalid --log-level %q", logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	logLevelVar.Set(cfg.Server.LogLevel.SlogLevel())
	return cfg, nil
}

// withApp builds an [app.App] for a one-shot command and shuts it down
// afterwards.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()
	return fn(a)
}
