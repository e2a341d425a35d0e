package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/privanote/internal/api"
	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/config"
	"github.com/MrWong99/privanote/internal/mcp"
	"github.com/MrWong99/privanote/internal/observe"
)

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

var serveOrigins []string

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and MCP endpoint",
		Long: `Run the HTTP API, the live recording websocket, the MCP endpoint and the
Prometheus metrics endpoint until interrupted.

The configuration file is watched and re-read on SIGHUP; log level, default
provider, default language and model size are applied without a restart.

Examples:
  privanote serve --config config.yaml
  privanote serve --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().StringSliceVar(&serveOrigins, "allow-origin", nil, "Additional origin patterns accepted by the recording websocket")
	return cmd
}

func runServe(ctx context.Context) error {
	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("privanote starting",
		"version", version,
		"config", cfgFile,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "privanote",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	metrics := observe.DefaultMetrics()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.WithMetrics(metrics))
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	var watcher *config.Watcher
	if cfgFile != "" {
		watcher, err = config.NewWatcher(cfgFile, func(_, next *config.Config, d config.ConfigDiff) {
			reload(ctx, application, next, d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go reloadOnHangup(ctx, watcher)
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := []api.Option{api.WithMetricsHandler(tel.MetricsHandler())}
	if cfg.MCP.Enabled {
		m := mcp.New(application.Store(), mcp.WithMetrics(metrics), mcp.WithVersion(version))
		opts = append(opts, api.WithMCP(m.Handler()))
	}
	if len(serveOrigins) > 0 {
		opts = append(opts, api.WithOriginPatterns(serveOrigins...))
	}
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.New(application, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("server ready, press Ctrl+C to shut down")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case runErr = <-errCh:
		slog.Error("server error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if watcher != nil {
		watcher.Stop()
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if err := errors.Join(append([]error{runErr}, errs...)...); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// reload applies a changed configuration file.
func reload(ctx context.Context, a *app.App, next *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && logLevel == "" {
		logLevelVar.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if err := a.ApplyConfigDiff(ctx, next, d); err != nil {
		slog.Error("config reload failed", "err", err)
	}
}

// reloadOnHangup re-reads the configuration file whenever the process
// receives SIGHUP, until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := w.Reload(); err != nil {
				slog.Error("config reload rejected", "path", cfgFile, "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        PrivaNote startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Analysis.Provider)
	printRow("Cloud", entryValue(cfg.Analysis.Cloud, cfg.Analysis.Cloud.APIKey != ""))
	printRow("Ollama", entryValue(cfg.Analysis.Ollama, true))
	printRow("LM Studio", entryValue(cfg.Analysis.LMStudio, true))
	printRow("Whisper", cfg.Transcription.Backend+" / "+cfg.Transcription.ModelSize)
	if cfg.Storage.PostgresDSN != "" {
		printRow("Storage", "postgres")
	} else {
		printRow("Storage", "memory")
	}
	if cfg.MCP.Enabled {
		printRow("MCP", "/mcp")
	} else {
		printRow("MCP", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func entryValue(e config.ProviderEntry, usable bool) string {
	switch {
	case !e.Enabled():
		return "(disabled)"
	case !usable:
		return "(no api key)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
