// # cmd/blockscope/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"blockscope/internal/app"
	"blockscope/internal/config"
	"blockscope/internal/observability"
)

var (
	configPath = flag.String("config", "./blockscope.toml", "Path to config file")
	watch      = flag.Bool("watch", false, "Keep running and recheck files on change")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	os.Exit(run())
}

// run carries the whole lifecycle so deferred cleanup (history store,
// observability server, watcher) executes before the process exits.
func run() int {
	flag.Parse()

	if *version {
		fmt.Printf("blockscope v%s\n", VERSION)
		return 0
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == "./blockscope.toml" {
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "error", err)
			return 1
		}
	}

	if flag.NArg() > 0 {
		cfg.CheckPaths = flag.Args()
	}
	if len(cfg.CheckPaths) == 0 {
		cfg.CheckPaths = []string{"."}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.OTLPEndpoint != "" {
		shutdown, err := observability.SetupTracing(ctx, cfg.Observability.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Observability.MetricsListen != "" {
		srv := observability.NewServer(cfg.Observability.MetricsListen)
		if err := srv.Start(ctx); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			return 1
		}
		defer srv.Stop(context.Background())
	}

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	result, err := a.Run(ctx, cfg.CheckPaths)
	if err != nil {
		slog.Error("check failed", "error", err)
		return 1
	}

	for _, diag := range result.Diagnostics {
		fmt.Println(diag.String())
	}
	fmt.Print(app.FormatSummary(result))

	if *watch {
		watcher, err := app.NewWatcher(a)
		if err != nil {
			slog.Error("failed to start watcher", "error", err)
			return 1
		}
		defer watcher.Close()

		if err := watcher.Watch(ctx, cfg.CheckPaths); err != nil {
			slog.Error("failed to watch paths", "error", err)
			return 1
		}
		slog.Info("watching for changes", "paths", cfg.CheckPaths)
		<-ctx.Done()
		return 0
	}

	if len(result.Diagnostics) > 0 {
		return 1
	}
	return 0
}
