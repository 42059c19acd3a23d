package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/site"
	"git.home.luguber.info/inful/sitegen/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"site.yaml"`
	Root    string `short:"C" help:"Project root directory" default:"."`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Force bool `short:"f" help:"Rebuild everything, ignoring cached state"`
	} `cmd:"" help:"Build the site incrementally"`

	Watch struct {
		MetricsAddr string `help:"Serve Prometheus metrics on this address (e.g. :9090)"`
	} `cmd:"" help:"Rebuild on source changes"`

	Clean struct{} `cmd:"" help:"Remove the generated-output directory (caches are kept)"`

	PurgeCache struct{} `cmd:"" name:"purge-cache" help:"Remove all cached build state"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	root, err := filepath.Abs(CLI.Root)
	if err != nil {
		fatal("Invalid project root", err)
	}

	cfg, err := config.Load(filepath.Join(root, CLI.Config))
	if err != nil {
		fatal("Failed to load configuration", err)
	}

	switch kctx.Command() {
	case "build":
		runBuild(root, cfg, CLI.Build.Force)
	case "watch":
		runWatch(root, cfg, CLI.Watch.MetricsAddr)
	case "clean":
		if err := site.NewBuilder(root, cfg, false).Clean(); err != nil {
			fatal("Clean failed", err)
		}
		slog.Info("Removed output directory", "dir", cfg.OutputDir)
	case "purge-cache":
		if err := site.NewBuilder(root, cfg, false).PurgeCache(); err != nil {
			fatal("Cache purge failed", err)
		}
		slog.Info("Removed cache directory")
	default:
		fatal("Unknown command", nil)
	}
}

func runBuild(root string, cfg *config.Config, force bool) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	summary, err := site.NewBuilder(root, cfg, force).Build(ctx)
	if err != nil {
		fatal("Build failed", err)
	}
	slog.Info("Build finished",
		"outcome", string(summary.Outcome),
		"duration", time.Since(start).Round(time.Millisecond))
}

func runWatch(root string, cfg *config.Config, metricsAddr string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if metricsAddr != "" {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		go serveMetrics(ctx, metricsAddr, reg)
	}

	builder := site.NewBuilder(root, cfg, false, site.WithRecorder(recorder))

	// Initial build before settling into the event loop; a failure is
	// reported but not fatal, matching rebuild behavior.
	if summary, err := builder.Build(ctx); err != nil {
		slog.Warn("Initial build failed", "error", err)
	} else {
		slog.Info("Initial build finished", "outcome", string(summary.Outcome))
	}

	watcher := watch.New(root, []string{cfg.OutputDir}, func(ctx context.Context) error {
		summary, err := builder.Build(ctx)
		if err != nil {
			return err
		}
		slog.Info("Rebuild finished", "outcome", string(summary.Outcome))
		return nil
	})

	slog.Info("Watching for changes", "root", root)
	if err := watcher.Run(ctx); err != nil {
		fatal("Watcher failed", err)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prom.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("Metrics server stopped", "error", err)
	}
}

func fatal(msg string, err error) {
	if err != nil {
		slog.Error(msg, "error", err)
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}
