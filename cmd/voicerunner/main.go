// Command voicerunner runs the Voice Runner collection server: the HTTP API
// that receives gameplay attempt recordings, serves the phrase corpus and
// tuning parameters to clients, and exposes aggregated corpus statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/carivox/voicerunner/internal/collector"
	"github.com/carivox/voicerunner/internal/config"
	"github.com/carivox/voicerunner/internal/health"
	"github.com/carivox/voicerunner/internal/observe"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level is held in a LevelVar so config reloads can adjust it without
	// swapping the handler.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Load configuration (with hot reload) ──────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(level, config.Diff(old, new))
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicerunner: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicerunner: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("voicerunner starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicerunner",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Storage backend ───────────────────────────────────────────────────────
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise storage", "backend", cfg.Storage.Backend, "err", err)
		return 1
	}
	defer closeStore()

	// ── HTTP surface ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()

	health.New(
		health.CorpusChecker(cfg.Corpus.Path),
		health.StoreChecker(string(cfg.Storage.Backend), store),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	serverOpts := []collector.ServerOption{
		collector.WithServerMetrics(metrics),
		collector.WithTuning(cfg.VAD, cfg.Game),
	}
	var feed *collector.LiveFeed
	if cfg.Live.Enabled {
		interval := time.Duration(cfg.Live.PushIntervalMs) * time.Millisecond
		feed = collector.NewLiveFeed(store, interval, metrics)
		serverOpts = append(serverOpts, collector.WithLiveFeed(feed))
	}
	collector.NewServer(store, string(cfg.Storage.Backend), cfg.Corpus.Path, serverOpts...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if feed != nil {
		g.Go(func() error {
			return feed.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildStore constructs the attempt store named by cfg.Storage.Backend and
// returns it with a cleanup function to call on shutdown.
func buildStore(ctx context.Context, cfg *config.Config) (collector.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := collector.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		// Fail fast when the database degrades instead of stalling uploads.
		return collector.NewBreakerStore(store, "postgres"), pool.Close, nil
	default:
		dir := cfg.Storage.Local.Dir
		if dir == "" {
			dir = "./data"
		}
		store, err := collector.NewLocalStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// applyReload applies the parts of a config change that take effect without
// a restart and logs the ones that do not. Only the log level is applied
// live; corpus content is re-read per request so only a path change needs a
// restart.
func applyReload(level *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TuningChanged {
		slog.Warn("vad/game tuning changed — restart required for /api/config to serve the new values")
	}
	if d.CorpusChanged {
		slog.Warn("corpus path changed — restart required")
	}
	if d.StorageChanged {
		slog.Warn("storage configuration changed — restart required")
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      Voice Runner — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Storage         : %-19s ║\n", cfg.Storage.Backend)
	fmt.Printf("║  Corpus          : %-19s ║\n", trunc(cfg.Corpus.Path))
	if cfg.Live.Enabled {
		fmt.Printf("║  Live feed       : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Live feed       : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.TLS != nil {
		fmt.Printf("║  TLS             : %-19s ║\n", "enabled")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func trunc(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
