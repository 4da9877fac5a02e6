// Command eventsd serves the media-sync dashboard's realtime event socket:
// the /api/ws endpoint, the task list feed, and host telemetry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/mediasync-events/internal/config"
	"github.com/rickgao/mediasync-events/internal/database"
	"github.com/rickgao/mediasync-events/internal/hub"
	"github.com/rickgao/mediasync-events/internal/sysinfo"
	"github.com/rickgao/mediasync-events/internal/tasks"
	"github.com/rickgao/mediasync-events/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = defaults with mock task source)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting eventsd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	var cfg *config.EventsConfig
	if *configPath == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("configuration loaded",
		"listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"task_source", cfg.Tasks.Source,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Task source: the daemon's database, or the built-in mock
	var (
		source tasks.Source
		pool   *pgxpool.Pool
	)
	if cfg.Tasks.Source == config.SourcePostgres {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")
		source = tasks.NewPGSource(pool)
	} else {
		logger.Info("using mock task source")
		source = tasks.NewMockSource(time.Now().UnixNano())
	}

	// Event hub
	h := hub.New(hub.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendQueueSize:  cfg.Hub.SendQueueSize,
		WriteTimeout:   cfg.Hub.WriteTimeout,
		PongTimeout:    cfg.Hub.PongTimeout,
		MaxFrameSize:   cfg.Hub.MaxFrameSize,
	}, logger)

	// Feeds
	poller := tasks.New(tasks.Config{Interval: cfg.Tasks.PollInterval}, source, h.PublishTasks, logger)
	sampler := sysinfo.New(sysinfo.Config{
		Interval: cfg.SysInfo.Interval,
		DiskPath: cfg.SysInfo.DiskPath,
	}, logger)

	if err := poller.Start(ctx); err != nil {
		logger.Error("failed to start task poller", "error", err)
		os.Exit(1)
	}
	if err := sampler.Start(ctx, h.PublishSysInfo); err != nil {
		logger.Error("failed to start sysinfo sampler", "error", err)
		os.Exit(1)
	}

	// HTTP server: websocket endpoint + health
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", h.HandleWS)
	mux.Handle("/health", healthHandler(h, poller, pool))

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr, "ws_path", "/api/ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("eventsd running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Websocket connections are hijacked, so server.Shutdown does not wait
	// for them; the hub drops them first.
	h.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := sampler.Stop(shutdownCtx); err != nil {
		logger.Warn("sampler shutdown", "error", err)
	}
	if err := poller.Stop(shutdownCtx); err != nil {
		logger.Warn("poller shutdown", "error", err)
	}

	logger.Info("eventsd stopped")
}

// healthHandler reports component status as JSON.
func healthHandler(h *hub.Hub, poller *tasks.Poller, pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database (absent in mock mode)
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		} else {
			health.Components["database"] = "mock"
		}

		hubStats := h.Stats()
		health.Components["hub"] = map[string]interface{}{
			"clients":     hubStats.Clients,
			"subscribers": hubStats.Subscribers,
			"published":   hubStats.Published,
			"dropped":     hubStats.Dropped,
		}

		pollStats := poller.Stats()
		health.Components["task_poller"] = map[string]interface{}{
			"polls":     pollStats.Polls,
			"errors":    pollStats.Errors,
			"publishes": pollStats.Publishes,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
