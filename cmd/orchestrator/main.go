package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/majordomo-home/majordomo/internal/api"
	"github.com/majordomo-home/majordomo/internal/bus"
	"github.com/majordomo-home/majordomo/internal/config"
	"github.com/majordomo-home/majordomo/internal/dispatch"
	"github.com/majordomo-home/majordomo/internal/handlers"
	"github.com/majordomo-home/majordomo/internal/ingest"
	"github.com/majordomo-home/majordomo/internal/memory"
	"github.com/majordomo-home/majordomo/internal/queue"
	"github.com/majordomo-home/majordomo/internal/registry"
)

func main() {
	cfgPath := flag.String("config", "configs/orchestrator.yaml", "Path to service YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg, true); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Module catalog ────────────────────────────────────────────────────────
	reg, err := registry.Load(cfg.Registry.CatalogPath)
	if err != nil {
		slog.Error("failed to load module catalog", "err", err)
		os.Exit(1)
	}
	stopWatch, err := reg.Watch()
	if err != nil {
		slog.Warn("catalog watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}
	slog.Info("module catalog loaded", "modules", reg.Modules())

	// ── Bus ───────────────────────────────────────────────────────────────────
	conn, err := bus.Connect(cfg.Bus.URL)
	if err != nil {
		slog.Error("failed to connect to bus", "url", cfg.Bus.URL, "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	slog.Info("connected to bus", "url", cfg.Bus.URL)

	// ── Dispatcher, memory, queue, handlers ───────────────────────────────────
	dispatcher, err := dispatch.New(conn, reg,
		time.Duration(cfg.Dispatch.DefaultTimeoutMs)*time.Millisecond,
		logger.With("component", "dispatch"))
	if err != nil {
		slog.Error("failed to start dispatcher", "err", err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	mem := memory.New(cfg.Memory.MaxEvents, time.Duration(cfg.Memory.RetentionHours)*time.Hour)
	slog.Info("event memory initialized",
		"max_events", cfg.Memory.MaxEvents,
		"retention_hours", cfg.Memory.RetentionHours)

	q := queue.New(cfg.Queue.Capacity,
		time.Duration(cfg.Queue.IdleWaitMs)*time.Millisecond,
		logger.With("component", "queue"))
	handlers.New(dispatcher, mem, logger.With("component", "handlers")).Register(q)

	sub, err := ingest.Attach(conn, q, logger.With("component", "ingest"))
	if err != nil {
		slog.Error("failed to subscribe to module events", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := q.Run(ctx); err != nil {
			slog.Error("event queue exited", "err", err)
		}
	}()

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(mem, q, dispatcher),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	q.Stop()
	cancel()
	slog.Info("goodbye")
}
