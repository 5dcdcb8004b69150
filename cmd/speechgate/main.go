package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/majordomo-home/majordomo/internal/bus"
	"github.com/majordomo-home/majordomo/internal/config"
	"github.com/majordomo-home/majordomo/internal/gate"
)

func main() {
	cfgPath := flag.String("config", "configs/speechgate.yaml", "Path to service YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg, false); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	conn, err := bus.Connect(cfg.Bus.URL)
	if err != nil {
		slog.Error("failed to connect to bus", "url", cfg.Bus.URL, "err", err)
		os.Exit(1)
	}
	defer conn.Close()
	slog.Info("connected to bus", "url", cfg.Bus.URL)

	g := gate.New(
		gate.BusPublisher(conn, cfg.Gate.Subjects),
		logger.With("component", "gate"),
	)
	stop, err := gate.AttachBus(conn, g, cfg.Gate.Subjects, logger.With("component", "gate"))
	if err != nil {
		slog.Error("failed to attach gate to bus", "err", err)
		os.Exit(1)
	}
	defer stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")
}
