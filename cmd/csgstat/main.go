package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/csgstat/csgstat/pkg/csg"
	"github.com/csgstat/csgstat/pkg/log"
	"github.com/csgstat/csgstat/pkg/refresh"
	"github.com/csgstat/csgstat/pkg/sensor"
	"github.com/csgstat/csgstat/pkg/server"
	"github.com/csgstat/csgstat/pkg/storage"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// init packages
	db := storage.Configured()

	promReg := prometheus.NewRegistry()
	metrics := refresh.NewMetrics(promReg)

	sensors := sensor.NewRegistry()
	svc := refresh.NewService(db, func(timeout time.Duration) refresh.API {
		return csg.NewClient(timeout)
	}, metrics)
	svc.OnSnapshot = sensors.Apply

	// init server
	srv := server.Configured(db, svc, sensors, promReg)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// run the refresh loops alongside the status server; a refresh startup
	// failure takes the whole process down
	go func() {
		if err := svc.Run(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "refresh service failed", "error", err)
			cancel()
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
