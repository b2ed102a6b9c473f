package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livewatch/internal/app"
	"livewatch/internal/platform/config"
	"livewatch/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	settings := config.FromEnv()

	log := logger.New(settings.LogLevel, settings.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, settings, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", ":"+settings.Port)
	if err != nil {
		a.Close()
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	a.StartChatFeeds(ctx)

	log.Info("server starting",
		"port", settings.Port,
		"status_cache", settings.StatusCacheBackend,
		"status_cache_ttl", settings.StatusCacheTTL.String(),
		"event_log_cap", settings.EventLogCap,
		"log_level", settings.LogLevel,
	)

	if err := a.Serve(ctx, ln, shutdownTimeout); err != nil {
		log.Error("shutdown error", "error", err)
		stop()
		os.Exit(1)
	}

	log.Info("server stopped")
}
