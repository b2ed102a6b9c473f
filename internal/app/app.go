// Package app assembles the monitor service from Settings. The HTTP server
// and the CLI's in-process mode share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"livewatch/internal/capture"
	"livewatch/internal/chatfeed"
	"livewatch/internal/monitor"
	"livewatch/internal/platform/config"
	"livewatch/internal/platform/logger"
	"livewatch/internal/platform/metrics"
	"livewatch/internal/upstream"
)

// App holds the wired components.
type App struct {
	Service *monitor.Service
	Metrics *metrics.Metrics

	settings config.Settings
	log      *slog.Logger
	redis    *redis.Client
	feeds    sync.WaitGroup
	stop     context.CancelFunc
}

// New wires the service graph. It fails only when the Redis cache backend
// is selected and unreachable.
func New(ctx context.Context, s config.Settings, log *slog.Logger) (*App, error) {
	a := &App{settings: s, log: log, Metrics: metrics.New()}

	client := upstream.NewClient(upstream.Config{
		BaseURL:        s.UpstreamBaseURL,
		UserAgent:      s.UpstreamUserAgent,
		AcceptLanguage: s.UpstreamAcceptLanguage,
		Timeout:        s.UpstreamTimeout,
		RatePerSec:     s.UpstreamRatePerSec,
		Burst:          s.UpstreamBurst,
	}, nil, log)

	cache, err := a.statusCache(ctx)
	if err != nil {
		return nil, err
	}

	pipeline := capture.NewPipeline(capture.Config{
		VideoDir:     s.VideoDir,
		AudioDir:     s.AudioDir,
		VideoExt:     s.VideoExt,
		AudioExt:     s.AudioExt,
		StageTimeout: s.CaptureStageTimeout,
	}, client, capture.NewFFmpegRunner(s.FFmpegPath), log)

	a.Service = monitor.NewService(client, cache, monitor.NewEventLog(s.EventLogCap),
		pipeline, capture.NewRegistry(s.CaptureRegistrySize), a.Metrics, log)
	return a, nil
}

func (a *App) statusCache(ctx context.Context) (monitor.StatusCache, error) {
	switch a.settings.StatusCacheBackend {
	case "", "memory":
		return monitor.NewMemoryStatusCache(a.settings.StatusCacheTTL, a.settings.StatusCacheSize, nil), nil
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.settings.RedisAddr,
			Password: a.settings.RedisPassword,
			DB:       a.settings.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("connect redis %s: %w", a.settings.RedisAddr, err)
		}
		return monitor.NewRedisStatusCache(a.redis, a.settings.StatusCacheTTL, a.log), nil
	default:
		return nil, fmt.Errorf("unknown status cache backend %q", a.settings.StatusCacheBackend)
	}
}

// Router returns the HTTP surface with request logging and metrics.
func (a *App) Router() http.Handler {
	h := monitor.NewHandler(a.Service, a.log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(a.log))
	r.Use(metrics.RequestMiddleware(a.Metrics))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		a.Metrics.Handler(func() {
			a.Metrics.SetActiveCaptures(a.Service.ActiveCaptures())
			a.Metrics.SetLogAccounts(a.Service.LogAccounts())
		}).ServeHTTP(w, r)
	})
	h.Routes(r)
	return r
}

// StartChatFeeds follows the configured accounts on the chat relay. It is a
// no-op without a relay URL.
func (a *App) StartChatFeeds(ctx context.Context) {
	if a.settings.ChatRelayURL == "" || len(a.settings.ChatAccounts) == 0 {
		return
	}
	ctx, a.stop = context.WithCancel(ctx)
	feed := chatfeed.New(chatfeed.Config{URL: a.settings.ChatRelayURL}, a.Service, a.log)
	for _, account := range a.settings.ChatAccounts {
		a.feeds.Add(1)
		go func(account string) {
			defer a.feeds.Done()
			if err := feed.Run(ctx, account); err != nil && ctx.Err() == nil {
				a.log.Error("chat feed stopped", slog.String("account", account), slog.String("error", err.Error()))
			}
		}(account)
	}
	a.log.Info("chat feeds started", slog.Int("accounts", len(a.settings.ChatAccounts)))
}

// Close stops chat feeds and background captures and releases the cache.
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
	a.feeds.Wait()
	a.Service.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", slog.String("error", err.Error()))
		}
	}
}
