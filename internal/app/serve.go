package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Serve runs the HTTP surface on ln until ctx is done, then drains
// connections for at most shutdownTimeout. Request contexts derive from ctx,
// so in-flight status fetches and sync captures are cancelled on shutdown.
// The App is closed before Serve returns, whatever the outcome.
func (a *App) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	return serve(ctx, ln, a.Router(), shutdownTimeout, a.Close, a.log)
}

func serve(ctx context.Context, ln net.Listener, h http.Handler, shutdownTimeout time.Duration, cleanup func(), log *slog.Logger) error {
	defer cleanup()

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, draining connections")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
