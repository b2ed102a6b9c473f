package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"livewatch/internal/app"
	"livewatch/internal/platform/config"
	"livewatch/internal/platform/logger"
)

// backend runs operations either against a server or in-process. Results are
// returned even alongside an error so failed captures can still be printed.
type backend interface {
	Status(ctx context.Context, account string, refresh bool) (any, error)
	Capture(ctx context.Context, account string, async bool) (any, error)
	Logs(ctx context.Context, account string, limit int) (any, error)
	Close()
}

func openBackend(ctx context.Context, opts *options, logOut io.Writer) (backend, error) {
	if !opts.local {
		return &remoteBackend{base: strings.TrimRight(opts.server, "/"), http: http.DefaultClient}, nil
	}
	settings := config.FromEnv()
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	a, err := app.New(ctx, settings, logger.NewTo(logOut, level, "text"))
	if err != nil {
		return nil, err
	}
	return &localBackend{app: a}, nil
}

type remoteBackend struct {
	base string
	http *http.Client
}

func (b *remoteBackend) Status(ctx context.Context, account string, refresh bool) (any, error) {
	q := url.Values{}
	if refresh {
		q.Set("refresh", "true")
	}
	return b.do(ctx, http.MethodGet, "/status/"+url.PathEscape(account), q)
}

func (b *remoteBackend) Capture(ctx context.Context, account string, async bool) (any, error) {
	q := url.Values{}
	if async {
		q.Set("async", "true")
	}
	return b.do(ctx, http.MethodPost, "/capture/"+url.PathEscape(account), q)
}

func (b *remoteBackend) Logs(ctx context.Context, account string, limit int) (any, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	return b.do(ctx, http.MethodGet, "/logs/"+url.PathEscape(account), q)
}

func (b *remoteBackend) Close() {}

func (b *remoteBackend) do(ctx context.Context, method, path string, q url.Values) (any, error) {
	u := b.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out json.RawMessage
	if len(body) > 0 && json.Valid(body) {
		out = body
	}
	if resp.StatusCode >= 300 {
		return out, fmt.Errorf("server returned %s", resp.Status)
	}
	return out, nil
}

type localBackend struct {
	app *app.App
}

var errNeedsServer = errors.New("needs a running server; drop --local")

func (b *localBackend) Status(ctx context.Context, account string, refresh bool) (any, error) {
	res, err := b.app.Service.Status(ctx, account, refresh)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *localBackend) Capture(ctx context.Context, account string, async bool) (any, error) {
	if async {
		return nil, fmt.Errorf("--async %w", errNeedsServer)
	}
	job := b.app.Service.Capture(ctx, account)
	return job, job.Err()
}

func (b *localBackend) Logs(ctx context.Context, account string, limit int) (any, error) {
	return nil, fmt.Errorf("logs %w", errNeedsServer)
}

func (b *localBackend) Close() {
	b.app.Close()
}
