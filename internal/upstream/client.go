// Package upstream fetches broadcaster pages from the streaming platform.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"livewatch/internal/apperr"
)

const (
	DefaultBaseURL        = "https://www.tiktok.com"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultTimeout        = 15 * time.Second

	maxPageBytes = 8 << 20
)

// Config controls how pages are requested.
type Config struct {
	BaseURL        string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// RatePerSec limits outgoing requests; zero disables limiting.
	RatePerSec float64
	Burst      int
}

// Client retrieves live and profile pages. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient returns a Client. Empty Config fields take package defaults.
// httpClient may be nil to use a client with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{cfg: cfg, http: httpClient, log: log}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return c
}

// LivePageURL returns the live page address for a normalized account.
func (c *Client) LivePageURL(account string) string {
	return c.cfg.BaseURL + "/@" + url.PathEscape(account) + "/live"
}

// ProfilePageURL returns the profile page address for a normalized account.
func (c *Client) ProfilePageURL(account string) string {
	return c.cfg.BaseURL + "/@" + url.PathEscape(account)
}

// LivePage fetches the account's live page markup.
func (c *Client) LivePage(ctx context.Context, account string) (string, error) {
	return c.fetch(ctx, c.LivePageURL(account))
}

// ProfilePage fetches the account's profile page markup.
func (c *Client) ProfilePage(ctx context.Context, account string) (string, error) {
	return c.fetch(ctx, c.ProfilePageURL(account))
}

// fetch performs a GET. Transport errors and non-2xx responses are reported
// as UpstreamUnavailable; the latter carry the response status.
func (c *Client) fetch(ctx context.Context, pageURL string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.Upstream(0, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", apperr.Upstream(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("page fetch failed", slog.String("url", pageURL), slog.String("error", err.Error()))
		return "", apperr.Upstream(0, err)
	}
	defer resp.Body.Close()

	c.log.Debug("page fetched",
		slog.String("url", pageURL),
		slog.Int("status", resp.StatusCode),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", apperr.Upstream(resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", apperr.Upstream(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}
