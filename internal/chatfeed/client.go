// Package chatfeed streams chat events for an account from a websocket relay
// into the event log.
package chatfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"livewatch/internal/livestate"
	"livewatch/internal/monitor"
)

const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = time.Minute
)

// Sink receives decoded chat events.
type Sink interface {
	AppendLog(account string, e monitor.LogEntry) error
}

// Config configures a relay Client.
type Config struct {
	// URL is the relay endpoint; the account is passed as the "account" query parameter.
	URL        string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

// Client follows one relay connection per account and reconnects with
// exponential backoff until its context is cancelled.
type Client struct {
	cfg  Config
	sink Sink
	log  *slog.Logger
	now  func() time.Time
}

type message struct {
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// New returns a Client writing into sink.
func New(cfg Config, sink Sink, log *slog.Logger) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, sink: sink, log: log, now: time.Now}
}

// StreamURL returns the relay URL for account.
func (c *Client) StreamURL(account string) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("account", account)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run follows account's chat until ctx is done. It returns ctx.Err() on
// cancellation, or an error if the relay URL is unusable.
func (c *Client) Run(ctx context.Context, account string) error {
	account, ok := livestate.ParseHandle(account)
	if !ok {
		return errors.New("chatfeed: account must be a handle of [a-z0-9._]")
	}
	target, err := c.StreamURL(account)
	if err != nil {
		return err
	}
	log := c.log.With(slog.String("account", account))

	backoff := c.cfg.MinBackoff
	for {
		received, err := c.consume(ctx, target, account)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received > 0 {
			backoff = c.cfg.MinBackoff
		}
		log.Warn("chat relay disconnected",
			slog.String("error", errString(err)),
			slog.Int("received", received),
			slog.Duration("retry_in", backoff))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// consume reads one connection until it fails and returns how many events
// were stored.
func (c *Client) consume(ctx context.Context, target, account string) (int, error) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return 0, fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()
	c.log.Info("chat relay connected", slog.String("account", account))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	n := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return n, err
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Debug("skipping malformed chat event", slog.String("account", account), slog.String("error", err.Error()))
			continue
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = c.now().UTC()
		}
		if err := c.sink.AppendLog(account, monitor.LogEntry{Timestamp: m.Timestamp, User: m.User, Comment: m.Comment}); err != nil {
			return n, err
		}
		n++
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
