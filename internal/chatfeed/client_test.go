package chatfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"livewatch/internal/monitor"
)

type memorySink struct {
	mu      sync.Mutex
	entries map[string][]monitor.LogEntry
}

func (s *memorySink) AppendLog(account string, e monitor.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string][]monitor.LogEntry)
	}
	s.entries[account] = append(s.entries[account], e)
	return nil
}

func (s *memorySink) Len(account string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[account])
}

func (s *memorySink) Entries(account string) []monitor.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]monitor.LogEntry(nil), s.entries[account]...)
}

// relay sends msgs on every connection, then either holds the connection
// open until the peer goes away or drops it.
func relay(t *testing.T, msgs []string, hold bool, conns *atomic.Int32, accounts chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		select {
		case accounts <- r.URL.Query().Get("account"):
		default:
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if !hold {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_Run_streams_into_sink(t *testing.T) {
	defer goleak.VerifyNone(t)

	var conns atomic.Int32
	accounts := make(chan string, 1)
	srv := relay(t, []string{
		`{"user":"v1","comment":"hello","timestamp":"2024-05-01T12:00:00Z"}`,
		`not json`,
		`{"user":"v2","comment":"hi"}`,
	}, true, &conns, accounts)
	defer srv.Close()

	sink := &memorySink{}
	c := New(Config{URL: wsURL(srv)}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx, "@Alice") }()

	require.Eventually(t, func() bool { return sink.Len("alice") == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "alice", <-accounts)

	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	got := sink.Entries("alice")
	assert.Equal(t, "hello", got[0].Comment)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), got[0].Timestamp.UTC())
	assert.Equal(t, "v2", got[1].User)
	assert.False(t, got[1].Timestamp.IsZero())
}

func TestClient_Run_reconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	var conns atomic.Int32
	srv := relay(t, []string{`{"user":"v","comment":"c"}`}, false, &conns, nil)
	defer srv.Close()

	sink := &memorySink{}
	c := New(Config{URL: wsURL(srv), MinBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx, "alice") }()

	require.Eventually(t, func() bool { return conns.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-errc

	assert.GreaterOrEqual(t, sink.Len("alice"), 3)
}

func TestClient_Run_invalid_account(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1"}, &memorySink{}, nil)

	err := c.Run(context.Background(), "@")

	assert.Error(t, err)
}

func TestClient_StreamURL(t *testing.T) {
	c := New(Config{URL: "ws://relay.test/chat?token=x"}, &memorySink{}, nil)

	got, err := c.StreamURL("alice")

	require.NoError(t, err)
	assert.Equal(t, "ws://relay.test/chat?account=alice&token=x", got)
}
