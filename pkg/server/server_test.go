package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammetakkurtt/alpha-stream/pkg/bus"
	"github.com/muhammetakkurtt/alpha-stream/pkg/core"
	"github.com/muhammetakkurtt/alpha-stream/pkg/dedup"
	"github.com/muhammetakkurtt/alpha-stream/pkg/filter"
	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
	"github.com/muhammetakkurtt/alpha-stream/pkg/normalize"
	"github.com/muhammetakkurtt/alpha-stream/pkg/stream"
)

type stubUpstream struct{}

func (stubUpstream) Frames() <-chan models.RawFrame { return nil }
func (stubUpstream) States() <-chan stream.State    { return nil }
func (stubUpstream) Fatal() <-chan error            { return nil }
func (stubUpstream) CurrentState() stream.State     { return stream.StateConnected }
func (stubUpstream) Stop()                          {}

type stubUpdater struct{}

func (stubUpdater) UpdateSubscription(_, _ []string) error { return nil }

func testCore(t *testing.T) *core.Core {
	t.Helper()
	return core.New(core.Options{
		Upstream:   stubUpstream{},
		Normalizer: normalize.New(),
		Filters:    filter.NewPipeline(),
		Dedup:      dedup.NewCache(time.Minute),
		Bus:        bus.New(),
		Stats:      core.NewStats(nil),
		Subs:       core.NewSubscriptionManager(stubUpdater{}, []string{"tweets"}, []string{"alice"}),
		DedupTTL:   time.Minute,
	})
}

func postEvent(username, tweetID, text string) *models.Event {
	return &models.Event{
		Kind:      models.KindPostCreated,
		Timestamp: "2024-03-01T12:00:00Z",
		PrimaryID: tweetID,
		User:      models.EventUser{Username: username},
		Payload: models.Payload{
			Post: &models.PostPayload{Tweet: models.Tweet{
				ID:       tweetID,
				BodyText: text,
				Author:   models.Author{Handle: username},
			}},
		},
	}
}

// startServer runs the broadcast server on a random port and returns its
// base URL.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.StartWithListener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func TestRecentBufferBounds(t *testing.T) {
	b := NewRecentBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append(postEvent("alice", fmt.Sprintf("t%d", i), "x"))
	}
	require.Equal(t, 3, b.Len())

	newest := b.NewestFirst()
	assert.Equal(t, "t4", newest[0].PrimaryID)
	assert.Equal(t, "t2", newest[2].PrimaryID)
}

func TestStatusEndpoint(t *testing.T) {
	s := NewServer(Config{RecentSize: 10}, testCore(t))
	base := startServer(t, s)

	resp, err := http.Get(base + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "connected", status.Connection)
	assert.Equal(t, int64(0), status.Events.Total)
}

func TestStateEndpoint(t *testing.T) {
	s := NewServer(Config{
		RecentSize: 10,
		Filters:    FiltersDocument{Users: []string{"alice"}, Keywords: []string{"bitcoin"}},
	}, testCore(t))
	require.NoError(t, s.HandleEvent(context.Background(), postEvent("alice", "t1", "hi")))
	base := startServer(t, s)

	resp, err := http.Get(base + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var state StateDocument
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Len(t, state.Events, 1)
	assert.Equal(t, "t1", state.Events[0].PrimaryID)
	assert.Equal(t, []string{"alice"}, state.Users)
	assert.Equal(t, "connected", state.Connection)
	assert.Equal(t, []string{"bitcoin"}, state.Filters.Keywords)
}

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"),
		[]byte("<html>dashboard</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"),
		[]byte("console.log('app')"), 0o644))

	s := NewServer(Config{RecentSize: 10, DashboardDir: dir}, testCore(t))
	base := startServer(t, s)

	for _, path := range []string{"/", "/settings", "/some/deep/route"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		body := make([]byte, 64)
		n, _ := resp.Body.Read(body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body[:n]), "dashboard", "unknown GET %s serves the index document", path)
	}

	// Real bundle files are served as-is.
	resp, err := http.Get(base + "/app.js")
	require.NoError(t, err)
	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	resp.Body.Close()
	assert.Contains(t, string(body[:n]), "console.log")
}

func TestWebsocketStateAndEvents(t *testing.T) {
	s := NewServer(Config{RecentSize: 10}, testCore(t))
	require.NoError(t, s.HandleEvent(context.Background(), postEvent("alice", "seed", "old news")))
	base := startServer(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+base[len("http"):]+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame is the full state.
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var state struct {
		Type string        `json:"type"`
		Data StateDocument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, "state", state.Type)
	require.Len(t, state.Data.Events, 1)
	assert.Equal(t, "seed", state.Data.Events[0].PrimaryID)

	// A published event arrives as an event frame.
	require.Eventually(t, func() bool { return s.Hub().ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.HandleEvent(context.Background(), postEvent("alice", "live", "fresh")))

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	var eventFrame struct {
		Type string       `json:"type"`
		Data models.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &eventFrame))
	assert.Equal(t, "event", eventFrame.Type)
	assert.Equal(t, "live", eventFrame.Data.PrimaryID)

	// Connection-state changes arrive as status frames.
	s.SetConnectionState("reconnecting")
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	var statusFrame struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &statusFrame))
	assert.Equal(t, "status", statusFrame.Type)
	assert.Equal(t, "reconnecting", statusFrame.Data["connection"])
}
