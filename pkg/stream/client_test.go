package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastReconnect keeps test backoffs in the millisecond range.
func fastReconnect() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  5,
	}
}

func frameLine(id string) string {
	return fmt.Sprintf(`{"event_type":"post_created","data":{"user":{"username":"alice"},"tweet":{"id":"%s","bodyText":"hi","author":{"handle":"alice"}}}}`, id)
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, frameLine(fmt.Sprintf("tweet-%d", n)))
		flusher.Flush()
		if n == 1 {
			return // drop after the first frame
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Token:     "secret-token-1",
		Channels:  []string{"tweets"},
		Reconnect: fastReconnect(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case frame := <-client.Frames():
			got = append(got, frame.EventType)
		case <-timeout:
			t.Fatalf("expected 2 frames across reconnect, got %d", len(got))
		}
	}
	assert.GreaterOrEqual(t, requests.Load(), int64(2), "client reconnected after the drop")
}

func TestClientSkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, "this is not json")
		fmt.Fprintln(w, frameLine("tweet-ok"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Token:     "secret-token-1",
		Channels:  []string{"tweets"},
		Reconnect: fastReconnect(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	select {
	case frame := <-client.Frames():
		assert.Equal(t, "post_created", frame.EventType)
	case <-time.After(5 * time.Second):
		t.Fatal("valid frame after malformed line never arrived")
	}
}

func TestClientAuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Token:     "wrong-token-x",
		Channels:  []string{"tweets"},
		Reconnect: fastReconnect(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	select {
	case err := <-client.Fatal():
		assert.ErrorIs(t, err, ErrAuthFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("auth failure never surfaced as fatal")
	}
	assert.Eventually(t, func() bool {
		return client.CurrentState() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond, "client parks disconnected after a fatal error")
}

func TestClientStartsIdleWithoutChannels(t *testing.T) {
	client := NewClient(Config{
		BaseURL:   "http://unused.invalid",
		Token:     "secret-token-1",
		Reconnect: fastReconnect(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, client.CurrentState())
}

func TestUpdateSubscriptionConnectsFromIdle(t *testing.T) {
	connected := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/tweets", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("users"))
		w.(http.Flusher).Flush()
		select {
		case connected <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Token:     "secret-token-1",
		Reconnect: fastReconnect(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	require.NoError(t, client.UpdateSubscription([]string{"tweets"}, []string{"alice"}))
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("update never established the stream")
	}
	assert.Equal(t, StateConnected, client.CurrentState())
}

func TestUpdateSubscriptionToEmptyEntersIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Token:     "secret-token-1",
		Channels:  []string{"tweets"},
		Reconnect: fastReconnect(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	require.Eventually(t, func() bool {
		return client.CurrentState() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, client.UpdateSubscription(nil, nil))
	assert.Eventually(t, func() bool {
		return client.CurrentState() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}
