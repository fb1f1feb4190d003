// Package stream maintains the single self-healing connection to the crawler
// and surfaces its newline-framed events.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// State is the connection-state signal exposed to the core and the dashboard.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var (
	// ErrUpdateInProgress is returned when a subscription update is attempted
	// while another one has not completed.
	ErrUpdateInProgress = errors.New("subscription update already in progress")

	// ErrStopped is returned for operations on a stopped client.
	ErrStopped = errors.New("stream client stopped")

	// ErrAuthFailed marks a fatal handshake failure; the client stops
	// reconnecting until the subscription changes.
	ErrAuthFailed = errors.New("upstream authentication failed")
)

// quickDropWindow and quickDropLimit classify repeated immediate disconnects
// after a successful handshake as an auth failure.
const (
	quickDropWindow = time.Second
	quickDropLimit  = 3
)

// maxFrameSize bounds a single newline-framed message.
const maxFrameSize = 1 << 20

// ReconnectConfig controls the exponential backoff between connection
// attempts.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultReconnectConfig returns the standard reconnect policy.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  10,
	}
}

// Config holds the parameters needed to construct a Client.
type Config struct {
	BaseURL   string
	Token     string
	Channels  []string
	Users     []string
	Reconnect ReconnectConfig

	// HTTPClient overrides the default client; used by tests.
	HTTPClient *http.Client
}

// updateCmd carries a subscription swap into the run loop, which owns the
// connection. The committed selection changes only when the swap succeeds.
type updateCmd struct {
	channels []string
	users    []string
	result   chan error
}

// Client owns the upstream connection. Frames and state transitions are
// consumed from channels; Start spawns the run loop and Stop tears it down.
type Client struct {
	baseURL    string
	token      string
	reconnect  ReconnectConfig
	httpClient *http.Client

	mu       sync.Mutex
	channels []string
	users    []string
	updating bool
	state    State

	frames chan models.RawFrame
	states chan State
	fatals chan error
	swap   chan *updateCmd

	runCtx  context.Context
	cancel  context.CancelFunc
	runDone chan struct{}

	logger *slog.Logger
}

// NewClient creates a stream client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No overall timeout: the GET is a long-lived stream. Failures
		// surface through read errors and context cancellation.
		httpClient = &http.Client{}
	}
	reconnect := cfg.Reconnect
	if reconnect.InitialDelay <= 0 {
		reconnect = DefaultReconnectConfig()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		reconnect:  reconnect,
		httpClient: httpClient,
		channels:   append([]string(nil), cfg.Channels...),
		users:      append([]string(nil), cfg.Users...),
		state:      StateDisconnected,
		frames:     make(chan models.RawFrame, 256),
		states:     make(chan State, 8),
		fatals:     make(chan error, 1),
		swap:       make(chan *updateCmd),
		logger:     slog.Default().With("component", "stream-client"),
	}
}

// Frames returns the raw frame sequence.
func (c *Client) Frames() <-chan models.RawFrame { return c.frames }

// States returns connection-state transitions.
func (c *Client) States() <-chan State { return c.states }

// Fatal surfaces unrecoverable transport errors. The client does not exit on
// them; it parks disconnected until the subscription changes.
func (c *Client) Fatal() <-chan error { return c.fatals }

// CurrentState returns the current connection state.
func (c *Client) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the run loop. It is not safe to call twice.
func (c *Client) Start(ctx context.Context) {
	c.runCtx, c.cancel = context.WithCancel(ctx)
	c.runDone = make(chan struct{})
	go c.run(c.runCtx)
}

// Stop cancels the run loop and waits for it to release the connection.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.runDone
}

// UpdateSubscription renegotiates the stream for a new channel/user set. At
// most one update may be in flight; concurrent attempts fail fast with
// ErrUpdateInProgress. An empty channel set is valid and parks the client
// idle. The committed selection changes only when the new stream is
// established (or idle is reached); on failure the previous selection stays
// active.
func (c *Client) UpdateSubscription(channels, users []string) error {
	c.mu.Lock()
	if c.updating {
		c.mu.Unlock()
		return ErrUpdateInProgress
	}
	c.updating = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.updating = false
		c.mu.Unlock()
	}()

	if c.runCtx == nil {
		return ErrStopped
	}

	cmd := &updateCmd{
		channels: append([]string(nil), channels...),
		users:    append([]string(nil), users...),
		result:   make(chan error, 1),
	}
	select {
	case c.swap <- cmd:
	case <-c.runCtx.Done():
		return ErrStopped
	}
	select {
	case err := <-cmd.result:
		return err
	case <-c.runCtx.Done():
		return ErrStopped
	}
}

// snapshot returns the committed channel/user selection.
func (c *Client) snapshot() ([]string, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.channels...), append([]string(nil), c.users...)
}

// setState records and publishes a state transition. The states channel is
// best-effort: a slow consumer only misses intermediate transitions.
func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if !changed {
		return
	}
	select {
	case c.states <- s:
	default:
	}
}

func (c *Client) surfaceFatal(err error) {
	select {
	case c.fatals <- err:
	default:
	}
}

// run is the connection owner. It cycles connect → stream → backoff until
// the context is cancelled, parking disconnected when the channel set is
// empty or a fatal error is hit.
//
// UpdateSubscription serializes callers, so at most one unacknowledged
// updateCmd exists at any time: `pending` is that command. While pending is
// set, connections are attempted with its selection; the selection is
// committed and the command acknowledged only once the stream is
// established (or idle is reached).
func (c *Client) run(ctx context.Context) {
	defer close(c.runDone)
	defer c.setState(StateDisconnected)

	var pending *updateCmd
	quickDrops := 0
	attempts := 0
	bo := c.newBackOff()

	for {
		if ctx.Err() != nil {
			if pending != nil {
				pending.result <- ErrStopped
			}
			return
		}

		channels, users := c.snapshot()
		if pending != nil {
			channels, users = pending.channels, pending.users
		}

		if len(channels) == 0 {
			// Idle mode: intentionally no upstream connection.
			c.setState(StateDisconnected)
			if pending != nil {
				c.commit(pending.channels, pending.users)
				pending.result <- nil
				pending = nil
			}
			if !c.waitForSwap(ctx, &pending, bo, &attempts, &quickDrops) {
				return
			}
			continue
		}

		if attempts == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		connectedAt, err := c.streamOnce(ctx, channels, users, &pending)
		if ctx.Err() != nil {
			if pending != nil {
				pending.result <- ErrStopped
			}
			return
		}

		if err == nil {
			// The connection was handed over cleanly for a subscription swap.
			attempts = 0
			quickDrops = 0
			bo.Reset()
			continue
		}

		// A connection that lived past the quick-drop window resets the
		// failure accounting.
		if !connectedAt.IsZero() {
			if time.Since(connectedAt) < quickDropWindow {
				quickDrops++
			} else {
				quickDrops = 0
				attempts = 0
				bo.Reset()
			}
		}

		if errors.Is(err, ErrAuthFailed) || quickDrops >= quickDropLimit {
			fatal := err
			if !errors.Is(err, ErrAuthFailed) {
				fatal = fmt.Errorf("%w: %d immediate disconnects", ErrAuthFailed, quickDrops)
			}
			c.logger.Error("Upstream connection failed fatally", "error", fatal)
			if pending != nil {
				pending.result <- fatal
				pending = nil
			}
			c.surfaceFatal(fatal)
			c.setState(StateDisconnected)
			quickDrops = 0
			attempts = 0
			bo.Reset()
			if !c.waitForSwap(ctx, &pending, bo, &attempts, &quickDrops) {
				return
			}
			continue
		}

		if pending != nil {
			// The attempt with the new selection failed: report the failure
			// and fall back to the committed selection.
			pending.result <- fmt.Errorf("resubscribe failed: %w", err)
			pending = nil
			continue
		}

		attempts++
		if attempts >= c.reconnect.MaxAttempts {
			fatal := fmt.Errorf("giving up after %d reconnect attempts: %w", attempts, err)
			c.logger.Error("Upstream reconnect budget exhausted", "error", fatal)
			c.surfaceFatal(fatal)
			c.setState(StateDisconnected)
			attempts = 0
			bo.Reset()
			if !c.waitForSwap(ctx, &pending, bo, &attempts, &quickDrops) {
				return
			}
			continue
		}

		delay := bo.NextBackOff()
		c.logger.Warn("Upstream connection lost, reconnecting",
			"error", err, "attempt", attempts, "delay", delay)
		if !c.sleep(ctx, delay, &pending, bo, &attempts, &quickDrops) {
			return
		}
	}
}

// commit stores a selection as the active subscription.
func (c *Client) commit(channels, users []string) {
	c.mu.Lock()
	c.channels = append([]string(nil), channels...)
	c.users = append([]string(nil), users...)
	c.mu.Unlock()
}

// waitForSwap blocks until a subscription update or cancellation. Returns
// false when the context is done.
func (c *Client) waitForSwap(ctx context.Context, pending **updateCmd, bo *backoff.ExponentialBackOff, attempts, quickDrops *int) bool {
	select {
	case <-ctx.Done():
		return false
	case cmd := <-c.swap:
		*pending = cmd
		*attempts = 0
		*quickDrops = 0
		bo.Reset()
		return true
	}
}

// sleep waits out a backoff delay, but wakes immediately for a subscription
// update. Returns false when the context is done.
func (c *Client) sleep(ctx context.Context, d time.Duration, pending **updateCmd, bo *backoff.ExponentialBackOff, attempts, quickDrops *int) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case cmd := <-c.swap:
		*pending = cmd
		*attempts = 0
		*quickDrops = 0
		bo.Reset()
		return true
	}
}

// streamOnce opens one connection and reads frames until it drops, the
// context ends, or a subscription swap cancels it. The returned time is when
// the handshake succeeded (zero if it never did). A nil error means the
// connection was cancelled for a swap.
//
// When the handshake succeeds while *pending holds an unacknowledged update,
// the update's selection is committed and the command acknowledged. A swap
// arriving mid-stream is stored in *pending and tears the connection down;
// the run loop reconnects with the new selection.
func (c *Client) streamOnce(ctx context.Context, channels, users []string, pending **updateCmd) (time.Time, error) {
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	swapped := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case cmd := <-c.swap:
			c.mu.Lock()
			*pending = cmd
			c.mu.Unlock()
			close(swapped)
			connCancel()
		case <-connCtx.Done():
		}
	}()
	defer func() { connCancel(); <-watchDone }()

	streamURL := BuildStreamURL(c.baseURL, EffectiveChannel(channels), c.token, users)
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isSwapped(swapped) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return time.Time{}, fmt.Errorf("%w: handshake status %d", ErrAuthFailed, resp.StatusCode)
	}

	connectedAt := time.Now()
	c.setState(StateConnected)
	c.logger.Info("Upstream connected",
		"channel", EffectiveChannel(channels), "users", len(users))

	// A pending update is committed and acknowledged once its stream is
	// actually established. The watcher cannot replace *pending before the
	// acknowledgement: UpdateSubscription admits one update at a time.
	c.mu.Lock()
	if cmd := *pending; cmd != nil {
		c.channels = append([]string(nil), channels...)
		c.users = append([]string(nil), users...)
		*pending = nil
		c.mu.Unlock()
		cmd.result <- nil
	} else {
		c.mu.Unlock()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame models.RawFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			// Malformed frames are logged and skipped; they never break
			// the stream.
			c.logger.Warn("Skipping malformed frame", "error", err)
			continue
		}
		select {
		case c.frames <- frame:
		case <-connCtx.Done():
			if isSwapped(swapped) {
				return connectedAt, nil
			}
			return connectedAt, connCtx.Err()
		}
	}

	if isSwapped(swapped) {
		return connectedAt, nil
	}
	if err := scanner.Err(); err != nil {
		return connectedAt, fmt.Errorf("stream read: %w", err)
	}
	return connectedAt, errors.New("stream closed by server")
}

func isSwapped(swapped chan struct{}) bool {
	select {
	case <-swapped:
		return true
	default:
		return false
	}
}

// newBackOff builds the exponential backoff from the reconnect policy:
// min(maxDelay, initial × multiplier^attempt) with ±20% jitter.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnect.InitialDelay
	bo.MaxInterval = c.reconnect.MaxDelay
	bo.Multiplier = c.reconnect.Multiplier
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
