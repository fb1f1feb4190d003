package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// ErrRateLimited marks a message dropped by a sink's rate limiter.
var ErrRateLimited = errors.New("rate limited")

// sendTimeout is the hard deadline for a sink's HTTP call.
const sendTimeout = 10 * time.Second

// Default per-sink rate limit.
const (
	DefaultRateMax    = 10
	DefaultRateWindow = time.Minute
)

// Notifier is the common alert sink contract.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg AlertMessage) error
}

// Dispatcher fans one alert out to every configured sink, enforcing each
// sink's rate limit. Delivery is fail-open: a failing or limited sink is
// logged and never blocks the pipeline or its siblings.
type Dispatcher struct {
	sinks  []*gatedSink
	logger *slog.Logger
}

type gatedSink struct {
	notifier Notifier
	limiter  *RateLimiter
	dropped  bool // a drop was already logged in the current window
}

// NewDispatcher creates a dispatcher. Each sink gets its own limiter with
// the given policy.
func NewDispatcher(rateMax int, rateWindow time.Duration, notifiers ...Notifier) *Dispatcher {
	if rateMax <= 0 {
		rateMax = DefaultRateMax
	}
	if rateWindow <= 0 {
		rateWindow = DefaultRateWindow
	}
	d := &Dispatcher{logger: slog.Default().With("component", "alert-dispatcher")}
	for _, n := range notifiers {
		d.sinks = append(d.sinks, &gatedSink{
			notifier: n,
			limiter:  NewRateLimiter(rateMax, rateWindow),
		})
	}
	return d
}

// HandleEvent is the bus handler for the "alerts" topic.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt *models.Event) error {
	msg := BuildAlertMessage(evt)
	for _, gs := range d.sinks {
		if !gs.notifier.Enabled() {
			continue
		}
		// A slot is consumed before sending so failed calls still count
		// toward the window.
		if !gs.limiter.TryAcquire() {
			if !gs.dropped {
				d.logger.Warn("Alert rate limit hit, dropping",
					"sink", gs.notifier.Name(), "username", msg.Username)
				gs.dropped = true
			}
			continue
		}
		gs.dropped = false

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := gs.notifier.Send(sendCtx, msg)
		cancel()
		if err != nil {
			d.logger.Error("Alert delivery failed",
				"sink", gs.notifier.Name(), "username", msg.Username, "error", err)
		}
	}
	return nil
}

// postJSON sends a JSON document and treats any non-2xx response as an
// error. The caller logs and continues; sinks never retry.
func postJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return nil
}
