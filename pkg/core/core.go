// Package core wires the ingest pipeline: upstream frames are normalized,
// filtered, deduplicated and fanned out to the topic bus.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/bus"
	"github.com/muhammetakkurtt/alpha-stream/pkg/dedup"
	"github.com/muhammetakkurtt/alpha-stream/pkg/filter"
	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
	"github.com/muhammetakkurtt/alpha-stream/pkg/normalize"
	"github.com/muhammetakkurtt/alpha-stream/pkg/stream"
)

// Upstream is the slice of stream.Client the core depends on.
type Upstream interface {
	Frames() <-chan models.RawFrame
	States() <-chan stream.State
	Fatal() <-chan error
	CurrentState() stream.State
	Stop()
}

// Options configures a Core.
type Options struct {
	Upstream   Upstream
	Normalizer *normalize.Normalizer
	Filters    *filter.Pipeline
	Dedup      *dedup.Cache
	Bus        *bus.Bus
	Stats      *Stats
	Subs       *SubscriptionManager

	DedupTTL time.Duration
	Topics   []string

	// OnDedup is an optional hook invoked when a duplicate is suppressed,
	// used by the CLI sink to keep its own accounting.
	OnDedup func()

	// OnStateChange is an optional hook for connection-state transitions,
	// used by the broadcast server to push status frames.
	OnStateChange func(state stream.State)

	// DrainTimeout bounds topic draining at shutdown.
	DrainTimeout time.Duration
}

// Core is the single pipeline routine consuming raw frames in order.
type Core struct {
	upstream Upstream
	norm     *normalize.Normalizer
	filters  *filter.Pipeline
	dedup    *dedup.Cache
	bus      *bus.Bus
	stats    *Stats
	subs     *SubscriptionManager

	dedupTTL      time.Duration
	topics        []string
	onDedup       func()
	onStateChange func(stream.State)
	drainTimeout  time.Duration

	logger *slog.Logger
}

// New creates the pipeline core.
func New(opts Options) *Core {
	topics := opts.Topics
	if len(topics) == 0 {
		topics = []string{bus.TopicCLI, bus.TopicAlerts, bus.TopicDashboard}
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = 2 * time.Second
	}
	return &Core{
		upstream:      opts.Upstream,
		norm:          opts.Normalizer,
		filters:       opts.Filters,
		dedup:         opts.Dedup,
		bus:           opts.Bus,
		stats:         opts.Stats,
		subs:          opts.Subs,
		dedupTTL:      opts.DedupTTL,
		topics:        topics,
		onDedup:       opts.OnDedup,
		onStateChange: opts.OnStateChange,
		drainTimeout:  drain,
		logger:        slog.Default().With("component", "stream-core"),
	}
}

// Subscriptions returns the subscription manager.
func (c *Core) Subscriptions() *SubscriptionManager { return c.subs }

// Statistics returns the statistics counters.
func (c *Core) Statistics() *Stats { return c.stats }

// ConnectionState returns the upstream connection state.
func (c *Core) ConnectionState() stream.State { return c.upstream.CurrentState() }

// Run consumes the upstream until ctx is cancelled, then stops the client and
// drains the topics for a bounded time. Fatal upstream errors downgrade the
// core to a disconnected state; the sinks keep running.
func (c *Core) Run(ctx context.Context) error {
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-c.upstream.Frames():
			if !ok {
				return nil
			}
			c.process(frame)

		case state := <-c.upstream.States():
			c.logger.Info("Upstream connection state changed", "state", state)
			if c.onStateChange != nil {
				c.onStateChange(state)
			}

		case err := <-c.upstream.Fatal():
			c.logger.Error("Upstream failed fatally, sinks keep running", "error", err)
			if c.onStateChange != nil {
				c.onStateChange(stream.StateDisconnected)
			}
		}
	}
}

// process runs one raw frame through normalize → filter → dedup → publish.
// All failures are absorbed: logged, counted, and the routine moves on.
func (c *Core) process(frame models.RawFrame) {
	c.stats.MarkTotal()

	evt, err := c.norm.Normalize(frame)
	if err != nil {
		c.stats.MarkFiltered()
		c.logger.Debug("Frame rejected", "event_type", frame.EventType, "reason", err)
		return
	}

	if !c.filters.Allow(evt) {
		c.stats.MarkFiltered()
		return
	}

	fp := dedup.Fingerprint(evt)
	if c.dedup.CheckAndRemember(fp, c.dedupTTL) {
		c.stats.MarkDeduped()
		if c.onDedup != nil {
			c.onDedup()
		}
		return
	}

	for _, topic := range c.topics {
		c.bus.Publish(topic, evt)
	}
	c.stats.MarkDelivered()
}

func (c *Core) shutdown() {
	c.upstream.Stop()
	c.bus.Close(c.drainTimeout)
}
