package sinks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// cliTextLimit caps the text portion of a printed line.
const cliTextLimit = 100

// CLISink pretty-prints delivered events to the terminal and emits a
// periodic statistics block.
type CLISink struct {
	out      io.Writer
	interval time.Duration

	delivered atomic.Int64
	deduped   atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	mu          sync.Mutex
	lastEmit    time.Time
	lastCounted int64
}

// NewCLISink creates the terminal sink writing to out, emitting stats every
// interval (default 60s).
func NewCLISink(out io.Writer, interval time.Duration) *CLISink {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CLISink{
		out:      out,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic stats emitter.
func (s *CLISink) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.mu.Lock()
		s.lastEmit = time.Now()
		s.mu.Unlock()
		go s.run(ctx)
	})
}

// Stop halts the emitter. Idempotent.
func (s *CLISink) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		} else {
			close(s.done)
		}
	})
}

// HandleEvent is the bus handler for the "cli" topic: one line per event.
func (s *CLISink) HandleEvent(_ context.Context, evt *models.Event) error {
	s.delivered.Add(1)
	fmt.Fprintf(s.out, "[%s] @%s: %s\n", evt.Kind, evt.User.Username, FormatEventLine(evt))
	return nil
}

// IncrementDeduped accounts for a duplicate the core suppressed before it
// reached this sink.
func (s *CLISink) IncrementDeduped() {
	s.deduped.Add(1)
}

func (s *CLISink) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emitStats()
		}
	}
}

// emitStats prints the periodic block: total, delivered, deduped and the
// delivery rate over the elapsed interval.
func (s *CLISink) emitStats() {
	delivered := s.delivered.Load()
	deduped := s.deduped.Load()

	s.mu.Lock()
	elapsed := time.Since(s.lastEmit).Seconds()
	windowCount := delivered - s.lastCounted
	s.lastEmit = time.Now()
	s.lastCounted = delivered
	s.mu.Unlock()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(windowCount) / elapsed
	}
	fmt.Fprintf(s.out, "--- stats: total=%d delivered=%d deduped=%d rate=%.2f/s ---\n",
		delivered+deduped, delivered, deduped, rate)
}

// FormatEventLine renders the text portion of a CLI line with newlines
// stripped and long text truncated.
func FormatEventLine(evt *models.Event) string {
	var text string
	switch {
	case evt.Payload.Post != nil:
		text = evt.EffectiveText()
	case evt.Payload.Follow != nil:
		f := evt.Payload.Follow
		switch f.Action {
		case models.FollowActionCreated, models.FollowActionFollow:
			text = "followed @" + f.Following.Handle
		default:
			text = "unfollowed @" + f.Following.Handle
		}
	case evt.Payload.Profile != nil:
		p := evt.Payload.Profile
		if len(p.Pinned) > 0 {
			text = p.Action + ": pinned tweets updated"
		} else {
			text = "profile " + p.Action
		}
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return truncate(text, cliTextLimit)
}
