package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammetakkurtt/alpha-stream/pkg/bus"
	"github.com/muhammetakkurtt/alpha-stream/pkg/dedup"
	"github.com/muhammetakkurtt/alpha-stream/pkg/filter"
	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
	"github.com/muhammetakkurtt/alpha-stream/pkg/normalize"
	"github.com/muhammetakkurtt/alpha-stream/pkg/stream"
)

// fakeUpstream feeds scripted frames into the pipeline.
type fakeUpstream struct {
	frames chan models.RawFrame
	states chan stream.State
	fatals chan error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		frames: make(chan models.RawFrame, 64),
		states: make(chan stream.State, 8),
		fatals: make(chan error, 1),
	}
}

func (f *fakeUpstream) Frames() <-chan models.RawFrame { return f.frames }
func (f *fakeUpstream) States() <-chan stream.State    { return f.states }
func (f *fakeUpstream) Fatal() <-chan error            { return f.fatals }
func (f *fakeUpstream) CurrentState() stream.State     { return stream.StateConnected }
func (f *fakeUpstream) Stop()                          {}

func postFrame(user, tweetID, text string) models.RawFrame {
	data := fmt.Sprintf(`{"user":{"username":%q},"tweet":{"id":%q,"bodyText":%q,"author":{"handle":%q}}}`,
		user, tweetID, text, user)
	return models.RawFrame{EventType: "post_created", Data: json.RawMessage(data)}
}

// runPipeline feeds the frames through a fresh core and returns the stats
// and every event that reached the given topic.
func runPipeline(t *testing.T, pipeline *filter.Pipeline, frames ...models.RawFrame) (Snapshot, []*models.Event) {
	t.Helper()

	upstream := newFakeUpstream()
	eventBus := bus.New()
	stats := NewStats(nil)

	delivered := make(chan *models.Event, 64)
	eventBus.Subscribe(bus.TopicCLI, func(_ context.Context, evt *models.Event) error {
		delivered <- evt
		return nil
	})

	c := New(Options{
		Upstream:   upstream,
		Normalizer: normalize.New(),
		Filters:    pipeline,
		Dedup:      dedup.NewCache(time.Minute),
		Bus:        eventBus,
		Stats:      stats,
		DedupTTL:   time.Minute,
	})

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	for _, frame := range frames {
		upstream.frames <- frame
	}
	// Poll until every frame has been accounted for, then stop.
	require.Eventually(t, func() bool {
		s := stats.Snapshot()
		return s.Total == int64(len(frames))
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	var events []*models.Event
	for {
		select {
		case evt := <-delivered:
			events = append(events, evt)
		default:
			return stats.Snapshot(), events
		}
	}
}

func TestDuplicateSuppression(t *testing.T) {
	frame := postFrame("elonmusk", "tweet123", "Hello")
	snap, events := runPipeline(t, filter.NewPipeline(), frame, frame)

	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.Delivered)
	assert.Equal(t, int64(1), snap.Deduped)
	require.Len(t, events, 1)
	assert.Equal(t, "elonmusk", events[0].User.Username)
	assert.Equal(t, "Hello", events[0].EffectiveText())
}

func TestUserFilterScenario(t *testing.T) {
	pipeline := filter.NewPipeline(filter.NewUserFilter([]string{"alice"}))
	snap, events := runPipeline(t, pipeline,
		postFrame("alice", "t1", "from alice"),
		postFrame("bob", "t2", "from bob"),
	)

	assert.Equal(t, int64(1), snap.Delivered)
	assert.Equal(t, int64(1), snap.Filtered)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].User.Username)
}

func TestUserFilterPreservesCase(t *testing.T) {
	// Event usernames are never lowercased by normalization, so a
	// mixed-case allowlist entry must match the handle exactly as the
	// crawler delivers it.
	pipeline := filter.NewPipeline(filter.NewUserFilter([]string{"ElonMusk"}))
	snap, events := runPipeline(t, pipeline,
		postFrame("ElonMusk", "t1", "mixed case handle"),
		postFrame("elonmusk", "t2", "lowercase impostor"),
	)

	assert.Equal(t, int64(1), snap.Delivered)
	assert.Equal(t, int64(1), snap.Filtered)
	require.Len(t, events, 1)
	assert.Equal(t, "ElonMusk", events[0].User.Username)
}

func TestKeywordFilterScenario(t *testing.T) {
	pipeline := filter.NewPipeline(
		filter.NewUserFilter([]string{"alice"}),
		filter.NewKeywordFilter([]string{"bitcoin"}),
	)
	snap, events := runPipeline(t, pipeline,
		postFrame("alice", "t1", "hello ethereum"),
		postFrame("alice", "t2", "hello bitcoin world"),
	)

	assert.Equal(t, int64(1), snap.Delivered)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].EffectiveText(), "bitcoin")
}

func TestRejectedFramesCountAsFiltered(t *testing.T) {
	snap, events := runPipeline(t, filter.NewPipeline(),
		models.RawFrame{EventType: "mystery", Data: json.RawMessage(`{}`)},
		postFrame("alice", "t1", "fine"),
	)

	assert.Equal(t, int64(2), snap.Total)
	assert.Equal(t, int64(1), snap.Filtered)
	assert.Equal(t, int64(1), snap.Delivered)
	assert.Len(t, events, 1)
}

func TestDedupHookFires(t *testing.T) {
	upstream := newFakeUpstream()
	eventBus := bus.New()
	stats := NewStats(nil)

	var hookCalls int
	c := New(Options{
		Upstream:   upstream,
		Normalizer: normalize.New(),
		Filters:    filter.NewPipeline(),
		Dedup:      dedup.NewCache(time.Minute),
		Bus:        eventBus,
		Stats:      stats,
		DedupTTL:   time.Minute,
		OnDedup:    func() { hookCalls++ },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = c.Run(ctx) }()

	frame := postFrame("alice", "t1", "hi")
	upstream.frames <- frame
	upstream.frames <- frame
	require.Eventually(t, func() bool {
		return stats.Snapshot().Total == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, hookCalls)
}

func TestFatalUpstreamKeepsCoreRunning(t *testing.T) {
	upstream := newFakeUpstream()
	eventBus := bus.New()
	stats := NewStats(nil)

	var observed []stream.State
	c := New(Options{
		Upstream:   upstream,
		Normalizer: normalize.New(),
		Filters:    filter.NewPipeline(),
		Dedup:      dedup.NewCache(time.Minute),
		Bus:        eventBus,
		Stats:      stats,
		DedupTTL:   time.Minute,
		OnStateChange: func(s stream.State) {
			observed = append(observed, s)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = c.Run(ctx) }()

	upstream.fatals <- fmt.Errorf("gave up")
	upstream.frames <- postFrame("alice", "t1", "still flowing")

	require.Eventually(t, func() bool {
		return stats.Snapshot().Delivered == 1
	}, 2*time.Second, 5*time.Millisecond, "pipeline keeps processing after a fatal upstream error")
	cancel()
	<-done

	assert.Contains(t, observed, stream.StateDisconnected)
}
