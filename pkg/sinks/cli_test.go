package sinks

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

func cliPostEvent(username, text string) *models.Event {
	return &models.Event{
		Kind:      models.KindPostCreated,
		Timestamp: "2024-03-01T12:00:00Z",
		PrimaryID: "t1",
		User:      models.EventUser{Username: username},
		Payload: models.Payload{
			Post: &models.PostPayload{Tweet: models.Tweet{
				ID:       "t1",
				BodyText: text,
				Author:   models.Author{Handle: username},
			}},
		},
	}
}

func TestCLILineFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCLISink(&buf, time.Minute)

	require.NoError(t, sink.HandleEvent(context.Background(), cliPostEvent("elonmusk", "Hello")))
	assert.Equal(t, "[post_created] @elonmusk: Hello\n", buf.String())
}

func TestCLILineStripsNewlinesAndTruncates(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCLISink(&buf, time.Minute)

	long := strings.Repeat("a", 150)
	evt := cliPostEvent("alice", "line one\nline two\r\n"+long)
	require.NoError(t, sink.HandleEvent(context.Background(), evt))

	line := buf.String()
	assert.NotContains(t, strings.TrimSuffix(line, "\n"), "\n")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), "..."))
	// "[kind] @user: " prefix plus at most 100 text characters.
	text := strings.TrimPrefix(strings.TrimSpace(line), "[post_created] @alice: ")
	assert.LessOrEqual(t, len(text), 100)
}

func TestCLIFollowAndProfileLines(t *testing.T) {
	follow := &models.Event{
		Kind: models.KindFollowCreated,
		User: models.EventUser{Username: "alice"},
		Payload: models.Payload{Follow: &models.FollowPayload{
			User:      models.Subject{Handle: "alice"},
			Following: models.Subject{Handle: "bob"},
			Action:    models.FollowActionCreated,
		}},
	}
	assert.Equal(t, "followed @bob", FormatEventLine(follow))

	profile := &models.Event{
		Kind: models.KindProfileUpdated,
		User: models.EventUser{Username: "alice"},
		Payload: models.Payload{Profile: &models.ProfilePayload{
			User:   models.Subject{Handle: "alice"},
			Action: "updated",
		}},
	}
	assert.Equal(t, "profile updated", FormatEventLine(profile))

	pinned := &models.Event{
		Kind: models.KindProfilePinned,
		User: models.EventUser{Username: "alice"},
		Payload: models.Payload{Profile: &models.ProfilePayload{
			User:   models.Subject{Handle: "alice"},
			Action: "pinned",
			Pinned: []models.TweetSummary{{ID: "p1"}},
		}},
	}
	assert.Equal(t, "pinned: pinned tweets updated", FormatEventLine(pinned))
}

func TestCLIStatsBlock(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCLISink(&buf, time.Minute)

	require.NoError(t, sink.HandleEvent(context.Background(), cliPostEvent("alice", "one")))
	sink.IncrementDeduped()
	sink.emitStats()

	out := buf.String()
	assert.Contains(t, out, "total=2")
	assert.Contains(t, out, "delivered=1")
	assert.Contains(t, out, "deduped=1")
	assert.Contains(t, out, "rate=")
}

func TestCLIStopIdempotent(t *testing.T) {
	sink := NewCLISink(&bytes.Buffer{}, time.Minute)
	sink.Start(context.Background())
	sink.Stop()
	sink.Stop()
}
