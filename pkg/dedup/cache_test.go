package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

func event(kind models.EventKind, id, text, timestamp string) *models.Event {
	return &models.Event{
		Kind:      kind,
		Timestamp: timestamp,
		PrimaryID: id,
		User:      models.EventUser{Username: "alice"},
		Payload: models.Payload{
			Post: &models.PostPayload{Tweet: models.Tweet{
				ID:       id,
				BodyText: text,
				Author:   models.Author{Handle: "alice"},
			}},
		},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := event(models.KindPostCreated, "tweet123", "Hello", "2024-01-01T00:00:00Z")
	b := event(models.KindPostCreated, "tweet123", "Hello", "2024-01-01T00:00:00Z")
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintIgnoresTimestamp(t *testing.T) {
	a := event(models.KindPostCreated, "tweet123", "Hello", "2024-01-01T00:00:00Z")
	b := event(models.KindPostCreated, "tweet123", "Hello", "2024-01-01T00:05:00Z")
	assert.Equal(t, Fingerprint(a), Fingerprint(b),
		"timestamp differences alone must not change the fingerprint")
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	base := event(models.KindPostCreated, "tweet123", "Hello", "2024-01-01T00:00:00Z")
	edited := event(models.KindPostCreated, "tweet123", "Hello (edited)", "2024-01-01T00:00:00Z")
	otherID := event(models.KindPostCreated, "tweet456", "Hello", "2024-01-01T00:00:00Z")
	otherKind := event(models.KindPostUpdated, "tweet123", "Hello", "2024-01-01T00:00:00Z")

	assert.NotEqual(t, Fingerprint(base), Fingerprint(edited),
		"updates with new payload content must not be suppressed")
	assert.NotEqual(t, Fingerprint(base), Fingerprint(otherID))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(otherKind))
}

func TestCheckAndRemember(t *testing.T) {
	c := NewCache(time.Minute)
	fp := "abc123"

	assert.False(t, c.CheckAndRemember(fp, time.Minute), "first sighting is fresh")
	assert.True(t, c.CheckAndRemember(fp, time.Minute), "second sighting is a duplicate")
	assert.True(t, c.Has(fp))
	assert.Equal(t, 1, c.Size())
}

func TestExpiryWithoutIntervention(t *testing.T) {
	c := NewCache(time.Minute)
	fp := "shortlived"

	require.False(t, c.CheckAndRemember(fp, 20*time.Millisecond))
	assert.True(t, c.Has(fp))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.Has(fp), "expired entries vanish without manual sweep")
	assert.False(t, c.CheckAndRemember(fp, time.Minute), "fresh again after expiry")
}

func TestZeroTTLDisablesDedup(t *testing.T) {
	c := NewCache(0)
	fp := "nodedup"

	require.False(t, c.CheckAndRemember(fp, 0))
	time.Sleep(time.Millisecond)
	assert.False(t, c.CheckAndRemember(fp, 0), "with TTL 0 entries expire immediately")
}

func TestRememberResetsTimer(t *testing.T) {
	c := NewCache(time.Minute)
	fp := "refresh"

	require.False(t, c.CheckAndRemember(fp, 30*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	c.Remember(fp, 200*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.True(t, c.Has(fp), "re-insert resets the entry's timer")
}

func TestClear(t *testing.T) {
	c := NewCache(time.Minute)
	c.Remember("a", time.Minute)
	c.Remember("b", time.Minute)
	require.Equal(t, 2, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.False(t, c.Has("a"))
}
