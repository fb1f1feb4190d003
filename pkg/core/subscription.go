package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/stream"
)

// Subscription modes and sources.
const (
	ModeActive = "active"
	ModeIdle   = "idle"

	SourceConfig  = "config"
	SourceRuntime = "runtime"
)

// ErrInvalidSubscription is returned when an update names an unknown channel.
var ErrInvalidSubscription = errors.New("invalid subscription")

// Subscription is the runtime subscription state.
type Subscription struct {
	Channels  []string  `json:"channels"`
	Users     []string  `json:"users"`
	Mode      string    `json:"mode"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SubscriptionUpdater renegotiates the upstream stream. Implemented by
// stream.Client.
type SubscriptionUpdater interface {
	UpdateSubscription(channels, users []string) error
}

// SubscriptionManager owns the subscription state machine. Updates are a
// serialized critical section: at most one may be in flight, and the stored
// state changes only when the upstream renegotiation succeeds.
type SubscriptionManager struct {
	mu       sync.Mutex
	current  Subscription
	inFlight bool
	updater  SubscriptionUpdater
	now      func() time.Time
}

// NewSubscriptionManager creates the manager with the initial configured
// subscription.
func NewSubscriptionManager(updater SubscriptionUpdater, channels, users []string) *SubscriptionManager {
	normChannels := NormalizeChannels(channels)
	normUsers := NormalizeUsers(users)
	return &SubscriptionManager{
		updater: updater,
		now:     time.Now,
		current: Subscription{
			Channels:  normChannels,
			Users:     normUsers,
			Mode:      modeFor(normChannels),
			Source:    SourceConfig,
			UpdatedAt: time.Now(),
		},
	}
}

// Current returns a copy of the subscription state.
func (m *SubscriptionManager) Current() Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current
	cur.Channels = append([]string(nil), m.current.Channels...)
	cur.Users = append([]string(nil), m.current.Users...)
	return cur
}

// Update validates and applies a runtime subscription change. An empty
// channel set is valid and is the defined way to enter idle mode. On any
// failure the stored state is unchanged.
func (m *SubscriptionManager) Update(channels, users []string) (Subscription, error) {
	for _, ch := range channels {
		if !stream.IsKnownChannel(strings.ToLower(strings.TrimSpace(ch))) {
			return m.Current(), fmt.Errorf("%w: unknown channel %q", ErrInvalidSubscription, ch)
		}
	}
	normChannels := NormalizeChannels(channels)
	normUsers := NormalizeUsers(users)

	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return m.Current(), stream.ErrUpdateInProgress
	}
	m.inFlight = true
	m.mu.Unlock()

	err := m.updater.UpdateSubscription(normChannels, normUsers)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		return m.current, err
	}
	m.current = Subscription{
		Channels:  normChannels,
		Users:     normUsers,
		Mode:      modeFor(normChannels),
		Source:    SourceRuntime,
		UpdatedAt: m.now(),
	}
	return m.current, nil
}

func modeFor(channels []string) string {
	if len(channels) == 0 {
		return ModeIdle
	}
	return ModeActive
}

// NormalizeChannels trims, lowercases, deduplicates and sorts a channel set.
// The "all" channel absorbs its siblings.
func NormalizeChannels(channels []string) []string {
	seen := make(map[string]struct{}, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if ch == "" {
			continue
		}
		if ch == stream.ChannelAll {
			return []string{stream.ChannelAll}
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// NormalizeUsers trims, lowercases, deduplicates and sorts a user set.
func NormalizeUsers(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		u = strings.ToLower(strings.TrimSpace(u))
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
