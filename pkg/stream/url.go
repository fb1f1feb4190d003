package stream

import (
	"net/url"
	"strings"
)

// ChannelAll is the server-multiplexed channel covering every event stream.
const ChannelAll = "all"

// Known upstream channels.
var KnownChannels = []string{ChannelAll, "tweets", "following", "profile"}

// IsKnownChannel reports whether ch names an upstream channel.
func IsKnownChannel(ch string) bool {
	for _, known := range KnownChannels {
		if ch == known {
			return true
		}
	}
	return false
}

// EffectiveChannel reduces a channel set to the single channel one connection
// subscribes to: the channel itself when only one is selected, otherwise
// "all" (which absorbs its siblings).
func EffectiveChannel(channels []string) string {
	if len(channels) == 1 {
		return channels[0]
	}
	return ChannelAll
}

// BuildStreamURL constructs the upstream event-stream URL. The users query
// parameter is present iff the user set is non-empty.
func BuildStreamURL(base, channel, token string, users []string) string {
	u := strings.TrimSuffix(base, "/") + "/events/" + channel
	q := url.Values{}
	q.Set("token", token)
	if len(users) > 0 {
		q.Set("users", strings.Join(users, ","))
	}
	return u + "?" + q.Encode()
}
