// Package models defines the canonical in-process event model shared by the
// pipeline, the sinks, and the broadcast server.
package models

import "encoding/json"

// EventKind identifies the type of upstream occurrence an Event describes.
type EventKind string

// Known event kinds. Frames with any other event_type are rejected by the
// normalizer.
const (
	KindPostCreated    EventKind = "post_created"
	KindPostUpdated    EventKind = "post_updated"
	KindFollowCreated  EventKind = "follow_created"
	KindFollowUpdated  EventKind = "follow_updated"
	KindUserUpdated    EventKind = "user_updated"
	KindProfileUpdated EventKind = "profile_updated"
	KindProfilePinned  EventKind = "profile_pinned"
)

// KnownKinds lists every valid EventKind.
var KnownKinds = []EventKind{
	KindPostCreated,
	KindPostUpdated,
	KindFollowCreated,
	KindFollowUpdated,
	KindUserUpdated,
	KindProfileUpdated,
	KindProfilePinned,
}

// IsKnownKind reports whether k is one of the canonical event kinds.
func IsKnownKind(k EventKind) bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RawFrame is one decoded message from the upstream event stream.
// Data is kept as raw JSON so the normalizer produces a deep, independent
// copy when it decodes.
type RawFrame struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// EventUser identifies the user an event is about.
type EventUser struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// Event is the canonical record of a single upstream occurrence.
// Kind, User.Username and exactly one payload variant are always present on a
// normalized event; all other fields may be absent.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"timestamp"` // RFC-3339 UTC
	PrimaryID string    `json:"primaryId"`
	User      EventUser `json:"user"`
	Payload   Payload   `json:"payload"`
}

// Payload is the kind-tagged variant carried by an Event. Exactly one of the
// three pointers is non-nil on a normalized event; sinks switch on which.
type Payload struct {
	Post    *PostPayload    `json:"post,omitempty"`
	Follow  *FollowPayload  `json:"follow,omitempty"`
	Profile *ProfilePayload `json:"profile,omitempty"`
}

// PostPayload carries a created or updated post.
type PostPayload struct {
	Tweet Tweet `json:"tweet"`
}

// Tweet is a post and, for retweets, its optional inner subtweet.
type Tweet struct {
	ID        string       `json:"id"`
	CreatedAt string       `json:"createdAt,omitempty"`
	BodyText  string       `json:"bodyText,omitempty"`
	URLs      []string     `json:"urls,omitempty"`
	Mentions  []string     `json:"mentions,omitempty"`
	Author    Author       `json:"author"`
	Metrics   *PostMetrics `json:"metrics,omitempty"`
	Media     *Media       `json:"media,omitempty"`
	Subtweet  *Tweet       `json:"subtweet,omitempty"`
}

// Author identifies the account that wrote a tweet.
type Author struct {
	Handle   string       `json:"handle"`
	ID       string       `json:"id,omitempty"`
	Verified bool         `json:"verified,omitempty"`
	Profile  *UserProfile `json:"profile,omitempty"`
}

// UserProfile holds optional profile details for an author or subject.
type UserProfile struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Bio    string `json:"bio,omitempty"`
}

// PostMetrics holds engagement counters for a tweet.
type PostMetrics struct {
	Likes    int64 `json:"likes,omitempty"`
	Retweets int64 `json:"retweets,omitempty"`
	Replies  int64 `json:"replies,omitempty"`
	Views    int64 `json:"views,omitempty"`
}

// Media holds image and video URLs attached to a tweet.
type Media struct {
	Images []string `json:"images,omitempty"`
	Videos []string `json:"videos,omitempty"`
}

// Subject describes a user in a follow or profile payload.
type Subject struct {
	ID      string       `json:"id,omitempty"`
	Handle  string       `json:"handle"`
	Profile *UserProfile `json:"profile,omitempty"`
	Metrics *UserMetrics `json:"metrics,omitempty"`
}

// UserMetrics holds account-level counters for a subject.
type UserMetrics struct {
	Followers int64 `json:"followers,omitempty"`
	Following int64 `json:"following,omitempty"`
	Tweets    int64 `json:"tweets,omitempty"`
}

// Follow actions.
const (
	FollowActionCreated = "created"
	FollowActionUpdated = "updated"
	FollowActionFollow  = "follow"
	FollowActionUpdate  = "follow_update"
)

// FollowPayload carries a new or updated follow edge.
type FollowPayload struct {
	User      Subject `json:"user"`
	Following Subject `json:"following"`
	Action    string  `json:"action"`
}

// ProfilePayload carries a profile change, optionally with pinned tweets.
type ProfilePayload struct {
	User   Subject        `json:"user"`
	Action string         `json:"action"`
	Pinned []TweetSummary `json:"pinned,omitempty"`
}

// TweetSummary is the reduced tweet shape used in pinned-tweet lists.
type TweetSummary struct {
	ID        string `json:"id"`
	BodyText  string `json:"bodyText,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// EffectiveTweet returns the tweet whose content should be displayed for a
// post event. For retweets with an empty outer body and a present subtweet,
// the subtweet wins; the post URL still uses the outer id.
func (e *Event) EffectiveTweet() *Tweet {
	if e.Payload.Post == nil {
		return nil
	}
	t := &e.Payload.Post.Tweet
	if t.BodyText == "" && t.Subtweet != nil {
		return t.Subtweet
	}
	return t
}

// EffectiveText returns the display text for an event, or "" when the event
// kind carries none.
func (e *Event) EffectiveText() string {
	if t := e.EffectiveTweet(); t != nil {
		return t.BodyText
	}
	return ""
}

// EffectiveMedia returns the display media for a post event, or nil.
func (e *Event) EffectiveMedia() *Media {
	if t := e.EffectiveTweet(); t != nil {
		return t.Media
	}
	return nil
}

// PostURL returns the public URL of the outer post, or "" for non-post events.
func (e *Event) PostURL() string {
	p := e.Payload.Post
	if p == nil || p.Tweet.ID == "" {
		return ""
	}
	handle := p.Tweet.Author.Handle
	if handle == "" {
		handle = e.User.Username
	}
	return "https://x.com/" + handle + "/status/" + p.Tweet.ID
}

// ProfileURL returns the public profile URL of the event's user.
func (e *Event) ProfileURL() string {
	if e.User.Username == "" {
		return ""
	}
	return "https://x.com/" + e.User.Username
}

// AvatarURL returns the avatar of the effective author, if known.
func (e *Event) AvatarURL() string {
	if t := e.EffectiveTweet(); t != nil && t.Author.Profile != nil {
		return t.Author.Profile.Avatar
	}
	if p := e.Payload.Profile; p != nil && p.User.Profile != nil {
		return p.User.Profile.Avatar
	}
	if f := e.Payload.Follow; f != nil && f.User.Profile != nil {
		return f.User.Profile.Avatar
	}
	return ""
}
