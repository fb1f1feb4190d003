// Package sinks turns delivered events into outside-world actions: terminal
// output and rate-limited push notifications.
package sinks

import (
	"fmt"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// AlertMessage is the common notification shape every alert sink formats
// from. The generic webhook sink posts it verbatim as JSON.
type AlertMessage struct {
	EventType string   `json:"event_type"`
	Username  string   `json:"username"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp"` // "YYYY-MM-DD HH:MM:SS UTC"
	Images    []string `json:"images,omitempty"`
	Videos    []string `json:"videos,omitempty"`
	PostURL   string   `json:"post_url,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
}

// BuildAlertMessage derives the common alert shape from a canonical event.
func BuildAlertMessage(evt *models.Event) AlertMessage {
	msg := AlertMessage{
		EventType: string(evt.Kind),
		Username:  evt.User.Username,
		Text:      describeEvent(evt),
		Timestamp: alertTimestamp(evt.Timestamp),
		PostURL:   evt.PostURL(),
		AvatarURL: evt.AvatarURL(),
	}
	if media := evt.EffectiveMedia(); media != nil {
		msg.Images = media.Images
		msg.Videos = media.Videos
	}
	return msg
}

// describeEvent renders the event's display text: the effective tweet text
// for posts, a short action line otherwise.
func describeEvent(evt *models.Event) string {
	if text := evt.EffectiveText(); text != "" {
		return text
	}
	if f := evt.Payload.Follow; f != nil {
		switch f.Action {
		case models.FollowActionCreated, models.FollowActionFollow:
			return fmt.Sprintf("followed @%s", f.Following.Handle)
		default:
			return fmt.Sprintf("follow updated: @%s", f.Following.Handle)
		}
	}
	if p := evt.Payload.Profile; p != nil {
		if len(p.Pinned) > 0 {
			return fmt.Sprintf("%s: pinned tweets updated", p.Action)
		}
		return "profile " + p.Action
	}
	return string(evt.Kind)
}

// alertTimestamp renders an RFC-3339 event timestamp as "YYYY-MM-DD HH:MM:SS
// UTC", falling back to the current time when unparseable.
func alertTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

// truncate shortens s to at most max runes, appending an ellipsis when it
// cuts.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
